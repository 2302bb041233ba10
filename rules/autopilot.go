package rules

import "github.com/brensch/gridle/challenge"

// autopilotSalt separates the autopilot stream from the AI stream that
// shares the challenge seed.
const autopilotSalt = 0xA5A5A5A5

// Autopilot steers the controllable agent with the opponent policy. It
// stands in for a human input source in headless runs.
type Autopilot struct {
	rng *challenge.Rng
}

func NewAutopilot(seed uint32) *Autopilot {
	return &Autopilot{rng: challenge.NewRng(seed ^ autopilotSalt)}
}

// Steer sets the player's heading for the next tick.
func (p *Autopilot) Steer(e *Engine) {
	if e.State() != Running {
		return
	}
	player := e.Player()
	if !player.Alive {
		return
	}
	e.SetHeading(Decide(player, e.Grid(), p.rng))
}
