package rules

import "github.com/brensch/gridle/game"

// AgentSnapshot is a read-only copy of one agent.
type AgentSnapshot struct {
	ID           string         `json:"id"`
	Pos          game.Point     `json:"pos"`
	Heading      game.Direction `json:"heading"`
	Alive        bool           `json:"alive"`
	Controllable bool           `json:"controllable"`
	Trail        game.Trail     `json:"trail"`
	Color        string         `json:"color"`
}

// Snapshot is what a renderer sees after a tick.
type Snapshot struct {
	AttemptID string          `json:"attempt_id"`
	Date      string          `json:"date"`
	Tick      int             `json:"tick"`
	State     State           `json:"state"`
	Paused    bool            `json:"paused"`
	Cols      int             `json:"cols"`
	Rows      int             `json:"rows"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Agents    []AgentSnapshot `json:"agents"`

	// Cells is the grid in row-major order; zero means empty.
	Cells []game.Trail `json:"-"`
}

// Player returns the controllable agent's snapshot.
func (s Snapshot) Player() AgentSnapshot {
	for _, a := range s.Agents {
		if a.Controllable {
			return a
		}
	}
	return AgentSnapshot{}
}

// Alive counts live opponents.
func (s Snapshot) Alive() int {
	n := 0
	for _, a := range s.Agents {
		if !a.Controllable && a.Alive {
			n++
		}
	}
	return n
}

// Owner returns the trail at (x,y), or TrailNone outside the grid.
func (s Snapshot) Owner(x, y int) game.Trail {
	if x < 0 || y < 0 || x >= s.Cols || y >= s.Rows || len(s.Cells) != s.Cols*s.Rows {
		return game.TrailNone
	}
	return s.Cells[y*s.Cols+x]
}

// Snapshot copies the current attempt state. The player is listed first.
func (e *Engine) Snapshot() Snapshot {
	agents := make([]AgentSnapshot, 0, len(e.bots)+1)
	agents = append(agents, agentSnapshot(e.player))
	for _, b := range e.bots {
		agents = append(agents, agentSnapshot(b))
	}
	return Snapshot{
		AttemptID: e.attemptID,
		Date:      e.cfg.Date,
		Tick:      e.ticks,
		State:     e.state,
		Paused:    e.paused,
		Cols:      e.grid.Cols(),
		Rows:      e.grid.Rows(),
		ElapsedMs: e.Elapsed().Milliseconds(),
		Agents:    agents,
		Cells:     e.grid.Cells(),
	}
}

func agentSnapshot(a *game.Agent) AgentSnapshot {
	return AgentSnapshot{
		ID:           a.ID,
		Pos:          a.Pos,
		Heading:      a.Heading,
		Alive:        a.Alive,
		Controllable: a.Controllable,
		Trail:        a.Trail,
		Color:        a.Trail.Color(),
	}
}
