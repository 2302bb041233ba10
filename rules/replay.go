package rules

import (
	"fmt"

	"github.com/brensch/gridle/challenge"
)

// maxReplayTicks bounds a replay whose inputs never end the attempt. The
// largest grid has 960 cells, so no attempt can last longer.
const maxReplayTicks = challenge.MaxCols * challenge.MaxRows

// Replay re-runs an attempt for cfg from its heading log and returns the
// final snapshot. The simulation is deterministic, so a replay of a recorded
// attempt reproduces its outcome exactly.
func Replay(cfg challenge.Config, inputs []Input, opts ...Option) (Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("replay config: %w", err)
	}
	e := NewEngine(cfg, opts...)
	e.Start()

	next := 0
	for !e.State().Terminal() {
		if e.Ticks() >= maxReplayTicks {
			return e.Snapshot(), fmt.Errorf("replay did not finish within %d ticks", maxReplayTicks)
		}
		for next < len(inputs) && inputs[next].Tick <= e.Ticks()+1 {
			in := inputs[next]
			if in.Tick < e.Ticks()+1 {
				return e.Snapshot(), fmt.Errorf("input %d for tick %d is out of order", next, in.Tick)
			}
			if !e.SetHeading(in.Heading) {
				return e.Snapshot(), fmt.Errorf("input %d (%s at tick %d) rejected", next, in.Heading, in.Tick)
			}
			next++
		}
		e.Tick()
	}
	return e.Snapshot(), nil
}
