package rules

import "github.com/brensch/gridle/game"

// RandomTurnChance is the per-tick probability that an unblocked opponent
// turns anyway, so trails don't all run in straight lines.
const RandomTurnChance = 0.03

// Source is the float stream the policy draws from.
type Source interface {
	Next() float64
}

// Decide picks the next heading for an autonomous agent.
//
// A blocked agent tries its left turn, then its right turn, and keeps its
// heading when both are blocked. A blocked agent draws nothing from rng. An
// unblocked agent draws exactly once: below RandomTurnChance it turns (left
// on the lower half of that band) whether or not the turned cell is free.
func Decide(a game.Agent, grid game.GridView, rng Source) game.Direction {
	if !grid.Free(a.Next()) {
		for _, d := range [2]game.Direction{a.Heading.TurnLeft(), a.Heading.TurnRight()} {
			if grid.Free(a.Pos.Step(d)) {
				return d
			}
		}
		return a.Heading
	}

	r := rng.Next()
	if r >= RandomTurnChance {
		return a.Heading
	}
	if r < RandomTurnChance/2 {
		return a.Heading.TurnLeft()
	}
	return a.Heading.TurnRight()
}
