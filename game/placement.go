// placement.go puts the player and opponents on a fresh grid.

package game

import (
	"fmt"

	"github.com/brensch/gridle/challenge"
)

const (
	PlayerID = "player"

	// minSpawnSpacing is the smallest Manhattan distance between two
	// spawn cells.
	minSpawnSpacing = 3

	// maxPlacementDraws bounds the random search before falling back to a
	// deterministic scan.
	maxPlacementDraws = 64
)

// OpponentID names the i-th opponent.
func OpponentID(i int) string {
	return fmt.Sprintf("bot-%d", i+1)
}

// PlayerStart is the controllable agent's spawn cell.
func PlayerStart(cols, rows int) Point {
	return Point{X: cols / 2, Y: rows - 3}
}

// Place builds the starting grid and agents for cfg. The player spawns
// bottom-centre heading Up. Opponents spawn in the upper half using a
// placement Rng seeded from cfg.Seed, so every client sees the same layout.
//
// Agents are returned with the player first.
func Place(cfg challenge.Config) (*Grid, []*Agent) {
	grid := NewGrid(cfg.Cols, cfg.Rows)
	rng := challenge.NewRng(cfg.Seed)

	player := &Agent{
		ID:           PlayerID,
		Pos:          PlayerStart(cfg.Cols, cfg.Rows),
		Heading:      Up,
		Alive:        true,
		Trail:        TrailPlayer,
		Controllable: true,
	}
	_ = grid.Occupy(player.Pos, player.Trail)
	agents := []*Agent{player}

	for i := 0; i < cfg.Opponents; i++ {
		pos, heading, ok := pickSpawn(grid, agents, rng)
		if !ok {
			break
		}
		bot := &Agent{
			ID:      OpponentID(i),
			Pos:     pos,
			Heading: heading,
			Alive:   true,
			Trail:   OpponentTrail(i),
		}
		_ = grid.Occupy(bot.Pos, bot.Trail)
		agents = append(agents, bot)
	}
	return grid, agents
}

func pickSpawn(grid *Grid, agents []*Agent, rng *challenge.Rng) (Point, Direction, bool) {
	upper := grid.Rows() / 2
	for i := 0; i < maxPlacementDraws; i++ {
		p := Point{X: rng.Intn(grid.Cols()), Y: rng.Intn(upper)}
		d := Directions[rng.Intn(len(Directions))]
		if spawnOK(grid, agents, p, d, minSpawnSpacing) {
			return p, d, true
		}
	}

	// Deterministic fallback: first acceptable cell in row-major order,
	// relaxing the spacing rule if the grid is crowded.
	for _, spacing := range []int{minSpawnSpacing, 2} {
		for y := 0; y < grid.Rows(); y++ {
			for x := 0; x < grid.Cols(); x++ {
				for _, d := range []Direction{Down, Left, Right, Up} {
					p := Point{X: x, Y: y}
					if spawnOK(grid, agents, p, d, spacing) {
						return p, d, true
					}
				}
			}
		}
	}
	return Point{}, Up, false
}

func spawnOK(grid *Grid, agents []*Agent, p Point, d Direction, spacing int) bool {
	if !grid.Free(p) || !grid.Free(p.Step(d)) {
		return false
	}
	for _, a := range agents {
		if a.Pos.Manhattan(p) < spacing {
			return false
		}
	}
	return true
}
