// Package game defines the grid, agents and directions of a gridle attempt.
//
// The grid records which trail owns each cell. Cells are only ever written
// once per attempt: nothing in this package clears a cell.
package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutOfBounds  = errors.New("cell out of bounds")
	ErrCellOccupied = errors.New("cell already occupied")
)

// Direction is one of the four grid headings.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Directions lists every heading in enum order.
var Directions = [4]Direction{Up, Down, Left, Right}

var directionNames = [4]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection accepts the names produced by String and WASD keys.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "w":
		return Up, nil
	case "down", "s":
		return Down, nil
	case "left", "a":
		return Left, nil
	case "right", "d":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// TurnLeft rotates counter-clockwise: Up, Left, Down, Right, Up.
func (d Direction) TurnLeft() Direction {
	switch d {
	case Up:
		return Left
	case Left:
		return Down
	case Down:
		return Right
	default:
		return Up
	}
}

// TurnRight is the inverse of TurnLeft.
func (d Direction) TurnRight() Direction {
	switch d {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	default:
		return Up
	}
}

// Delta is the unit step of d. Y grows downwards, so Up is (0,-1).
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	default:
		return 1, 0
	}
}

// Point is a grid cell. (0,0) is the top-left corner.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Step(d Direction) Point {
	dx, dy := d.Delta()
	return Point{X: p.X + dx, Y: p.Y + dy}
}

func (p Point) Manhattan(q Point) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Trail identifies which agent laid a cell. The zero value is an empty cell.
type Trail uint8

const (
	TrailNone Trail = iota
	TrailPlayer
)

// opponentColors is the fixed palette handed out to opponents in order.
var opponentColors = []string{
	"#ff4d4d", "#ffb347", "#fdfd66", "#b19cd9",
	"#ff69b4", "#40e0d0", "#c0c0c0", "#8fbc8f",
}

const playerColor = "#39ff14"

// OpponentTrail returns the trail of the i-th opponent (zero based).
func OpponentTrail(i int) Trail {
	return Trail(int(TrailPlayer) + 1 + i)
}

// Color is the hex colour renderers should draw this trail with.
func (t Trail) Color() string {
	switch {
	case t == TrailNone:
		return ""
	case t == TrailPlayer:
		return playerColor
	default:
		return opponentColors[(int(t)-2)%len(opponentColors)]
	}
}

// Agent is the controllable player or an autonomous opponent.
type Agent struct {
	ID           string    `json:"id"`
	Pos          Point     `json:"pos"`
	Heading      Direction `json:"heading"`
	Alive        bool      `json:"alive"`
	Trail        Trail     `json:"trail"`
	Controllable bool      `json:"controllable"`
}

// SetHeading changes the heading and reports whether it changed. A request
// to reverse is always rejected.
func (a *Agent) SetHeading(d Direction) bool {
	if d > Right || d == a.Heading || d == a.Heading.Opposite() {
		return false
	}
	a.Heading = d
	return true
}

// Kill marks the agent dead. Dead agents never come back.
func (a *Agent) Kill() {
	a.Alive = false
}

// Next is the cell the agent would enter on its next move.
func (a *Agent) Next() Point {
	return a.Pos.Step(a.Heading)
}

// GridView is the read-only face of a Grid.
type GridView interface {
	Cols() int
	Rows() int
	InBounds(p Point) bool
	Occupied(p Point) bool
	Free(p Point) bool
}

// Grid is a rows x cols occupancy map.
type Grid struct {
	cols, rows int
	cells      []Trail
	occupied   int
}

func NewGrid(cols, rows int) *Grid {
	return &Grid{cols: cols, rows: rows, cells: make([]Trail, cols*rows)}
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

func (g *Grid) InBounds(p Point) bool {
	return p.X >= 0 && p.X < g.cols && p.Y >= 0 && p.Y < g.rows
}

func (g *Grid) Occupied(p Point) bool {
	return g.Owner(p) != TrailNone
}

// Free reports whether p can be entered: in bounds and unoccupied.
func (g *Grid) Free(p Point) bool {
	return g.InBounds(p) && g.cells[p.Y*g.cols+p.X] == TrailNone
}

// Owner returns the trail occupying p, or TrailNone for empty or
// out-of-bounds cells.
func (g *Grid) Owner(p Point) Trail {
	if !g.InBounds(p) {
		return TrailNone
	}
	return g.cells[p.Y*g.cols+p.X]
}

// Occupy marks p as owned by t. Callers check Free first; occupying a cell
// twice is a bug and is reported rather than overwritten.
func (g *Grid) Occupy(p Point, t Trail) error {
	if !g.InBounds(p) {
		return fmt.Errorf("occupy (%d,%d): %w", p.X, p.Y, ErrOutOfBounds)
	}
	idx := p.Y*g.cols + p.X
	if g.cells[idx] != TrailNone {
		return fmt.Errorf("occupy (%d,%d) by %d: %w", p.X, p.Y, t, ErrCellOccupied)
	}
	g.cells[idx] = t
	g.occupied++
	return nil
}

// OccupiedCount is the number of cells holding a trail.
func (g *Grid) OccupiedCount() int {
	return g.occupied
}

// Cells returns a copy of the grid in row-major order.
func (g *Grid) Cells() []Trail {
	out := make([]Trail, len(g.cells))
	copy(out, g.cells)
	return out
}

// Clone performs a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	return &Grid{cols: g.cols, rows: g.rows, cells: g.Cells(), occupied: g.occupied}
}
