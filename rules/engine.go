// Package rules runs a gridle attempt one tick at a time.
//
// The Engine owns the grid, the agents and the AI random stream. Nothing
// outside the engine mutates them; callers read Snapshots and feed player
// headings through SetHeading.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/game"
)

// State is the attempt lifecycle.
type State uint8

const (
	Idle State = iota
	Running
	Won
	Lost
	// Abandoned is an attempt left before reaching Won or Lost.
	Abandoned
)

var stateNames = [...]string{"idle", "running", "won", "lost", "abandoned"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no further ticks can change the attempt.
func (s State) Terminal() bool {
	return s == Won || s == Lost || s == Abandoned
}

// WinEvent is reported once when an attempt is won.
type WinEvent struct {
	AttemptID string        `json:"attempt_id"`
	Date      string        `json:"date"`
	Ticks     int           `json:"ticks"`
	Elapsed   time.Duration `json:"elapsed"`
}

// WinReporter receives the single win event of an attempt. Deciding whether
// it is the first win of the day is the reporter's job.
type WinReporter interface {
	ReportWin(WinEvent)
}

// Outcome describes how an attempt ended.
type Outcome struct {
	AttemptID string        `json:"attempt_id"`
	Date      string        `json:"date"`
	State     State         `json:"state"`
	Ticks     int           `json:"ticks"`
	Elapsed   time.Duration `json:"elapsed"`
	Survivors int           `json:"survivors"`
}

// OutcomeObserver is told about every terminal transition.
type OutcomeObserver interface {
	ObserveOutcome(Outcome)
}

// Input is one accepted player heading change, applied before tick Tick.
type Input struct {
	Tick    int            `json:"tick"`
	Heading game.Direction `json:"heading"`
}

var ErrNoControllable = errors.New("exactly one controllable agent is required")

type Option func(*Engine)

func WithWinReporter(r WinReporter) Option { return func(e *Engine) { e.winReporter = r } }

func WithOutcomeObserver(o OutcomeObserver) Option { return func(e *Engine) { e.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithAttemptID(id string) Option { return func(e *Engine) { e.attemptID = id } }

// WithDecisionSource replaces the opponents' random stream, which is
// otherwise a fresh Rng seeded from the challenge seed.
func WithDecisionSource(src Source) Option { return func(e *Engine) { e.ai = src } }

// Engine is a single attempt at a challenge.
type Engine struct {
	cfg       challenge.Config
	attemptID string

	grid   *game.Grid
	player *game.Agent
	bots   []*game.Agent
	ai     Source
	state  State
	paused bool
	ticks  int
	inputs []Input

	// moved is the heading of the player's last move.
	moved game.Direction

	winReporter WinReporter
	observer    OutcomeObserver
	logger      *slog.Logger
}

// NewEngine places the agents for cfg and returns an Idle engine.
func NewEngine(cfg challenge.Config, opts ...Option) *Engine {
	grid, agents := game.Place(cfg)
	e, err := NewEngineFrom(cfg, grid, agents, opts...)
	if err != nil {
		// Place always yields exactly one controllable agent on free cells.
		panic(err)
	}
	return e
}

// NewEngineFrom builds an engine over an explicit layout. Each agent's
// starting cell must be free or already hold its own trail; free start
// cells are occupied.
func NewEngineFrom(cfg challenge.Config, grid *game.Grid, agents []*game.Agent, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:  cfg,
		grid: grid,
		// The AI stream is independent of the config and placement streams
		// but seeded from the same value.
		ai: challenge.NewRng(cfg.Seed),
	}
	for _, a := range agents {
		if !grid.InBounds(a.Pos) {
			return nil, fmt.Errorf("agent %s start (%d,%d): %w", a.ID, a.Pos.X, a.Pos.Y, game.ErrOutOfBounds)
		}
		if owner := grid.Owner(a.Pos); owner != a.Trail {
			if err := grid.Occupy(a.Pos, a.Trail); err != nil {
				return nil, fmt.Errorf("agent %s start: %w", a.ID, err)
			}
		}
		if a.Controllable {
			if e.player != nil {
				return nil, ErrNoControllable
			}
			e.player = a
			e.moved = a.Heading
			continue
		}
		e.bots = append(e.bots, a)
	}
	if e.player == nil {
		return nil, ErrNoControllable
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.attemptID == "" {
		e.attemptID = uuid.NewString()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With("attempt", e.attemptID, "date", cfg.Date)
	return e, nil
}

func (e *Engine) AttemptID() string        { return e.attemptID }
func (e *Engine) Config() challenge.Config { return e.cfg }
func (e *Engine) State() State             { return e.state }
func (e *Engine) Paused() bool             { return e.paused }
func (e *Engine) Ticks() int               { return e.ticks }
func (e *Engine) Grid() game.GridView      { return e.grid }
func (e *Engine) Player() game.Agent       { return *e.player }

// Inputs is the log of accepted heading changes, enough to Replay the
// attempt.
func (e *Engine) Inputs() []Input { return append([]Input(nil), e.inputs...) }

// Elapsed is attempt time in ticks, so pausing never affects it.
func (e *Engine) Elapsed() time.Duration {
	return time.Duration(e.ticks) * e.cfg.TickInterval()
}

// Start moves an Idle engine to Running.
func (e *Engine) Start() bool {
	if e.state != Idle {
		return false
	}
	e.state = Running
	e.logger.Info("attempt started", "cols", e.grid.Cols(), "rows", e.grid.Rows(), "opponents", len(e.bots))
	return true
}

// Pause stops ticks from being processed without touching any state.
func (e *Engine) Pause() bool {
	if e.state != Running || e.paused {
		return false
	}
	e.paused = true
	return true
}

func (e *Engine) Resume() bool {
	if e.state != Running || !e.paused {
		return false
	}
	e.paused = false
	return true
}

// Abandon ends a non-terminal attempt without a result.
func (e *Engine) Abandon() bool {
	if e.state.Terminal() {
		return false
	}
	e.state = Abandoned
	e.paused = false
	e.logger.Info("attempt abandoned", "ticks", e.ticks)
	e.notify()
	return true
}

// SetHeading requests a new player heading. It is read at the start of the
// next tick. Several requests may arrive between ticks; each is judged
// against the heading of the last move, so no sequence of them can reverse
// the player into its own trail. No-ops and requests after the attempt
// ended are rejected.
func (e *Engine) SetHeading(d game.Direction) bool {
	if e.state.Terminal() || !e.player.Alive {
		return false
	}
	if d > game.Right || d == e.player.Heading || d == e.moved.Opposite() {
		return false
	}
	e.player.Heading = d
	e.inputs = append(e.inputs, Input{Tick: e.ticks + 1, Heading: d})
	return true
}

// Tick advances the attempt by one step and reports whether anything was
// processed. Ticks outside Running, or while paused, are no-ops.
func (e *Engine) Tick() bool {
	if e.state != Running || e.paused {
		return false
	}
	e.ticks++

	e.moved = e.player.Heading
	if e.advance(e.player) {
		// Every opponent decides against the same grid before any of them
		// moves; the player's new cell is already visible.
		for _, b := range e.bots {
			if b.Alive {
				b.Heading = Decide(*b, e.grid, e.ai)
			}
		}
		for _, b := range e.bots {
			e.advance(b)
		}
	}

	e.evaluate()
	return true
}

// advance moves a live agent one cell, killing it on a wall or trail.
func (e *Engine) advance(a *game.Agent) bool {
	if !a.Alive {
		return false
	}
	next := a.Next()
	if !e.grid.Free(next) {
		a.Kill()
		e.logger.Debug("agent crashed", "agent", a.ID, "tick", e.ticks, "x", next.X, "y", next.Y, "wall", !e.grid.InBounds(next))
		return false
	}
	if err := e.grid.Occupy(next, a.Trail); err != nil {
		a.Kill()
		e.logger.Error("occupy after free check", "agent", a.ID, "err", err)
		return false
	}
	a.Pos = next
	return true
}

func (e *Engine) evaluate() {
	switch {
	case !e.player.Alive:
		e.state = Lost
	case len(e.bots) > 0 && e.survivors() == 0:
		e.state = Won
	default:
		return
	}
	e.logger.Info("attempt finished", "state", e.state, "ticks", e.ticks, "elapsed", e.Elapsed())
	e.notify()
}

func (e *Engine) survivors() int {
	n := 0
	for _, b := range e.bots {
		if b.Alive {
			n++
		}
	}
	return n
}

func (e *Engine) notify() {
	if e.state == Won && e.winReporter != nil {
		e.winReporter.ReportWin(WinEvent{
			AttemptID: e.attemptID,
			Date:      e.cfg.Date,
			Ticks:     e.ticks,
			Elapsed:   e.Elapsed(),
		})
	}
	if e.observer != nil {
		e.observer.ObserveOutcome(Outcome{
			AttemptID: e.attemptID,
			Date:      e.cfg.Date,
			State:     e.state,
			Ticks:     e.ticks,
			Elapsed:   e.Elapsed(),
			Survivors: e.survivors(),
		})
	}
}
