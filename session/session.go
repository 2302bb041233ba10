// Package session drives an engine at its challenge's tick rate.
//
// The engine is single-threaded. A Session owns it from one goroutine (Run)
// and accepts input from any goroutine through a command channel, so input
// is only applied between ticks.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/brensch/gridle/game"
	"github.com/brensch/gridle/rules"
)

type commandKind int

const (
	cmdHeading commandKind = iota + 1
	cmdPause
	cmdResume
	cmdAbandon
)

type command struct {
	kind    commandKind
	heading game.Direction
}

type Option func(*Session)

// WithTickSource replaces the wall-clock ticker, mainly for tests.
func WithTickSource(ch <-chan time.Time) Option { return func(s *Session) { s.ticks = ch } }

// WithSnapshotHandler is called from the Run goroutine after every processed
// tick and every accepted control command.
func WithSnapshotHandler(fn func(rules.Snapshot)) Option {
	return func(s *Session) { s.onSnapshot = fn }
}

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

type Session struct {
	engine     *rules.Engine
	cmds       chan command
	done       chan struct{}
	ticks      <-chan time.Time
	onSnapshot func(rules.Snapshot)
	logger     *slog.Logger
}

func New(e *rules.Engine, opts ...Option) *Session {
	s := &Session{
		engine: e,
		cmds:   make(chan command, 16),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Session) SetHeading(d game.Direction) { s.send(command{kind: cmdHeading, heading: d}) }
func (s *Session) Pause()                      { s.send(command{kind: cmdPause}) }
func (s *Session) Resume()                     { s.send(command{kind: cmdResume}) }
func (s *Session) Abandon()                    { s.send(command{kind: cmdAbandon}) }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) send(c command) {
	select {
	case s.cmds <- c:
	case <-s.done:
	}
}

// Run starts the attempt and ticks it until it reaches a terminal state. If
// ctx ends first the attempt is abandoned and ctx.Err() is returned.
func (s *Session) Run(ctx context.Context) (rules.Snapshot, error) {
	defer close(s.done)

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.engine.Config().TickInterval())
		defer ticker.Stop()
		ticks = ticker.C
	}

	s.engine.Start()
	s.emit()

	for !s.engine.State().Terminal() {
		select {
		case <-ctx.Done():
			s.engine.Abandon()
			s.emit()
			return s.engine.Snapshot(), ctx.Err()
		case c := <-s.cmds:
			if s.apply(c) {
				s.emit()
			}
		case <-ticks:
			if s.engine.Tick() {
				s.emit()
			}
		}
	}

	snap := s.engine.Snapshot()
	s.logger.Info("session finished", "attempt", snap.AttemptID, "state", snap.State, "ticks", snap.Tick)
	return snap, nil
}

func (s *Session) apply(c command) bool {
	switch c.kind {
	case cmdHeading:
		// A heading change shows up in the next tick's snapshot.
		s.engine.SetHeading(c.heading)
		return false
	case cmdPause:
		return s.engine.Pause()
	case cmdResume:
		return s.engine.Resume()
	case cmdAbandon:
		return s.engine.Abandon()
	}
	return false
}

func (s *Session) emit() {
	if s.onSnapshot != nil {
		s.onSnapshot(s.engine.Snapshot())
	}
}
