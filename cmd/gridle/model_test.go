package main

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/game"
	"github.com/brensch/gridle/rules"
)

type fakeController struct {
	headings []game.Direction
	calls    []string
}

func (f *fakeController) SetHeading(d game.Direction) { f.headings = append(f.headings, d) }
func (f *fakeController) Pause()                      { f.calls = append(f.calls, "pause") }
func (f *fakeController) Resume()                     { f.calls = append(f.calls, "resume") }
func (f *fakeController) Abandon()                    { f.calls = append(f.calls, "abandon") }

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func startedSnapshot(t *testing.T) rules.Snapshot {
	t.Helper()
	cfg, err := challenge.Generate("2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	e := rules.NewEngine(cfg)
	e.Start()
	return e.Snapshot()
}

func TestModelKeys(t *testing.T) {
	ctl := &fakeController{}
	var m tea.Model = initialModel(ctl, nil, nil, 0)
	m, _ = m.Update(startedSnapshot(t))

	for _, k := range []string{"left", "w", "d", "up", "x", "p", "q"} {
		m, _ = m.Update(key(k))
	}
	wantHeadings := []game.Direction{game.Left, game.Up, game.Right, game.Up}
	if len(ctl.headings) != len(wantHeadings) {
		t.Fatalf("headings = %v, want %v", ctl.headings, wantHeadings)
	}
	for i := range wantHeadings {
		if ctl.headings[i] != wantHeadings[i] {
			t.Fatalf("headings = %v, want %v", ctl.headings, wantHeadings)
		}
	}
	if strings.Join(ctl.calls, ",") != "pause,abandon" {
		t.Fatalf("calls = %v", ctl.calls)
	}

	// A paused snapshot flips p to resume.
	snap := startedSnapshot(t)
	snap.Paused = true
	m, _ = m.Update(snap)
	m, _ = m.Update(key("p"))
	if ctl.calls[len(ctl.calls)-1] != "resume" {
		t.Fatalf("calls = %v", ctl.calls)
	}
}

func TestModelFinished(t *testing.T) {
	ctl := &fakeController{}
	var m tea.Model = initialModel(ctl, nil, nil, 3)
	snap := startedSnapshot(t)
	snap.State = rules.Lost
	snap.Tick = 12
	m, _ = m.Update(finishedMsg{snap: snap, err: errors.New("boom")})

	// Steering after the end is ignored; q exits.
	m, _ = m.Update(key("a"))
	if len(ctl.headings) != 0 {
		t.Fatalf("heading sent after finish")
	}
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatalf("q after finish did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q after finish returned %T", cmd())
	}

	view := m.View()
	for _, want := range []string{"GRIDLE 2024-01-01", "crashed after 12 ticks", "streak 3", "boom"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewDrawsGrid(t *testing.T) {
	m := initialModel(&fakeController{}, nil, nil, 0)
	if !strings.Contains(m.View(), "Loading") {
		t.Fatalf("empty model view = %q", m.View())
	}
	next, _ := m.Update(startedSnapshot(t))
	view := next.View()
	// Title, board rows inside a top and bottom border, help line.
	if lines := strings.Count(view, "\n"); lines < 34+2 {
		t.Fatalf("view has %d lines:\n%s", lines, view)
	}
	if !strings.Contains(view, "▲▲") {
		t.Fatalf("player head missing:\n%s", view)
	}
}
