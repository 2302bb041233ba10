package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/gridle/game"
	"github.com/brensch/gridle/rules"
)

// controller is the input side of a session.
type controller interface {
	SetHeading(game.Direction)
	Pause()
	Resume()
	Abandon()
}

// finishedMsg carries the session result once Run returns.
type finishedMsg struct {
	snap rules.Snapshot
	err  error
}

type model struct {
	ctl     controller
	updates <-chan rules.Snapshot
	done    <-chan finishedMsg

	snap     rules.Snapshot
	finished bool
	streak   int
	status   string
}

func initialModel(ctl controller, updates <-chan rules.Snapshot, done <-chan finishedMsg, streak int) model {
	return model{ctl: ctl, updates: updates, done: done, streak: streak}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), waitForFinish(m.done))
}

func waitForSnapshot(updates <-chan rules.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func waitForFinish(done <-chan finishedMsg) tea.Cmd {
	return func() tea.Msg {
		return <-done
	}
}

var keyHeadings = map[string]game.Direction{
	"up": game.Up, "w": game.Up,
	"down": game.Down, "s": game.Down,
	"left": game.Left, "a": game.Left,
	"right": game.Right, "d": game.Right,
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if m.finished {
			if key == "q" || key == "ctrl+c" || key == "enter" {
				return m, tea.Quit
			}
			return m, nil
		}
		if d, ok := keyHeadings[key]; ok {
			m.ctl.SetHeading(d)
			return m, nil
		}
		switch key {
		case "p", " ":
			if m.snap.Paused {
				m.ctl.Resume()
			} else {
				m.ctl.Pause()
			}
		case "q", "ctrl+c":
			m.ctl.Abandon()
		}
	case rules.Snapshot:
		m.snap = msg
		return m, waitForSnapshot(m.updates)
	case finishedMsg:
		m.snap = msg.snap
		m.finished = true
		if msg.err != nil {
			m.status = msg.err.Error()
		}
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7fdbff"))
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#555555"))
	headStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	wonStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ecc40"))
	lostStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4136"))
	trailStyles = map[game.Trail]lipgloss.Style{}
)

func trailStyle(t game.Trail) lipgloss.Style {
	if s, ok := trailStyles[t]; ok {
		return s
	}
	s := lipgloss.NewStyle().Foreground(lipgloss.Color(t.Color()))
	trailStyles[t] = s
	return s
}

func (m model) View() string {
	s := m.snap
	if s.Cols == 0 {
		return "Loading challenge...\n"
	}

	heads := make(map[game.Point]rules.AgentSnapshot, len(s.Agents))
	for _, a := range s.Agents {
		if a.Alive {
			heads[a.Pos] = a
		}
	}

	var board strings.Builder
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Cols; x++ {
			owner := s.Owner(x, y)
			switch a, isHead := heads[game.Point{X: x, Y: y}]; {
			case isHead:
				board.WriteString(headStyle.Inherit(trailStyle(a.Trail)).Render(headGlyph(a.Heading)))
			case owner == game.TrailNone:
				board.WriteString("  ")
			default:
				board.WriteString(trailStyle(owner).Render("██"))
			}
		}
		if y < s.Rows-1 {
			board.WriteByte('\n')
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("GRIDLE %s", s.Date)))
	b.WriteString(fmt.Sprintf("  tick %d  %.1fs  opponents %d/%d  streak %d\n",
		s.Tick, float64(s.ElapsedMs)/1000, s.Alive(), len(s.Agents)-1, m.streak))
	b.WriteString(boardStyle.Render(board.String()))
	b.WriteByte('\n')

	switch {
	case m.finished && s.State == rules.Won:
		b.WriteString(wonStyle.Render(fmt.Sprintf("You won in %d ticks!", s.Tick)))
	case m.finished && s.State == rules.Lost:
		b.WriteString(lostStyle.Render(fmt.Sprintf("You crashed after %d ticks.", s.Tick)))
	case m.finished:
		b.WriteString(helpStyle.Render("Attempt " + s.State.String()))
	case s.Paused:
		b.WriteString(helpStyle.Render("Paused. Press p to resume."))
	default:
		b.WriteString(helpStyle.Render("arrows/wasd steer · p pause · q quit"))
	}
	if m.finished {
		b.WriteString("\n" + helpStyle.Render("Press q to exit."))
	}
	if m.status != "" {
		b.WriteString("\n" + lostStyle.Render(m.status))
	}
	b.WriteByte('\n')
	return b.String()
}

func headGlyph(d game.Direction) string {
	switch d {
	case game.Up:
		return "▲▲"
	case game.Down:
		return "▼▼"
	case game.Left:
		return "◀◀"
	default:
		return "▶▶"
	}
}
