package rules

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/game"
)

// quietSeed yields eight AI draws above RandomTurnChance, so unblocked
// opponents go straight for the first ticks.
const quietSeed = 2

func testConfig(cols, rows int) challenge.Config {
	return challenge.Config{Date: "2024-01-01", Seed: quietSeed, Cols: cols, Rows: rows, Opponents: 1, TicksPerSecond: 20}
}

func player(x, y int, h game.Direction) *game.Agent {
	return &game.Agent{ID: game.PlayerID, Pos: game.Point{X: x, Y: y}, Heading: h, Alive: true, Trail: game.TrailPlayer, Controllable: true}
}

func bot(i, x, y int, h game.Direction) *game.Agent {
	return &game.Agent{ID: game.OpponentID(i), Pos: game.Point{X: x, Y: y}, Heading: h, Alive: true, Trail: game.OpponentTrail(i)}
}

func newTestEngine(t *testing.T, cfg challenge.Config, grid *game.Grid, agents ...*game.Agent) *Engine {
	t.Helper()
	if grid == nil {
		grid = game.NewGrid(cfg.Cols, cfg.Rows)
	}
	e, err := NewEngineFrom(cfg, grid, agents, WithAttemptID("test"))
	if err != nil {
		t.Fatalf("NewEngineFrom: %v", err)
	}
	e.Start()
	return e
}

func dumpSnapshot(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tick=%d State=%s Size=%dx%d\n", s.Tick, s.State, s.Cols, s.Rows)
	heads := map[game.Point]bool{}
	for _, a := range s.Agents {
		fmt.Fprintf(&b, "Agent %s pos=(%d,%d) heading=%s alive=%v\n", a.ID, a.Pos.X, a.Pos.Y, a.Heading, a.Alive)
		heads[a.Pos] = true
	}
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Cols; x++ {
			switch tr := s.Owner(x, y); {
			case heads[game.Point{X: x, Y: y}]:
				b.WriteByte('H')
			case tr == game.TrailNone:
				b.WriteByte('.')
			default:
				b.WriteByte(byte('0' + tr%10))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestPlayerMovesIntoEmptyCell(t *testing.T) {
	e := newTestEngine(t, testConfig(20, 36), nil, player(5, 5, game.Right))
	if !e.Tick() {
		t.Fatalf("tick not processed")
	}
	p := e.Player()
	if p.Pos != (game.Point{X: 6, Y: 5}) || !p.Alive {
		t.Fatalf("player = %+v, want alive at (6,5)", p)
	}
	if !e.Grid().Occupied(game.Point{X: 6, Y: 5}) {
		t.Fatalf("destination cell not occupied\n%s", dumpSnapshot(e.Snapshot()))
	}
	if e.State() != Running {
		t.Fatalf("state = %s, want running", e.State())
	}
}

func TestPlayerLeavingGridLoses(t *testing.T) {
	obs := &recorder{}
	grid := game.NewGrid(20, 36)
	e, err := NewEngineFrom(testConfig(20, 36), grid, []*game.Agent{player(19, 5, game.Right), bot(0, 2, 30, game.Up)}, WithOutcomeObserver(obs), WithWinReporter(obs))
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	e.Tick()

	if e.Player().Alive {
		t.Fatalf("player survived leaving the grid")
	}
	if e.State() != Lost {
		t.Fatalf("state = %s, want lost", e.State())
	}
	if e.Player().Pos != (game.Point{X: 19, Y: 5}) {
		t.Fatalf("dead player moved to %v", e.Player().Pos)
	}
	// Opponents don't move on the tick the player dies.
	if got := e.Snapshot().Agents[1].Pos; got != (game.Point{X: 2, Y: 30}) {
		t.Fatalf("opponent moved to %v after player death", got)
	}
	if len(obs.wins) != 0 || len(obs.outcomes) != 1 || obs.outcomes[0].State != Lost {
		t.Fatalf("wins=%v outcomes=%v", obs.wins, obs.outcomes)
	}
}

func TestBoxedOpponentKeepsHeadingAndDies(t *testing.T) {
	cfg := testConfig(20, 36)
	grid := game.NewGrid(cfg.Cols, cfg.Rows)
	wall := game.OpponentTrail(7)
	for _, p := range []game.Point{{X: 10, Y: 9}, {X: 9, Y: 10}, {X: 11, Y: 10}} {
		if err := grid.Occupy(p, wall); err != nil {
			t.Fatal(err)
		}
	}
	b := bot(0, 10, 10, game.Up)

	if got := Decide(*b, grid, panicSource{t}); got != game.Up {
		t.Fatalf("boxed opponent decided %s, want up", got)
	}

	obs := &recorder{}
	e, err := NewEngineFrom(cfg, grid, []*game.Agent{player(2, 30, game.Up), b}, WithWinReporter(obs))
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	e.Tick()

	snap := e.Snapshot()
	if snap.Agents[1].Alive || snap.Agents[1].Heading != game.Up {
		t.Fatalf("boxed opponent should die heading up\n%s", dumpSnapshot(snap))
	}
	if e.State() != Won {
		t.Fatalf("state = %s, want won", e.State())
	}
	if len(obs.wins) != 1 {
		t.Fatalf("win reported %d times", len(obs.wins))
	}
	w := obs.wins[0]
	if w.Date != cfg.Date || w.Ticks != 1 || w.Elapsed != 50*time.Millisecond || w.AttemptID != e.AttemptID() {
		t.Fatalf("unexpected win event %+v", w)
	}
}

func TestOpponentSeesPlayersNewCellSameTick(t *testing.T) {
	// The player steps into (6,5), directly in front of the opponent. The
	// opponent must see it and turn left (Down turns to Right).
	e := newTestEngine(t, testConfig(20, 36), nil, player(5, 5, game.Right), bot(0, 6, 4, game.Down))
	e.Tick()

	snap := e.Snapshot()
	b := snap.Agents[1]
	if !b.Alive || b.Heading != game.Right || b.Pos != (game.Point{X: 7, Y: 4}) {
		t.Fatalf("opponent = %+v, want alive at (7,4) heading right\n%s", b, dumpSnapshot(snap))
	}
}

func TestOpponentsMoveInOrder(t *testing.T) {
	// Both opponents aim at (4,10); the first to move takes it.
	e := newTestEngine(t, testConfig(20, 36), nil, player(15, 30, game.Up), bot(0, 3, 10, game.Right), bot(1, 5, 10, game.Left), bot(2, 0, 0, game.Down))
	e.Tick()

	snap := e.Snapshot()
	if !snap.Agents[1].Alive || snap.Agents[1].Pos != (game.Point{X: 4, Y: 10}) {
		t.Fatalf("first opponent should hold (4,10)\n%s", dumpSnapshot(snap))
	}
	if snap.Agents[2].Alive {
		t.Fatalf("second opponent should crash into the first\n%s", dumpSnapshot(snap))
	}
	if snap.Owner(4, 10) != game.OpponentTrail(0) {
		t.Fatalf("cell (4,10) owned by %d", snap.Owner(4, 10))
	}
	if e.State() != Running {
		t.Fatalf("state = %s", e.State())
	}
}

func TestSetHeadingRejectsReversal(t *testing.T) {
	e := newTestEngine(t, testConfig(20, 36), nil, player(5, 5, game.Right))
	if e.SetHeading(game.Left) {
		t.Fatalf("reversal accepted")
	}
	if !e.SetHeading(game.Up) {
		t.Fatalf("up rejected")
	}
	// Left reverses the last move even though the heading is now Up.
	if e.SetHeading(game.Left) {
		t.Fatalf("reversal of the last move accepted after a turn")
	}
	if !e.SetHeading(game.Down) {
		t.Fatalf("down rejected")
	}
	e.Tick()
	if got := e.Player().Pos; got != (game.Point{X: 5, Y: 6}) {
		t.Fatalf("player at %v, want (5,6)", got)
	}
	if n := len(e.Inputs()); n != 2 {
		t.Fatalf("recorded %d inputs, want 2", n)
	}
	if e.SetHeading(game.Up) {
		t.Fatalf("reversal of down accepted after the tick")
	}
}

func TestQuickTurnsCannotReverseIntoTrail(t *testing.T) {
	e := newTestEngine(t, testConfig(20, 36), nil, player(5, 30, game.Up))
	e.Tick()
	if !e.SetHeading(game.Left) {
		t.Fatalf("left rejected")
	}
	if e.SetHeading(game.Down) {
		t.Fatalf("down accepted before the player moved left")
	}
	e.Tick()
	p := e.Player()
	if !p.Alive || e.State() != Running || p.Pos != (game.Point{X: 4, Y: 29}) {
		t.Fatalf("player = %+v state=%s\n%s", p, e.State(), dumpSnapshot(e.Snapshot()))
	}
}

func TestRandomTurnOffGridKillsOpponent(t *testing.T) {
	// The opponent has a clear path up but draws into the left-turn band at
	// the left edge, so it turns off the grid and dies.
	cfg := testConfig(12, 24)
	src := &fixedSource{vals: []float64{0.001}}
	e, err := NewEngineFrom(cfg, game.NewGrid(cfg.Cols, cfg.Rows),
		[]*game.Agent{player(6, 20, game.Up), bot(0, 0, 5, game.Up)},
		WithDecisionSource(src))
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	e.Tick()

	snap := e.Snapshot()
	b := snap.Agents[1]
	if b.Alive || b.Heading != game.Left || b.Pos != (game.Point{X: 0, Y: 5}) {
		t.Fatalf("opponent = %+v, want dead at (0,5) heading left\n%s", b, dumpSnapshot(snap))
	}
	if src.draws != 1 {
		t.Fatalf("%d draws, want 1", src.draws)
	}
	if e.State() != Won {
		t.Fatalf("state = %s, want won", e.State())
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	e := newTestEngine(t, testConfig(20, 36), nil, player(19, 5, game.Right), bot(0, 2, 2, game.Down))
	e.Tick()
	if e.State() != Lost {
		t.Fatalf("state = %s", e.State())
	}
	before := dumpSnapshot(e.Snapshot())
	for i := 0; i < 5; i++ {
		if e.Tick() {
			t.Fatalf("tick processed after terminal state")
		}
	}
	if e.SetHeading(game.Up) || e.Pause() || e.Resume() || e.Abandon() || e.Start() {
		t.Fatalf("control accepted after terminal state")
	}
	if after := dumpSnapshot(e.Snapshot()); after != before {
		t.Fatalf("state changed after terminal\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPauseKeepsStateAndElapsed(t *testing.T) {
	e := newTestEngine(t, testConfig(20, 36), nil, player(5, 30, game.Up))
	e.Tick()
	e.Tick()
	elapsed := e.Elapsed()
	before := dumpSnapshot(e.Snapshot())

	if !e.Pause() {
		t.Fatalf("pause rejected")
	}
	if e.Tick() {
		t.Fatalf("tick processed while paused")
	}
	if !e.Snapshot().Paused || e.Elapsed() != elapsed {
		t.Fatalf("pause changed accounting")
	}
	if !e.Resume() || e.State() != Running {
		t.Fatalf("resume failed, state=%s", e.State())
	}
	if after := dumpSnapshot(e.Snapshot()); after != before {
		t.Fatalf("pause/resume changed state\nbefore:\n%s\nafter:\n%s", before, after)
	}
	e.Tick()
	if e.Elapsed() != 3*50*time.Millisecond {
		t.Fatalf("elapsed = %v", e.Elapsed())
	}
}

func TestTicksBeforeStartAreIgnored(t *testing.T) {
	cfg := testConfig(20, 36)
	e, err := NewEngineFrom(cfg, game.NewGrid(cfg.Cols, cfg.Rows), []*game.Agent{player(5, 5, game.Right)})
	if err != nil {
		t.Fatal(err)
	}
	if e.State() != Idle || e.Tick() {
		t.Fatalf("idle engine processed a tick")
	}
}

func TestAbandon(t *testing.T) {
	obs := &recorder{}
	cfg := testConfig(20, 36)
	e, err := NewEngineFrom(cfg, game.NewGrid(cfg.Cols, cfg.Rows), []*game.Agent{player(5, 5, game.Right), bot(0, 1, 1, game.Down)}, WithOutcomeObserver(obs), WithWinReporter(obs))
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	e.Tick()
	e.Pause()
	if !e.Abandon() {
		t.Fatalf("abandon rejected")
	}
	if e.State() != Abandoned || e.Tick() {
		t.Fatalf("abandoned attempt still ticking, state=%s", e.State())
	}
	if len(obs.wins) != 0 || len(obs.outcomes) != 1 || obs.outcomes[0].State != Abandoned {
		t.Fatalf("wins=%v outcomes=%v", obs.wins, obs.outcomes)
	}
}

func TestNewEngineFromRequiresOnePlayer(t *testing.T) {
	cfg := testConfig(20, 36)
	if _, err := NewEngineFrom(cfg, game.NewGrid(20, 36), []*game.Agent{bot(0, 1, 1, game.Down)}); err == nil {
		t.Fatalf("engine without player accepted")
	}
	if _, err := NewEngineFrom(cfg, game.NewGrid(20, 36), []*game.Agent{player(1, 1, game.Up), player(5, 5, game.Up)}); err == nil {
		t.Fatalf("engine with two players accepted")
	}
	if _, err := NewEngineFrom(cfg, game.NewGrid(20, 36), []*game.Agent{player(1, 1, game.Up), bot(0, 1, 1, game.Down)}); err == nil {
		t.Fatalf("engine with overlapping spawns accepted")
	}
}

// runDaily plays a full attempt for date with the autopilot, checking trail
// permanence after every tick.
func runDaily(t *testing.T, date string) (*Engine, []Snapshot) {
	t.Helper()
	cfg, err := challenge.Generate(date)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(cfg, WithAttemptID("daily"))
	e.Start()
	pilot := NewAutopilot(cfg.Seed)

	var snaps []Snapshot
	prev := e.Snapshot().Cells
	for !e.State().Terminal() {
		if e.Ticks() > maxReplayTicks {
			t.Fatalf("%s: attempt did not finish", date)
		}
		pilot.Steer(e)
		e.Tick()
		snap := e.Snapshot()
		for i, owner := range prev {
			if owner != game.TrailNone && snap.Cells[i] != owner {
				t.Fatalf("%s tick %d: cell %d changed from %d to %d", date, snap.Tick, i, owner, snap.Cells[i])
			}
		}
		prev = snap.Cells
		snaps = append(snaps, snap)
	}
	return e, snaps
}

func TestDailyAttemptIsDeterministic(t *testing.T) {
	for _, date := range []string{"2024-01-01", "2024-07-04", "2025-12-25"} {
		_, a := runDaily(t, date)
		_, b := runDaily(t, date)
		if len(a) != len(b) {
			t.Fatalf("%s: %d vs %d ticks", date, len(a), len(b))
		}
		for i := range a {
			if dumpSnapshot(a[i]) != dumpSnapshot(b[i]) {
				t.Fatalf("%s: tick %d differs\n%s\nvs\n%s", date, i+1, dumpSnapshot(a[i]), dumpSnapshot(b[i]))
			}
		}
		last := a[len(a)-1].State
		if last != Won && last != Lost {
			t.Fatalf("%s: ended in %s", date, last)
		}
	}
}

func TestReplayReproducesAttempt(t *testing.T) {
	e, snaps := runDaily(t, "2024-03-14")
	got, err := Replay(e.Config(), e.Inputs(), WithAttemptID("daily"))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := snaps[len(snaps)-1]
	if dumpSnapshot(got) != dumpSnapshot(want) {
		t.Fatalf("replay differs\nwant:\n%s\ngot:\n%s", dumpSnapshot(want), dumpSnapshot(got))
	}
}

func TestReplayRejectsBadInputs(t *testing.T) {
	cfg, _ := challenge.Generate("2024-03-14")
	if _, err := Replay(cfg, []Input{{Tick: 1, Heading: game.Down}}); err == nil {
		t.Fatalf("reversal input accepted")
	}
	if _, err := Replay(cfg, []Input{{Tick: 2, Heading: game.Left}, {Tick: 1, Heading: game.Up}}); err == nil {
		t.Fatalf("out of order input accepted")
	}
}

func TestReplayRejectsInvalidConfig(t *testing.T) {
	if _, err := Replay(challenge.Config{}, nil); err == nil {
		t.Fatalf("zero config replayed")
	}
	cfg, _ := challenge.Generate("2024-03-14")
	cfg.Opponents = 0
	if _, err := Replay(cfg, nil); err == nil {
		t.Fatalf("out of range config replayed")
	}
}

type recorder struct {
	wins     []WinEvent
	outcomes []Outcome
}

func (r *recorder) ReportWin(w WinEvent)      { r.wins = append(r.wins, w) }
func (r *recorder) ObserveOutcome(o Outcome) { r.outcomes = append(r.outcomes, o) }
