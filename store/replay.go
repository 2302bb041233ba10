package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/game"
	"github.com/brensch/gridle/rules"
)

const replaySchema = "gridle_replay_tick_v1"

// ReplayTickRow is one (attempt, tick) snapshot.
//
// Inputs holds the player headings accepted just before this tick, in the
// order they were applied. Together with Date this is enough to re-run the
// attempt with rules.Replay.
type ReplayTickRow struct {
	AttemptID string `parquet:"attempt_id,dict"`
	Date      string `parquet:"date,dict"`
	Seed      int64  `parquet:"seed"`
	Tick      int32  `parquet:"tick"`
	Cols      int32  `parquet:"cols"`
	Rows      int32  `parquet:"rows"`
	State     string `parquet:"state,dict"`

	Inputs []string      `parquet:"inputs"`
	Agents []ReplayAgent `parquet:"agents"`

	// Source records what drove the player: "human" or "autopilot".
	Source string `parquet:"source,dict"`
}

type ReplayAgent struct {
	ID           string `parquet:"id,dict"`
	X            int32  `parquet:"x"`
	Y            int32  `parquet:"y"`
	Heading      string `parquet:"heading,dict"`
	Alive        bool   `parquet:"alive"`
	Controllable bool   `parquet:"controllable"`
}

// ReplayRecorder collects rows from the snapshots of a single attempt.
type ReplayRecorder struct {
	cfg    challenge.Config
	source string
	rows   []ReplayTickRow
}

func NewReplayRecorder(cfg challenge.Config, source string) *ReplayRecorder {
	return &ReplayRecorder{cfg: cfg, source: source}
}

// Record appends a row for snap. A later snapshot of an already recorded
// tick (pause, resume, abandon) only updates that row's state.
func (r *ReplayRecorder) Record(snap rules.Snapshot) {
	if n := len(r.rows); n > 0 && r.rows[n-1].Tick == int32(snap.Tick) {
		r.rows[n-1].State = snap.State.String()
		return
	}
	row := ReplayTickRow{
		AttemptID: snap.AttemptID,
		Date:      snap.Date,
		Seed:      int64(r.cfg.Seed),
		Tick:      int32(snap.Tick),
		Cols:      int32(snap.Cols),
		Rows:      int32(snap.Rows),
		State:     snap.State.String(),
		Source:    r.source,
		Agents:    make([]ReplayAgent, 0, len(snap.Agents)),
	}
	for _, a := range snap.Agents {
		row.Agents = append(row.Agents, ReplayAgent{
			ID:           a.ID,
			X:            int32(a.Pos.X),
			Y:            int32(a.Pos.Y),
			Heading:      a.Heading.String(),
			Alive:        a.Alive,
			Controllable: a.Controllable,
		})
	}
	r.rows = append(r.rows, row)
}

// Finish attaches the engine's input log to the recorded rows.
func (r *ReplayRecorder) Finish(inputs []rules.Input) []ReplayTickRow {
	byTick := make(map[int32]int, len(r.rows))
	for i, row := range r.rows {
		byTick[row.Tick] = i
	}
	for _, in := range inputs {
		if i, ok := byTick[int32(in.Tick)]; ok {
			r.rows[i].Inputs = append(r.rows[i].Inputs, in.Heading.String())
		}
	}
	return r.rows
}

// InputsFromRows rebuilds the input log of one attempt.
func InputsFromRows(rows []ReplayTickRow) ([]rules.Input, error) {
	sorted := append([]ReplayTickRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })

	var inputs []rules.Input
	for _, row := range sorted {
		for _, h := range row.Inputs {
			d, err := game.ParseDirection(h)
			if err != nil {
				return nil, fmt.Errorf("tick %d: %w", row.Tick, err)
			}
			inputs = append(inputs, rules.Input{Tick: int(row.Tick), Heading: d})
		}
	}
	return inputs, nil
}

// WriteReplay writes rows into outDir/tmp and then atomically moves the file
// into outDir, so readers never observe partially-written files.
func WriteReplay(outDir string, rows []ReplayTickRow) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to write")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%d.parquet", rows[0].Date, rows[0].AttemptID, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", replaySchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

func ReadReplay(path string) ([]ReplayTickRow, error) {
	rows, err := parquet.ReadFile[ReplayTickRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
