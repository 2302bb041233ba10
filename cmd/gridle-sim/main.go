package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/logging"
	"github.com/brensch/gridle/rules"
	"github.com/brensch/gridle/store"
)

// dayResult is one finished autopilot attempt.
type dayResult struct {
	cfg   challenge.Config
	final rules.Snapshot
	rows  []store.ReplayTickRow
	err   error
}

func main() {
	date := flag.String("date", challenge.Today(time.Now()), "Challenge date (YYYY-MM-DD)")
	days := flag.Int("days", 1, "Number of consecutive days to simulate starting at -date")
	workers := flag.Int("workers", 4, "Number of days simulated in parallel")
	outDir := flag.String("out-dir", "sim_replays", "Output directory for replay parquet files (empty to skip)")
	verbose := flag.Bool("v", false, "Print every tick (single worker only)")
	logLevel := flag.String("log-level", "warn", "Engine log level")
	flag.Parse()

	logger, err := logging.New(os.Stderr, "text", *logLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	start, err := time.Parse(challenge.DateLayout, *date)
	if err != nil {
		log.Fatalf("bad -date %q: %v", *date, err)
	}
	if *workers < 1 {
		*workers = 1
	}
	if *verbose && *workers > 1 {
		log.Printf("NOTE: -v forces -workers=1")
		*workers = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dates := make(chan string)
	results := make(chan dayResult, *workers)

	go func() {
		defer close(dates)
		for i := 0; i < *days; i++ {
			select {
			case dates <- start.AddDate(0, 0, i).Format(challenge.DateLayout):
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var onTick func(rules.Snapshot)
			if *verbose {
				onTick = printTick
			}
			for day := range dates {
				results <- runDay(day, rules.WithLogger(logger), onTick)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	tally := map[rules.State]int{}
	var failed int
	for res := range results {
		if res.err != nil {
			failed++
			log.Printf("%s: %v", res.cfg.Date, res.err)
			continue
		}
		tally[res.final.State]++
		log.Printf("%s %dx%d, %d opponents, %d tps: %s after %d ticks (%s), %d opponents left",
			res.cfg.Date, res.cfg.Cols, res.cfg.Rows, res.cfg.Opponents, res.cfg.TicksPerSecond,
			res.final.State, res.final.Tick, time.Duration(res.final.ElapsedMs)*time.Millisecond, res.final.Alive())

		if *outDir != "" {
			path, err := store.WriteReplay(*outDir, res.rows)
			if err != nil {
				log.Fatalf("write replay: %v", err)
			}
			log.Printf("  replay written to %s", path)
		}
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  %d won, %d lost, %d failed\n", tally[rules.Won], tally[rules.Lost], failed)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	if failed > 0 {
		os.Exit(1)
	}
}

// runDay plays one day with the autopilot and verifies the recorded inputs
// replay to the same result.
func runDay(day string, opt rules.Option, onTick func(rules.Snapshot)) dayResult {
	cfg, err := challenge.Generate(day)
	if err != nil {
		return dayResult{cfg: challenge.Config{Date: day}, err: err}
	}
	final, inputs, rows := simulate(cfg, opt, onTick)

	replayed, err := rules.Replay(cfg, inputs)
	if err != nil {
		return dayResult{cfg: cfg, err: fmt.Errorf("replay: %w", err)}
	}
	if replayed.State != final.State || replayed.Tick != final.Tick {
		return dayResult{cfg: cfg, err: fmt.Errorf("replay diverged: %s at %d, want %s at %d", replayed.State, replayed.Tick, final.State, final.Tick)}
	}
	return dayResult{cfg: cfg, final: final, rows: rows}
}

// simulate plays cfg to completion with the autopilot as fast as possible.
func simulate(cfg challenge.Config, opt rules.Option, onTick func(rules.Snapshot)) (rules.Snapshot, []rules.Input, []store.ReplayTickRow) {
	e := rules.NewEngine(cfg, opt)
	pilot := rules.NewAutopilot(cfg.Seed)
	rec := store.NewReplayRecorder(cfg, "autopilot")

	e.Start()
	rec.Record(e.Snapshot())
	for !e.State().Terminal() {
		pilot.Steer(e)
		e.Tick()
		snap := e.Snapshot()
		rec.Record(snap)
		if onTick != nil {
			onTick(snap)
		}
	}
	return e.Snapshot(), e.Inputs(), rec.Finish(e.Inputs())
}

func printTick(s rules.Snapshot) {
	parts := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		mark := ""
		if !a.Alive {
			mark = "✗"
		}
		parts = append(parts, fmt.Sprintf("%s@(%d,%d)%s%s", a.ID, a.Pos.X, a.Pos.Y, a.Heading, mark))
	}
	fmt.Printf("  Tick %3d | %d alive | %s\n", s.Tick, s.Alive(), strings.Join(parts, ", "))
}
