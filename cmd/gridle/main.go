package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/config"
	"github.com/brensch/gridle/logging"
	"github.com/brensch/gridle/rules"
	"github.com/brensch/gridle/session"
	"github.com/brensch/gridle/store"
)

func main() {
	fs := flag.NewFlagSet("gridle", flag.ExitOnError)
	flags := config.Bind(fs)
	date := fs.String("date", "", "Challenge date (YYYY-MM-DD); defaults to today in UTC")
	offline := fs.Bool("offline", false, "Keep nothing on disk: in-memory cache, no win log or replays")
	_ = fs.Parse(os.Args[1:])

	cfg, err := flags.Resolve()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// The terminal belongs to the UI; logs go to a file under the data dir.
	var logOut io.Writer = io.Discard
	if !*offline {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Fatalf("create data dir: %v", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.DataDir, "gridle.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	today := challenge.Today(time.Now())
	if *date == "" {
		*date = today
	}

	loader := &challenge.Loader{Cache: challenge.NewMemoryCache(), Logger: logger}
	var opts []rules.Option
	var wins *store.WinLog
	if !*offline {
		db, err := store.OpenSQLite(cfg.CachePath, logger)
		if err != nil {
			log.Fatalf("open challenge cache: %v", err)
		}
		defer db.Close()
		loader.Cache = db
		opts = append(opts, rules.WithOutcomeObserver(db))

		wins, err = store.OpenWinLog(cfg.WinLog, logger)
		if err != nil {
			log.Fatalf("open win log: %v", err)
		}
		defer wins.Close()
		if *date == today {
			opts = append(opts, rules.WithWinReporter(wins))
		}
	}

	ch, err := loader.Load(context.Background(), *date)
	if err != nil {
		log.Fatalf("load challenge: %v", err)
	}

	streak := 0
	if wins != nil {
		if streak, err = wins.Streak(today); err != nil {
			log.Fatalf("streak: %v", err)
		}
	}

	engine := rules.NewEngine(ch, append(opts, rules.WithLogger(logger))...)
	recorder := store.NewReplayRecorder(ch, "human")
	updates := make(chan rules.Snapshot, 1)
	sess := session.New(engine,
		session.WithLogger(logger),
		session.WithSnapshotHandler(func(s rules.Snapshot) {
			recorder.Record(s)
			publishLatest(updates, s)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan finishedMsg, 1)
	go func() {
		snap, err := sess.Run(ctx)
		done <- finishedMsg{snap: snap, err: err}
	}()

	p := tea.NewProgram(initialModel(sess, updates, done, streak), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("ui: %v", err)
	}
	cancel()
	<-sess.Done()

	final := engine.Snapshot()
	if !*offline && final.Tick > 0 {
		if path, err := store.WriteReplay(cfg.ReplayDir, recorder.Finish(engine.Inputs())); err != nil {
			logger.Error("write replay", "err", err)
		} else {
			logger.Info("replay written", "path", path)
		}
	}

	fmt.Printf("GRIDLE %s: %s after %d ticks\n", final.Date, final.State, final.Tick)
	if wins != nil {
		if s, err := wins.Streak(today); err == nil {
			fmt.Printf("Current streak: %d\n", s)
		}
	}
}

// publishLatest replaces any snapshot the UI has not read yet.
func publishLatest(ch chan rules.Snapshot, s rules.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
