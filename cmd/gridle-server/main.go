package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/config"
	"github.com/brensch/gridle/logging"
	"github.com/brensch/gridle/server"
	"github.com/brensch/gridle/store"
)

func main() {
	fs := flag.NewFlagSet("gridle-server", flag.ExitOnError)
	flags := config.Bind(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := flags.Resolve()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	db, err := store.OpenSQLite(cfg.CachePath, logger)
	if err != nil {
		log.Fatalf("open challenge cache: %v", err)
	}
	defer db.Close()

	wins, err := store.OpenWinLog(cfg.WinLog, logger)
	if err != nil {
		log.Fatalf("open win log: %v", err)
	}
	defer wins.Close()

	events := store.NewEventLog(cfg.EventDir, logger)
	defer events.Close()

	s := server.New(server.Deps{
		Loader:    &challenge.Loader{Cache: db, Logger: logger},
		Wins:      wins,
		DB:        db,
		Events:    events,
		ReplayDir: cfg.ReplayDir,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// Shutdown does not track hijacked websockets; cancelling the base
		// context abandons their attempts.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gridle server listening", "addr", cfg.Listen, "today", challenge.Today(time.Now()), "wins", wins.Count())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
	logger.Info("gridle server stopped")
}
