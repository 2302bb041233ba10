package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/rules"
)

// SQLiteStore caches daily challenges and records attempt outcomes.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS challenges (
			date TEXT PRIMARY KEY,
			config_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			state TEXT NOT NULL,
			ticks INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			survivors INTEGER NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_date ON attempts(date, state)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements challenge.Cache. Rows that no longer decode are reported
// as misses.
func (s *SQLiteStore) Get(ctx context.Context, date string) (challenge.Config, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM challenges WHERE date = ?`, date).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return challenge.Config{}, false, nil
	}
	if err != nil {
		return challenge.Config{}, false, fmt.Errorf("query challenge %s: %w", date, err)
	}

	var cfg challenge.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		s.logger.Debug("discarding undecodable cached challenge", "date", date, "err", err)
		return challenge.Config{}, false, nil
	}
	return cfg, true, nil
}

// Put implements challenge.Cache.
func (s *SQLiteStore) Put(ctx context.Context, cfg challenge.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO challenges (date, config_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET config_json = excluded.config_json, created_at = excluded.created_at`,
		cfg.Date, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store challenge %s: %w", cfg.Date, err)
	}
	return nil
}

// RecordOutcome stores how an attempt ended.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, o rules.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attempts (attempt_id, date, state, ticks, elapsed_ms, survivors, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.AttemptID, o.Date, o.State.String(), o.Ticks, o.Elapsed.Milliseconds(), o.Survivors,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.AttemptID, err)
	}
	return nil
}

// ObserveOutcome implements rules.OutcomeObserver.
func (s *SQLiteStore) ObserveOutcome(o rules.Outcome) {
	if err := s.RecordOutcome(context.Background(), o); err != nil {
		s.logger.Error("record outcome failed", "attempt", o.AttemptID, "err", err)
	}
}

// DayStats summarises the attempts of one date.
type DayStats struct {
	Date      string `json:"date"`
	Attempts  int    `json:"attempts"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
	Abandoned int    `json:"abandoned"`
	BestTicks int    `json:"best_ticks,omitempty"`
}

func (s *SQLiteStore) DayStats(ctx context.Context, date string) (DayStats, error) {
	st := DayStats{Date: date}
	var best sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(state = 'won'), 0),
			COALESCE(SUM(state = 'lost'), 0),
			COALESCE(SUM(state = 'abandoned'), 0),
			MIN(CASE WHEN state = 'won' THEN ticks END)
		FROM attempts WHERE date = ?`, date,
	).Scan(&st.Attempts, &st.Wins, &st.Losses, &st.Abandoned, &best)
	if err != nil {
		return DayStats{}, fmt.Errorf("query stats %s: %w", date, err)
	}
	if best.Valid {
		st.BestTicks = int(best.Int64)
	}
	return st, nil
}
