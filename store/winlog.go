package store

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/rules"
)

var ErrClosed = errors.New("store is closed")

// WinLog records the first win of each challenge date.
// It is backed by an append-only log file with one win per line.
//
// On startup we read the file into memory. Later wins for an already
// credited date are ignored, so the streak is credited at most once per day.
//
// Format: <date>\t<attempt_id>\t<ticks>\t<elapsed_ms>\n
// A partial final line from a crash is skipped on the next load.
type WinLog struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	wins   map[string]rules.WinEvent
	logger *slog.Logger
}

func OpenWinLog(path string, logger *slog.Logger) (*WinLog, error) {
	if path == "" {
		return nil, fmt.Errorf("win log path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	wins := make(map[string]rules.WinEvent)
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			ev, ok := parseWinLine(scanner.Text())
			if !ok {
				continue
			}
			if _, dup := wins[ev.Date]; !dup {
				wins[ev.Date] = ev
			}
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open win log: %w", err)
	}

	return &WinLog{path: path, file: file, wins: wins, logger: logger}, nil
}

func parseWinLine(line string) (rules.WinEvent, bool) {
	parts := strings.Split(strings.TrimSpace(line), "\t")
	if len(parts) != 4 || challenge.ValidateDate(parts[0]) != nil {
		return rules.WinEvent{}, false
	}
	ticks, err := strconv.Atoi(parts[2])
	if err != nil {
		return rules.WinEvent{}, false
	}
	ms, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return rules.WinEvent{}, false
	}
	return rules.WinEvent{Date: parts[0], AttemptID: parts[1], Ticks: ticks, Elapsed: time.Duration(ms) * time.Millisecond}, true
}

func (l *WinLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Record credits ev if it is the first win for its date and reports
// whether it was.
func (l *WinLog) Record(ev rules.WinEvent) (bool, error) {
	if err := challenge.ValidateDate(ev.Date); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wins[ev.Date]; ok {
		return false, nil
	}
	if l.file == nil {
		return false, ErrClosed
	}

	line := fmt.Sprintf("%s\t%s\t%d\t%d\n", ev.Date, ev.AttemptID, ev.Ticks, ev.Elapsed.Milliseconds())
	if _, err := l.file.WriteString(line); err != nil {
		return false, fmt.Errorf("append win log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return false, fmt.Errorf("sync win log: %w", err)
	}

	l.wins[ev.Date] = ev
	return true, nil
}

// ReportWin implements rules.WinReporter.
func (l *WinLog) ReportWin(ev rules.WinEvent) {
	first, err := l.Record(ev)
	if err != nil {
		l.logger.Error("record win failed", "date", ev.Date, "attempt", ev.AttemptID, "err", err)
		return
	}
	l.logger.Info("win recorded", "date", ev.Date, "attempt", ev.AttemptID, "first", first, "ticks", ev.Ticks)
}

func (l *WinLog) Won(date string) (rules.WinEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.wins[date]
	return ev, ok
}

func (l *WinLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.wins)
}

// Streak counts consecutive won days ending at today. An unwon today does
// not break a streak that reaches yesterday.
func (l *WinLog) Streak(today string) (int, error) {
	day, err := time.Parse(challenge.DateLayout, today)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", challenge.ErrInvalidDateFormat, today)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.wins[today]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for {
		if _, ok := l.wins[day.Format(challenge.DateLayout)]; !ok {
			return streak, nil
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}
