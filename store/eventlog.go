package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/brensch/gridle/rules"
)

// Event is one line of the attempt event log.
type Event struct {
	Time      time.Time   `json:"time"`
	Kind      string      `json:"kind"`
	AttemptID string      `json:"attempt_id"`
	Date      string      `json:"date"`
	State     rules.State `json:"state"`
	Ticks     int         `json:"ticks"`
	ElapsedMs int64       `json:"elapsed_ms,omitempty"`
	Survivors int         `json:"survivors,omitempty"`
	Source    string      `json:"source,omitempty"`
}

// EventLog writes zstd-compressed JSONL, one file per UTC day.
type EventLog struct {
	baseDir string
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewEventLog(baseDir string, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{baseDir: baseDir, now: time.Now, logger: logger}
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *EventLog) Write(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Time.IsZero() {
		ev.Time = l.now().UTC()
	}
	day := ev.Time.UTC().Format("2006-01-02")
	if day != l.curDay {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	// Flush the encoder so a crash loses at most the current line.
	return l.enc.Flush()
}

// ObserveOutcome implements rules.OutcomeObserver.
func (l *EventLog) ObserveOutcome(o rules.Outcome) {
	err := l.Write(Event{
		Kind:      "finished",
		AttemptID: o.AttemptID,
		Date:      o.Date,
		State:     o.State,
		Ticks:     o.Ticks,
		ElapsedMs: o.Elapsed.Milliseconds(),
		Survivors: o.Survivors,
	})
	if err != nil {
		l.logger.Error("event log write failed", "attempt", o.AttemptID, "err", err)
	}
}

func (l *EventLog) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.pathForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *EventLog) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	l.curDay = ""
	return err
}

func (l *EventLog) pathForDay(day string) string {
	return filepath.Join(l.baseDir, fmt.Sprintf("events-%s.jsonl.zst", day))
}

// ReadEvents decodes every event in a log file. Appended files hold several
// zstd frames; the decoder reads them back to back.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd: %w", err)
	}
	defer dec.Close()

	var events []Event
	jd := json.NewDecoder(dec)
	for {
		var ev Event
		if err := jd.Decode(&ev); err == io.EOF {
			return events, nil
		} else if err != nil {
			return events, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
}
