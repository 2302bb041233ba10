// Package challenge derives the daily puzzle parameters.
//
// Everything here is a pure function of the UTC date string so that every
// player sees the same grid, opponent count and tick rate on a given day.
package challenge

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the only accepted date form.
const DateLayout = "2006-01-02"

const (
	MinCols           = 12
	MaxCols           = 20
	MinRows           = 24
	MaxRows           = 48
	MinOpponents      = 1
	MaxOpponents      = 8
	MinTicksPerSecond = 14
	MaxTicksPerSecond = 21
)

var ErrInvalidDateFormat = errors.New("invalid date format")

// Config is the immutable description of one day's challenge.
type Config struct {
	Date           string `json:"date" yaml:"date"`
	Seed           uint32 `json:"seed" yaml:"seed"`
	Cols           int    `json:"cols" yaml:"cols"`
	Rows           int    `json:"rows" yaml:"rows"`
	Opponents      int    `json:"opponentCount" yaml:"opponent_count"`
	TicksPerSecond int    `json:"ticksPerSecond" yaml:"ticks_per_second"`
}

// TickInterval is the wall-clock duration of one tick at the configured rate.
func (c Config) TickInterval() time.Duration {
	if c.TicksPerSecond <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TicksPerSecond)
}

// Validate reports whether c could have been produced by Generate.
func (c Config) Validate() error {
	if err := ValidateDate(c.Date); err != nil {
		return err
	}
	if c.Seed != Seed(c.Date) {
		return fmt.Errorf("seed %d does not match date %s", c.Seed, c.Date)
	}
	if c.Cols < MinCols || c.Cols > MaxCols {
		return fmt.Errorf("cols %d out of range [%d,%d]", c.Cols, MinCols, MaxCols)
	}
	if c.Rows < MinRows || c.Rows > MaxRows {
		return fmt.Errorf("rows %d out of range [%d,%d]", c.Rows, MinRows, MaxRows)
	}
	if c.Opponents < MinOpponents || c.Opponents > MaxOpponents {
		return fmt.Errorf("opponents %d out of range [%d,%d]", c.Opponents, MinOpponents, MaxOpponents)
	}
	if c.TicksPerSecond < MinTicksPerSecond || c.TicksPerSecond > MaxTicksPerSecond {
		return fmt.Errorf("ticks per second %d out of range [%d,%d]", c.TicksPerSecond, MinTicksPerSecond, MaxTicksPerSecond)
	}
	// In-range values must still match what the date generates.
	if want, _ := Generate(c.Date); c != want {
		return fmt.Errorf("config %+v does not match the generated challenge %+v", c, want)
	}
	return nil
}

// ValidateDate accepts only real calendar dates written as YYYY-MM-DD.
func ValidateDate(date string) error {
	t, err := time.Parse(DateLayout, date)
	if err != nil || t.Format(DateLayout) != date {
		return fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	return nil
}

// Today returns the UTC calendar day of now. Local time is never used so the
// challenge boundary is UTC midnight for everyone.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

// Generate builds the challenge for date.
//
// Draw order is fixed: cols, rows, opponents, tick rate. Each draw consumes a
// single step of a throwaway Rng, so reordering them changes every value.
func Generate(date string) (Config, error) {
	if err := ValidateDate(date); err != nil {
		return Config{}, err
	}

	seed := Seed(date)
	rng := NewRng(seed)

	cols := MinCols + rng.Intn(9)
	rows := MinRows + rng.Intn(25)
	opponents := clamp(rng.Intn(6)+(cols*rows)/240, MinOpponents, MaxOpponents)
	tps := MinTicksPerSecond + rng.Intn(8)

	return Config{
		Date:           date,
		Seed:           seed,
		Cols:           cols,
		Rows:           rows,
		Opponents:      opponents,
		TicksPerSecond: tps,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
