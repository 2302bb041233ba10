// Package config loads settings for the gridle binaries.
//
// Precedence, lowest first: built-in defaults, the YAML file, GRIDLE_* env
// vars, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen    string `yaml:"listen"`
	DataDir   string `yaml:"data_dir"`
	CachePath string `yaml:"cache_path"`
	ReplayDir string `yaml:"replay_dir"`
	EventDir  string `yaml:"event_dir"`
	WinLog    string `yaml:"win_log"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Listen:    ":8080",
		DataDir:   "data",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// withDerived fills paths left empty relative to DataDir.
func (c Config) withDerived() Config {
	if c.CachePath == "" {
		c.CachePath = filepath.Join(c.DataDir, "gridle.db")
	}
	if c.ReplayDir == "" {
		c.ReplayDir = filepath.Join(c.DataDir, "replays")
	}
	if c.EventDir == "" {
		c.EventDir = filepath.Join(c.DataDir, "events")
	}
	if c.WinLog == "" {
		c.WinLog = filepath.Join(c.DataDir, "wins.log")
	}
	return c
}

// LoadFile overlays the YAML file at path onto c. A missing file is not an
// error.
func (c Config) LoadFile(path string) (Config, error) {
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from GRIDLE_* environment variables.
func (c Config) ApplyEnv() Config {
	c.Listen = getEnvOrDefault("GRIDLE_LISTEN", c.Listen)
	c.DataDir = getEnvOrDefault("GRIDLE_DATA_DIR", c.DataDir)
	c.CachePath = getEnvOrDefault("GRIDLE_CACHE_PATH", c.CachePath)
	c.ReplayDir = getEnvOrDefault("GRIDLE_REPLAY_DIR", c.ReplayDir)
	c.EventDir = getEnvOrDefault("GRIDLE_EVENT_DIR", c.EventDir)
	c.WinLog = getEnvOrDefault("GRIDLE_WIN_LOG", c.WinLog)
	c.LogLevel = getEnvOrDefault("GRIDLE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("GRIDLE_LOG_FORMAT", c.LogFormat)
	return c
}

// Flags binds the shared settings to a FlagSet. Call Resolve after parsing.
type Flags struct {
	fs   *flag.FlagSet
	path *string
	vals Config
}

func Bind(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	f.path = fs.String("config", getEnvOrDefault("GRIDLE_CONFIG", "gridle.yaml"), "Path to YAML config file")
	fs.StringVar(&f.vals.Listen, "listen", "", "HTTP listen address")
	fs.StringVar(&f.vals.DataDir, "data-dir", "", "Directory for databases, logs and replays")
	fs.StringVar(&f.vals.CachePath, "cache-path", "", "SQLite challenge cache path")
	fs.StringVar(&f.vals.ReplayDir, "replay-dir", "", "Directory for parquet replays")
	fs.StringVar(&f.vals.EventDir, "event-dir", "", "Directory for compressed event logs")
	fs.StringVar(&f.vals.WinLog, "win-log", "", "Append-only log of daily wins")
	fs.StringVar(&f.vals.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.vals.LogFormat, "log-format", "", "Log format (text, json, pretty)")
	return f
}

// Resolve applies defaults, file, env and explicitly set flags in order.
func (f *Flags) Resolve() (Config, error) {
	cfg, err := Default().LoadFile(*f.path)
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.ApplyEnv()

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			cfg.Listen = f.vals.Listen
		case "data-dir":
			cfg.DataDir = f.vals.DataDir
		case "cache-path":
			cfg.CachePath = f.vals.CachePath
		case "replay-dir":
			cfg.ReplayDir = f.vals.ReplayDir
		case "event-dir":
			cfg.EventDir = f.vals.EventDir
		case "win-log":
			cfg.WinLog = f.vals.WinLog
		case "log-level":
			cfg.LogLevel = f.vals.LogLevel
		case "log-format":
			cfg.LogFormat = f.vals.LogFormat
		}
	})
	return cfg.withDerived(), nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
