package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the service log destination. When Path is empty the
// logger writes to stderr only.
type Config struct {
	Path       string `toml:"path" mapstructure:"path"`                 // log file path; rotation applies
	Level      string `toml:"level" mapstructure:"level"`               // debug|info|warn|error (default info)
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`   // megabytes before rotation
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`   // number of backups to keep
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"` // days to keep
	Compress   bool   `toml:"compress" mapstructure:"compress"`         // gzip rotated files
	NoColor    bool   `toml:"no_color" mapstructure:"no_color"`         // disable ANSI colors on stderr
}

// New builds a slog.Logger from the config: colored text on stderr plus an
// optional rotated file.
func New(c Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}

	var w io.Writer = os.Stderr
	if c.Path != "" {
		file := &lj.Logger{
			Filename:   c.Path,
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
		w = io.MultiWriter(os.Stderr, file)
	}

	if c.NoColor {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(NewColorTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
