package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the tool's own log file (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where the tool writes its own structured log.
// This is the application log only; captured script stdout/stderr are plain
// per-execution files managed by the execution package and are never rotated,
// because their names encode the execution id.
type Config struct {
	Level      string `json:"level" mapstructure:"level"`             // debug, info, warn, error (default info)
	File       string `json:"file" mapstructure:"file"`               // optional rotating log file; empty means stderr only
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"` // megabytes before rotation
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // number of rotated files to keep
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"` // gzip rotated files
	NoColor    bool   `json:"no_color" mapstructure:"no_color"` // disable ANSI colors on stderr
}

// Setup installs the default slog logger according to cfg.
func Setup(cfg Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if cfg.File != "" {
		var w io.Writer = &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		h = slog.NewJSONHandler(w, opts)
	} else if cfg.NoColor {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = NewColorTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
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

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
