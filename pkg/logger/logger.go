package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"log/slog"
)

// Config contains logger configuration.
type Config struct {
	Level  string // Minimum log level: debug, info, warn, error
	Prefix string // Component prefix attached to every record
	File   string // Path to log file (empty = console only)
}

// ParseLevel parses a level string, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to stderr and, when configured, to an
// append-mode log file as well.
func New(cfg *Config) (*slog.Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		dir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, file)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})

	log := slog.New(handler)
	if cfg.Prefix != "" {
		log = log.With("prefix", cfg.Prefix)
	}
	return log, nil
}
