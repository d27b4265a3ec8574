// Package logger builds the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/syncbridge/syncbridge/internal/config"
)

// New returns a JSON logger writing to stdout. Every record carries the
// service name so log aggregation can tell engine instances apart.
func New(cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	log := slog.New(handler)
	if cfg.Service != "" {
		log = log.With("service", cfg.Service)
	}
	return log
}

// parseLevel maps a config string to a slog.Level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
