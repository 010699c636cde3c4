// Package logger provides structured logging setup for tyresync.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/tyresync/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// When cfg.Async is set, records are handed to an AsyncHandler and the
// returned Closer must be closed on shutdown to flush them.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		buffer, workers := cfg.AsyncBuffer, cfg.AsyncWorkers
		if buffer < 1 {
			buffer = 4096
		}
		if workers < 1 {
			workers = 1
		}
		ah := NewAsyncHandler(handler, buffer, workers)
		handler, closer = ah, ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
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
