// Package logging builds the process-wide structured logger with
// automatic redaction of credential fields.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/dutlab/portspawn/internal/config"
)

// Setup builds a logger per the configuration, installs it as the slog
// default and returns it. Output goes to stderr so port output piped
// from stdout stays clean.
func Setup(cfg config.LoggingConfig) *slog.Logger {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter is Setup with an explicit sink, for tests.
func SetupWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(NewRedactorHandler(handler))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
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
