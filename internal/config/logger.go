package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the service logger from LogLevel and LogFormat and makes it the default
func (c *Config) NewLogger() *slog.Logger {
	return newLogger(os.Stdout, c.LogLevel, c.LogFormat)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
