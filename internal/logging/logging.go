// Package logging configures the process-wide slog default and hands out
// component-scoped loggers. This is the diagnostic channel only; run
// artifacts go through the trace sink.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the global slog handler. Level is a name (debug, info,
// warn, error; anything unknown means info) and format is "text" or
// "json". The optional writer overrides os.Stderr.
func Init(level, format string, w ...io.Writer) {
	out := io.Writer(os.Stderr)
	if len(w) > 0 && w[0] != nil {
		out = w[0]
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// New returns a logger tagged with the emitting component.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

func parseLevel(name string) slog.Level {
	switch name {
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
