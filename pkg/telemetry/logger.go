package telemetry

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Level is the minimum level for the primary handler.
	Level slog.Leveler
	// JSON selects a JSON primary handler instead of text.
	JSON bool
	// Extra handlers receive every record as well.
	Extra []slog.Handler
}

// NewLogger returns a logger writing to w and fanning out to any extra
// handlers.
func NewLogger(w io.Writer, opts LoggerOptions) *slog.Logger {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler
	if opts.JSON {
		primary = slog.NewJSONHandler(w, handlerOpts)
	} else {
		primary = slog.NewTextHandler(w, handlerOpts)
	}
	if len(opts.Extra) == 0 {
		return slog.New(primary)
	}

	handlers := append([]slog.Handler{primary}, opts.Extra...)
	return slog.New(slogmulti.Fanout(handlers...))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
