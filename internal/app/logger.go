package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the run's logger from the --log-level and --log-format
// flags. Unknown levels fall back to info and unknown formats to text. The
// global logger is left untouched so tests can run apps side by side.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(formatStr) {
	case "json":
		handler = slog.NewJSONHandler(outW, opts)
	default:
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler).With("app", "cyclegrid")
}
