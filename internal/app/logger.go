package app

import (
	"io"
	"log/slog"
)

// newLogger builds the application logger from the configured level and
// format. It never sets the global logger, so embedded uses and tests keep
// isolated instances. Debug level also turns on source locations, which is
// noisy but invaluable when tracing a stuck run.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
