package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps the logs
// machine-parseable; level comes from VOTE_LOG_LEVEL.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("VOTE_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
