package pipeline

import (
	"context"
	"log/slog"
)

// LevelTrace sits between Info and Warn. Recovery events, violations and
// halts are logged at this level.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs a structured record at LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
