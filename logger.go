package ganim

import (
	"log/slog"

	"github.com/gogpu/ganim/internal/logging"
)

// SetLogger configures the logger for ganim and all its sub-packages.
// By default, ganim produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by ganim:
//   - [slog.LevelDebug]: per-frame events (decode start and finish, evictions,
//     stale results)
//   - [slog.LevelInfo]: lifecycle events (animation opened, playback done)
//   - [slog.LevelWarn]: non-fatal issues (frame failed to decode, frame larger
//     than the cache budget, admission rejected)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	ganim.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	ganim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by ganim.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.L()
}
