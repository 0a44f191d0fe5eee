// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// SetVerbose configures the default slog logger on stderr.
// Debug-level records are emitted only when verbose is true.
func SetVerbose(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
