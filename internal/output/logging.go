package output

import (
	"io"
	"log/slog"
	"math"
)

// SetupLogger returns a text logger writing to w. Priority is quiet (nothing),
// then debug, then verbose (info), then the default of warnings only.
func SetupLogger(quiet, verbose, debug bool, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.Level(math.MaxInt)
	case debug:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
