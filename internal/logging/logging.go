// Package logging constructs the single zerolog.Logger the daemon builds at
// startup and threads down into connections and sessions as a plain field
// (the idiom used by emiago/diago's RTP session type), rather than a global.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a Logger for the given level ("debug", "info", "warn", "error")
// and format ("console" or "json"). An unrecognized level falls back to
// info; an unrecognized format falls back to console.
func New(level, format string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(level))

	return logger
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
