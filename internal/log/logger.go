package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. The level string follows zerolog's names
// (debug, info, warn, error); anything unparseable falls back to info.
// Debug mode wins over the level string so one flag turns on verbose
// lifecycle logging.
func New(level string, debug bool) *zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(console).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return &logger
}
