// Package logging builds the process zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger in production and a console logger elsewhere.
func New(environment string, level string) zerolog.Logger {
	return NewWithWriter(os.Stderr, environment, level)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, environment string, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if !strings.EqualFold(environment, "production") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
