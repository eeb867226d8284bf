// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options controls how the logger is constructed.
type Options struct {
	// Level is one of "trace", "debug", "info", "warn", "error". Empty means "info".
	Level string
	// JSON emits ND-JSON instead of the human-readable console writer.
	JSON bool
	// Writer overrides the sink; defaults to os.Stderr so stdout stays
	// free for command output (version strings, table listings, ...).
	Writer io.Writer
}

// New builds a zerolog.Logger per Options, defaulting to a colorized
// console writer on stderr at info level.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if !opts.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
