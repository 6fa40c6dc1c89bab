// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a timestamped logger writing to w (stderr when nil) in either
// "console" or "json" format.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if w == nil {
		w = os.Stderr
	}

	output := w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "":
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format '%s'", format)
	}

	return zerolog.New(output).Level(lvl).With().
		Timestamp().
		Logger(), nil
}
