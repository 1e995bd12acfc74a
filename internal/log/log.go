// Package log builds the zerolog logger carried on command contexts.
package log

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Output formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, errors.Errorf("parse log level %q: %w", name, err)
	}
	return lvl, nil
}

// New returns a timestamped logger writing to w at level in the given format.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch format {
	case FormatConsole, "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	case FormatJSON:
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), nil
}
