package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the global logger.
type Options struct {
	Env   string // "production" selects JSON output
	Level string // zerolog level name; empty means info
	Local bool   // forces debug
	Out   io.Writer
}

// Setup configures the global zerolog logger
func Setup(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if opts.Env != "production" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level, opts.Local))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string, local bool) zerolog.Level {
	if local {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
