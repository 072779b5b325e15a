// Package runtimelog configures the process-wide zerolog logger used by
// every other package in this module. Packages log through the global
// github.com/rs/zerolog/log logger directly rather than threading a logger
// instance through every constructor.
package runtimelog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the global logger's level and output format.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info"
	// when empty or unrecognized.
	Level string
	// Pretty switches to zerolog's human-readable console writer instead of
	// the default JSON stream. Intended for interactive use of the demo CLI,
	// not for production deployments.
	Pretty bool
	// Output overrides the writer. Defaults to os.Stderr.
	Output io.Writer
}

// Configure installs the global logger used by log.Info()/log.Debug()/etc.
// throughout the module. It must be called once, before any scheduler,
// worker, or hypervisor component is constructed.
func Configure(opts Options) {
	level := parseLevel(opts.Level)
	zerolog.SetGlobalLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
