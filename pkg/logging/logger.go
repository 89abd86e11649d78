// Package logging configures zerolog for seatwatch and carries the logger
// of a scrape cycle through its context.
//
// Console output is used when stderr is a terminal and JSON everywhere
// else, which is what scheduled runs write in production.
//
//	ctx := logging.WithRun(ctx, "202508", "CMSC", batch)
//	logging.FromContext(ctx).Debug().Int("events", n).Msg("Diff complete")
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger = NewLoggerFromConfig(FromEnv())

// Default returns the process-wide logger used when a context carries none.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger and zerolog's global one.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// OrNop returns l, or a pointer to a Nop logger when l is nil.
// Components accept an optional logger and call this once at construction.
func OrNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
