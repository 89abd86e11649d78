package app

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/logging"
)

var validLevels = []string{"trace", "debug", "info", "warn", "error"}

// NewLogger builds the process logger from the resolved settings. Debug and
// trace lines carry the caller.
func NewLogger(config *Config) zerolog.Logger {
	level := resolveLevel(config, os.Stderr)
	return logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		Output:    config.LogOutput,
		NoColor:   config.NoColor || os.Getenv("NO_COLOR") != "",
		AddCaller: level == "debug" || level == "trace",
	})
}

// determineLogLevel applies, in order: --log-level (SEATWATCH_LOG_LEVEL),
// --quiet, --verbose, then info. Quiet beats verbose so scheduled runs that
// pass both stay terse.
func determineLogLevel(config *Config) string {
	return resolveLevel(config, io.Discard)
}

func resolveLevel(config *Config, warn io.Writer) string {
	switch {
	case config.LogLevel != "":
		if slices.Contains(validLevels, config.LogLevel) {
			return config.LogLevel
		}
		fmt.Fprintf(warn, "Warning: invalid log level %q, using info\n", config.LogLevel)
		return "info"
	case config.Quiet:
		if config.Verbose {
			fmt.Fprintln(warn, "Warning: both --verbose and --quiet specified, using --quiet")
		}
		return "warn"
	case config.Verbose:
		return "debug"
	default:
		return "info"
	}
}
