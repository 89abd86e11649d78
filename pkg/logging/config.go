package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/constants"
)

// Config describes how a logger writes.
type Config struct {
	// Level is trace, debug, info, warn, error or off.
	Level string
	// Format is json, console or auto. Auto picks console on a terminal.
	Format string
	// Output is stderr, stdout, discard or a file path.
	Output string
	// TimeFormat applies to console output: kitchen, rfc3339 or a layout.
	TimeFormat string
	NoColor    bool
	AddCaller  bool
	// Fields are attached to every line, e.g. the service name.
	Fields map[string]any
}

// DefaultConfig returns info-level auto-format logging to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "auto",
		Output:     "stderr",
		TimeFormat: "kitchen",
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

// FromEnv returns DefaultConfig overridden by SEATWATCH_LOG_LEVEL and
// SEATWATCH_LOG_FORMAT. It configures the logger used before the CLI has
// parsed its flags.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("SEATWATCH_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("SEATWATCH_LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	return cfg
}

// NewLoggerFromConfig builds a logger and sets zerolog's global level to
// match it.
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(writer(cfg)).Level(level).With().Timestamp()
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	if len(cfg.Fields) > 0 {
		ctx = ctx.Fields(cfg.Fields)
	}
	return ctx.Logger()
}

func writer(cfg *Config) io.Writer {
	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	case "discard", "none":
		out = io.Discard
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions)
		if err != nil {
			out = os.Stderr
		} else {
			out = f
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if out == os.Stderr && stderrIsTerminal() {
			format = "console"
		}
	}
	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat(cfg.TimeFormat), NoColor: cfg.NoColor}
	}
	return out
}

// parseLevel accepts zerolog level names plus "warning" and "off". Anything
// unrecognized is info.
func parseLevel(level string) zerolog.Level {
	switch level = strings.ToLower(level); level {
	case "warning":
		return zerolog.WarnLevel
	case "none", "off":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	if l, err := zerolog.ParseLevel(level); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

func timeFormat(format string) string {
	switch strings.ToLower(format) {
	case "", "kitchen":
		return time.Kitchen
	case "rfc3339":
		return time.RFC3339
	case "rfc3339nano":
		return time.RFC3339Nano
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}
	return time.Kitchen
}
