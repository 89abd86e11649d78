package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/pkg/logging"
)

func TestSetDefault(t *testing.T) {
	prev := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	buf := &bytes.Buffer{}
	logging.SetDefault(zerolog.New(buf))
	logging.Default().Info().Msg("info message")

	assert.Contains(t, buf.String(), "info message")
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	tests := []struct {
		name    string
		level   string
		present []string
		absent  []string
	}{
		{name: "debug", level: "debug", present: []string{`"level":"debug"`, `"level":"info"`}},
		{name: "error only", level: "error", present: []string{`"level":"error"`}, absent: []string{`"level":"info"`}},
		{name: "warning alias", level: "warning", present: []string{`"level":"warn"`}, absent: []string{`"level":"info"`}},
		{name: "unknown falls back to info", level: "loud", present: []string{`"level":"info"`}, absent: []string{`"level":"debug"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.NewLoggerFromConfig(&logging.Config{Level: tt.level, Format: "json", Output: "discard"}).Output(buf)

			logger.Debug().Msg("d")
			logger.Info().Msg("i")
			logger.Warn().Msg("w")
			logger.Error().Msg("e")

			for _, s := range tt.present {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestConfigDefaultFields(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	path := filepath.Join(t.TempDir(), "seatwatch.log")
	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "info",
		Format: "json",
		Output: path,
		Fields: map[string]any{"service": "seatwatch", "shards": 8},
	})
	logger.Info().Msg("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"seatwatch"`)
	assert.Contains(t, string(data), `"shards":8`)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SEATWATCH_LOG_LEVEL", "debug")
	t.Setenv("SEATWATCH_LOG_FORMAT", "json")

	cfg := logging.FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, logging.OrNop(nil))

	l := zerolog.New(&bytes.Buffer{})
	assert.Same(t, &l, logging.OrNop(&l))
}
