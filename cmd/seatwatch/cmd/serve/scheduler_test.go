package serve

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/internal/sources/local"
	"github.com/agentstation/seatwatch/internal/store/memory"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
)

func newPipeline(t *testing.T) *seatwatch.Pipeline {
	t.Helper()
	p, err := seatwatch.New(
		seatwatch.WithStore(memory.New()),
		seatwatch.WithQueue(queue.NewMemory(1)),
		seatwatch.WithPruneProbability(0),
	)
	require.NoError(t, err)
	return p
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewScheduler("every so often", newPipeline(t), local.New(t.TempDir()), nil, nil, &logger)

	var ce *errors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "schedule", ce.Component)
}

func TestSchedulerAcceptsSpecs(t *testing.T) {
	logger := zerolog.Nop()
	for _, spec := range []string{"*/5 * * * *", "0 */5 * * * *", "@every 2m", "@hourly"} {
		_, err := NewScheduler(spec, newPipeline(t), local.New(t.TempDir()), nil, nil, &logger)
		assert.NoError(t, err, spec)
	}
}

func TestTickTruncatesBatchToMinute(t *testing.T) {
	src := local.New(t.TempDir())
	c := catalog.Catalog{"CMSC131": {ID: "CMSC131", Sections: map[string]catalog.Section{
		"0101": {ID: "0101", OpenSeats: 1, TotalSeats: 10},
	}}}
	for _, prefix := range []string{"CMSC", "MATH"} {
		require.NoError(t, src.Save("202508", prefix, c))
	}

	logger := zerolog.Nop()
	s, err := NewScheduler("@every 1m", newPipeline(t), src, []string{"202508"}, []string{"CMSC", "MATH"}, &logger)
	require.NoError(t, err)

	now := time.Date(2025, 8, 1, 12, 0, 17, 0, time.UTC)
	s.now = func() time.Time { return now }

	reports := s.Tick(context.Background())
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC), r.Batch)
		assert.True(t, r.Seeded)
	}

	// A second trigger inside the same minute is the same batch.
	now = now.Add(30 * time.Second)
	reports = s.Tick(context.Background())
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Skipped, r.Prefix)
	}

	now = now.Add(time.Minute)
	reports = s.Tick(context.Background())
	for _, r := range reports {
		assert.False(t, r.Skipped, r.Prefix)
	}
}

func TestTickReportsFetchFailures(t *testing.T) {
	logger := zerolog.Nop()
	s, err := NewScheduler("@every 1m", newPipeline(t), local.New(t.TempDir()), []string{"202508"}, []string{"CMSC"}, &logger)
	require.NoError(t, err)

	reports := s.Tick(context.Background())
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Seeded)
}

func TestSchedulerStartStop(t *testing.T) {
	logger := zerolog.Nop()
	s, err := NewScheduler("@every 1h", newPipeline(t), local.New(t.TempDir()), nil, nil, &logger)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 8080, orDefault(0, 8080))
	assert.Equal(t, 9000, orDefault(9000, 8080))
	assert.Equal(t, "localhost", orDefault("", "localhost"))
}
