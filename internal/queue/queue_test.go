package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(4)
	assert.Equal(t, 4, q.Shards())

	job := notify.Job{ID: "j1", Shard: 2, Kind: notify.ChannelDiscord, Target: "https://discord.com/api/webhooks/1/a"}
	require.NoError(t, q.Enqueue(ctx, job))
	assert.Equal(t, 1, q.Pending(2))

	d, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "j1", d.Receipt)

	require.NoError(t, q.Retry(ctx, d))
	d, err = q.Dequeue(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Job.Attempts)

	require.NoError(t, q.DeadLetter(ctx, d, "gone"))
	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "gone", dead[0].Reason)
}

func TestMemoryShardRange(t *testing.T) {
	q := queue.NewMemory(2)
	err := q.Enqueue(context.Background(), notify.Job{Shard: 5})
	assert.True(t, errors.IsValidationError(err))
}

func TestMemoryDequeueHonorsContext(t *testing.T) {
	q := queue.NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryDrained(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory(2)
	assert.True(t, q.Drained())

	require.NoError(t, q.Enqueue(ctx, notify.Job{ID: "j1", Shard: 1}))
	assert.False(t, q.Drained())

	d, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.False(t, q.Drained(), "a dequeued job is unsettled until acked")

	require.NoError(t, q.Ack(ctx, d))
	assert.True(t, q.Drained())
}

func TestMemoryRetryOnFullShard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := queue.NewMemory(1)

	enqueue := func(id string) {
		require.NoError(t, q.Enqueue(ctx, notify.Job{ID: id, Shard: 0}))
	}
	for i := range constants.ChannelBufferSize {
		enqueue(fmt.Sprintf("j%d", i))
	}
	d, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	enqueue("late")

	// The shard is full; the retry must not wait for room.
	require.NoError(t, q.Retry(ctx, d))
	assert.NoError(t, ctx.Err())
	assert.Equal(t, constants.ChannelBufferSize+1, q.Pending(0))
	assert.False(t, q.Drained())

	var retried int
	for range constants.ChannelBufferSize + 1 {
		got, err := q.Dequeue(ctx, 0)
		require.NoError(t, err)
		if got.Job.ID == d.Job.ID {
			assert.Equal(t, 1, got.Job.Attempts)
			retried++
		}
		require.NoError(t, q.Ack(ctx, got))
	}
	assert.Equal(t, 1, retried)
	assert.True(t, q.Drained())
}
