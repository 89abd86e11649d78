package redisq_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/queue/redisq"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// These tests need a disposable Redis; set SEATWATCH_TEST_REDIS=host:port.
func newQueue(t *testing.T) *redisq.Queue {
	t.Helper()
	addr := os.Getenv("SEATWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("SEATWATCH_TEST_REDIS not set")
	}
	q, err := redisq.New(context.Background(), redisq.Config{
		Addr:        addr,
		Prefix:      fmt.Sprintf("seatwatch-test:%d", time.Now().UnixNano()),
		Shards:      2,
		PollTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := redisq.New(context.Background(), redisq.Config{})
	var ce *errors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestQueueLifecycle(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	job := notify.Job{ID: "j1", Shard: 1, Kind: notify.ChannelWebhook, Target: "https://hooks.example.com/a", Payload: []byte(`{}`)}
	require.NoError(t, q.Enqueue(ctx, job))

	d, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "j1", d.Job.ID)

	require.NoError(t, q.Retry(ctx, d))
	d, err = q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Job.Attempts)

	require.NoError(t, q.DeadLetter(ctx, d, "410 gone"))
	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "410 gone", dead[0].Reason)

	n, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueRecover(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, notify.Job{ID: "j2", Shard: 0}))
	_, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	d, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "j2", d.Job.ID)
	require.NoError(t, q.Ack(ctx, d))
}

func TestDequeueCancel(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx, 0)
	assert.Error(t, err)
}
