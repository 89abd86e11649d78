package notify

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Job is a queued delivery of one payload to one HTTP target.
type Job struct {
	ID        string      `json:"id"`
	Shard     int         `json:"shard"`
	Kind      ChannelKind `json:"kind"`
	Target    string      `json:"target"`
	Payload   []byte      `json:"payload"`
	EventID   string      `json:"event_id"`
	UserID    string      `json:"user_id,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Queue accepts jobs for asynchronous at-least-once delivery.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Sender delivers a payload to a target immediately.
type Sender interface {
	Send(ctx context.Context, target string, payload []byte) error
}

// Shard maps a delivery target to a queue in [0, n). The same target always
// lands on the same shard.
func Shard(target string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(target) % uint64(n))
}
