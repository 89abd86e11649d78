// Package queue defines the consumer side of the sharded delivery queues and
// an in-process implementation.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// Delivery is a job taken from a shard. Receipt identifies it to the
// backend until it is acked, retried or dead-lettered.
type Delivery struct {
	Job     notify.Job
	Receipt string
}

// Broker is a sharded at-least-once job queue.
type Broker interface {
	notify.Queue
	// Dequeue blocks until a job is available on shard or ctx is done.
	Dequeue(ctx context.Context, shard int) (Delivery, error)
	// Ack removes a completed delivery.
	Ack(ctx context.Context, d Delivery) error
	// Retry puts the job back on its shard with Attempts incremented.
	Retry(ctx context.Context, d Delivery) error
	// DeadLetter parks a delivery that will not be retried.
	DeadLetter(ctx context.Context, d Delivery, reason string) error
	Shards() int
}

// DeadLetter is a parked job and the reason it was given up on.
type DeadLetter struct {
	Job    notify.Job `json:"job"`
	Reason string     `json:"reason"`
}

// Memory is an in-process Broker backed by buffered channels. Jobs do not
// survive a restart.
//
// Retried jobs that do not fit back into a full shard wait in a per-shard
// overflow list. Retry runs on the shard's own consumer and must not block.
type Memory struct {
	shards   []chan notify.Job
	inflight atomic.Int64

	mu       sync.Mutex
	overflow [][]notify.Job
	dead     []DeadLetter
}

// NewMemory creates a broker with n shards.
func NewMemory(n int) *Memory {
	n = max(1, n)
	m := &Memory{shards: make([]chan notify.Job, n), overflow: make([][]notify.Job, n)}
	for i := range m.shards {
		m.shards[i] = make(chan notify.Job, constants.ChannelBufferSize)
	}
	return m
}

// Shards returns the shard count.
func (m *Memory) Shards() int { return len(m.shards) }

func (m *Memory) shard(i int) (chan notify.Job, error) {
	if i < 0 || i >= len(m.shards) {
		return nil, errors.NewValidationError("shard", i, "shard out of range")
	}
	return m.shards[i], nil
}

// Enqueue implements notify.Queue. It blocks while the shard is full.
func (m *Memory) Enqueue(ctx context.Context, job notify.Job) error {
	ch, err := m.shard(job.Shard)
	if err != nil {
		return err
	}
	select {
	case ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Broker.
func (m *Memory) Dequeue(ctx context.Context, shard int) (Delivery, error) {
	ch, err := m.shard(shard)
	if err != nil {
		return Delivery{}, err
	}
	if job, ok := m.popOverflow(shard); ok {
		m.inflight.Add(1)
		return Delivery{Job: job, Receipt: job.ID}, nil
	}
	select {
	case job := <-ch:
		m.inflight.Add(1)
		return Delivery{Job: job, Receipt: job.ID}, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

func (m *Memory) popOverflow(shard int) (notify.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.overflow[shard]) == 0 {
		return notify.Job{}, false
	}
	job := m.overflow[shard][0]
	m.overflow[shard] = m.overflow[shard][1:]
	return job, true
}

// Ack implements Broker.
func (m *Memory) Ack(context.Context, Delivery) error {
	m.inflight.Add(-1)
	return nil
}

// Retry implements Broker. It never blocks: a job that does not fit into
// its shard goes to the shard's overflow list.
func (m *Memory) Retry(_ context.Context, d Delivery) error {
	ch, err := m.shard(d.Job.Shard)
	if err != nil {
		return err
	}
	job := d.Job
	job.Attempts++
	defer m.inflight.Add(-1)

	select {
	case ch <- job:
	default:
		m.mu.Lock()
		m.overflow[job.Shard] = append(m.overflow[job.Shard], job)
		m.mu.Unlock()
	}
	return nil
}

// DeadLetter implements Broker.
func (m *Memory) DeadLetter(_ context.Context, d Delivery, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = append(m.dead, DeadLetter{Job: d.Job, Reason: reason})
	m.inflight.Add(-1)
	return nil
}

// DeadLetters returns a copy of the parked jobs.
func (m *Memory) DeadLetters() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.dead...)
}

// Pending returns the number of jobs waiting on shard.
func (m *Memory) Pending(shard int) int {
	ch, err := m.shard(shard)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(ch) + len(m.overflow[shard])
}

// Drained reports whether every shard is empty and no dequeued job is
// still unsettled.
func (m *Memory) Drained() bool {
	if m.inflight.Load() > 0 {
		return false
	}
	for i := range m.shards {
		if m.Pending(i) > 0 {
			return false
		}
	}
	return m.inflight.Load() == 0
}
