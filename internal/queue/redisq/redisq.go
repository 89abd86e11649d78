// Package redisq implements the sharded delivery queues on Redis lists.
//
// Each shard is a list; a consumer atomically moves a job into the shard's
// processing list with BLMOVE and removes it on ack. Jobs left in a
// processing list by a crashed worker are returned to the shard by Recover.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/notify"
)

const defaultPrefix = "seatwatch:deliveries"

// Config configures the Redis connection and key layout.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Shards   int
	// PollTimeout bounds each BLMOVE so that cancellation is noticed.
	PollTimeout time.Duration
	Logger      *zerolog.Logger
}

// Queue is a queue.Broker on Redis.
type Queue struct {
	rdb    *goredis.Client
	prefix string
	shards int
	poll   time.Duration
	logger *zerolog.Logger
}

var _ queue.Broker = (*Queue)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Addr == "" {
		return nil, &errors.ConfigError{Component: "redis", Message: "address is required"}
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.NewConfigError("redis", "connect to "+cfg.Addr, err)
	}

	q := &Queue{
		rdb:    rdb,
		prefix: cfg.Prefix,
		shards: max(1, cfg.Shards),
		poll:   cfg.PollTimeout,
		logger: logging.OrNop(cfg.Logger),
	}
	if q.prefix == "" {
		q.prefix = defaultPrefix
	}
	if q.poll <= 0 {
		q.poll = 2 * time.Second
	}
	q.logger.Info().Str("addr", cfg.Addr).Int("shards", q.shards).Msg("Connected to Redis")
	return q, nil
}

// Close closes the Redis client.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Shards returns the shard count.
func (q *Queue) Shards() int { return q.shards }

func (q *Queue) key(shard int) string {
	return fmt.Sprintf("%s:%d", q.prefix, shard)
}

func (q *Queue) processingKey(shard int) string {
	return q.key(shard) + ":processing"
}

func (q *Queue) deadKey() string {
	return q.prefix + ":dead"
}

func (q *Queue) checkShard(shard int) error {
	if shard < 0 || shard >= q.shards {
		return errors.NewValidationError("shard", shard, "shard out of range")
	}
	return nil
}

// Enqueue implements notify.Queue.
func (q *Queue) Enqueue(ctx context.Context, job notify.Job) error {
	if err := q.checkShard(job.Shard); err != nil {
		return err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.key(job.Shard), raw).Err()
}

// Dequeue implements queue.Broker.
func (q *Queue) Dequeue(ctx context.Context, shard int) (queue.Delivery, error) {
	if err := q.checkShard(shard); err != nil {
		return queue.Delivery{}, err
	}
	for {
		raw, err := q.rdb.BLMove(ctx, q.key(shard), q.processingKey(shard), "LEFT", "RIGHT", q.poll).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			if ctx.Err() != nil {
				return queue.Delivery{}, ctx.Err()
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return queue.Delivery{}, ctx.Err()
			}
			return queue.Delivery{}, err
		}

		var job notify.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn().Err(err).Int("shard", shard).Msg("Dropping undecodable job")
			_ = q.parkRaw(ctx, shard, raw, "undecodable: "+err.Error())
			continue
		}
		return queue.Delivery{Job: job, Receipt: raw}, nil
	}
}

// Ack implements queue.Broker.
func (q *Queue) Ack(ctx context.Context, d queue.Delivery) error {
	return q.rdb.LRem(ctx, q.processingKey(d.Job.Shard), 1, d.Receipt).Err()
}

// Retry implements queue.Broker.
func (q *Queue) Retry(ctx context.Context, d queue.Delivery) error {
	job := d.Job
	job.Attempts++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(job.Shard), 1, d.Receipt)
		pipe.RPush(ctx, q.key(job.Shard), raw)
		return nil
	})
	return err
}

// DeadLetter implements queue.Broker.
func (q *Queue) DeadLetter(ctx context.Context, d queue.Delivery, reason string) error {
	raw, err := json.Marshal(queue.DeadLetter{Job: d.Job, Reason: reason})
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(d.Job.Shard), 1, d.Receipt)
		pipe.RPush(ctx, q.deadKey(), raw)
		return nil
	})
	return err
}

func (q *Queue) parkRaw(ctx context.Context, shard int, raw, reason string) error {
	entry, err := json.Marshal(map[string]string{"raw": raw, "reason": reason})
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(shard), 1, raw)
		pipe.RPush(ctx, q.deadKey(), entry)
		return nil
	})
	return err
}

// Recover moves jobs stranded in processing lists back to the front of
// their shard. Call it before starting workers.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for shard := range q.shards {
		for {
			_, err := q.rdb.LMove(ctx, q.processingKey(shard), q.key(shard), "RIGHT", "LEFT").Result()
			if errors.Is(err, goredis.Nil) {
				break
			}
			if err != nil {
				return moved, err
			}
			moved++
		}
	}
	if moved > 0 {
		q.logger.Info().Int("jobs", moved).Msg("Recovered in-flight deliveries")
	}
	return moved, nil
}

// Pending returns the number of jobs waiting on shard.
func (q *Queue) Pending(ctx context.Context, shard int) (int64, error) {
	return q.rdb.LLen(ctx, q.key(shard)).Result()
}

// DeadLetters returns up to limit parked entries, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error) {
	raws, err := q.rdb.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]queue.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl queue.DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}
