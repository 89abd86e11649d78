// Package delivery drains the sharded delivery queues. Each shard has one
// consumer so that a target's deliveries go out in order and its rate limit
// is respected.
package delivery

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// Worker consumes every shard of a broker.
type Worker struct {
	broker      queue.Broker
	sender      notify.Sender
	logger      *zerolog.Logger
	rate        float64
	tries       uint
	maxAttempts int
	initial     time.Duration
	metrics     *metrics
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(w *Worker) { w.logger = logging.OrNop(l) }
}

// WithRate limits sends per shard per second.
func WithRate(perSecond float64) Option {
	return func(w *Worker) {
		if perSecond > 0 {
			w.rate = perSecond
		}
	}
}

// WithTries sets how many times one dequeue is attempted before the job is
// handed back to the queue.
func WithTries(n uint) Option {
	return func(w *Worker) {
		if n > 0 {
			w.tries = n
		}
	}
}

// WithMaxAttempts sets how many times a job may be requeued before it is
// dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithInitialInterval sets the first retry delay.
func WithInitialInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.initial = d
		}
	}
}

// WithRegisterer registers worker metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *Worker) { w.metrics = newMetrics(reg) }
}

// NewWorker creates a worker. A nil sender uses notify.HTTPSender.
func NewWorker(broker queue.Broker, sender notify.Sender, opts ...Option) *Worker {
	if sender == nil {
		sender = notify.NewHTTPSender(nil)
	}
	w := &Worker{
		broker:      broker,
		sender:      sender,
		logger:      logging.OrNop(nil),
		rate:        constants.DefaultDeliveryRate,
		tries:       3,
		maxAttempts: constants.MaxDeliveryAttempts,
		initial:     constants.RetryBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes all shards until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("shards", w.broker.Shards()).Float64("rate", w.rate).Msg("Delivery worker started")
	var wg conc.WaitGroup
	for shard := range w.broker.Shards() {
		sender := notify.NewRateLimitedSender(w.sender, w.rate, 1)
		wg.Go(func() { w.consume(ctx, shard, sender) })
	}
	wg.Wait()
	w.logger.Info().Msg("Delivery worker stopped")
}

func (w *Worker) consume(ctx context.Context, shard int, sender notify.Sender) {
	logger := w.logger.With().Int("shard", shard).Logger()
	for {
		d, err := w.broker.Dequeue(ctx, shard)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.initial):
			}
			continue
		}
		if err := w.Process(ctx, d, sender); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Str("job", d.Job.ID).Msg("Could not settle delivery")
		}
	}
}

// Process attempts one delivery and settles it with the broker: ack on
// success, dead-letter on a permanent failure or when attempts run out,
// otherwise requeue.
func (w *Worker) Process(ctx context.Context, d queue.Delivery, sender notify.Sender) error {
	job := d.Job
	logger := w.logger.With().
		Str("job", job.ID).
		Str("kind", string(job.Kind)).
		Str("event", job.EventID).
		Int("attempts", job.Attempts).
		Logger()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	b.MaxInterval = constants.MaxRetryBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, classify(sender.Send(ctx, job.Target, job.Payload))
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.tries))

	switch {
	case err == nil:
		w.metrics.observe(job.Kind, "sent")
		logger.Debug().Msg("Delivered")
		return w.broker.Ack(ctx, d)
	case ctx.Err() != nil:
		// Leave the job in flight; Recover returns it on the next start.
		return ctx.Err()
	case isPermanent(err):
		w.metrics.observe(job.Kind, "dead")
		logger.Warn().Err(err).Msg("Delivery rejected by target")
		return w.broker.DeadLetter(ctx, d, err.Error())
	case job.Attempts+1 >= w.maxAttempts:
		w.metrics.observe(job.Kind, "dead")
		logger.Warn().Err(err).Msg("Delivery attempts exhausted")
		return w.broker.DeadLetter(ctx, d, err.Error())
	default:
		w.metrics.observe(job.Kind, "retried")
		logger.Info().Err(err).Msg("Delivery failed, requeueing")
		return w.broker.Retry(ctx, d)
	}
}

// classify marks errors that retrying cannot fix and honors Retry-After.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *notify.StatusError
	if errors.As(err, &se) {
		if !se.Retryable() {
			return backoff.Permanent(err)
		}
		if se.StatusCode == http.StatusTooManyRequests && se.RetryAfter > 0 {
			return backoff.RetryAfter(int(se.RetryAfter / time.Second))
		}
	}
	return err
}

func isPermanent(err error) bool {
	var se *notify.StatusError
	return errors.As(err, &se) && !se.Retryable()
}
