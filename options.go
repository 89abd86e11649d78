package seatwatch

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// options holds the Pipeline configuration.
type options struct {
	store       Store
	queue       notify.Queue
	push        notify.Sender
	community   notify.CommunityStore
	publisher   livefeed.Publisher
	metrics     *notify.Metrics
	logger      *zerolog.Logger
	shards      int
	concurrency int
	retention   time.Duration
	pruneChance float64
	ignore      []events.Type
	now         func() time.Time
}

// Option is a function that configures a Pipeline.
type Option func(*options) error

func defaults() *options {
	return &options{
		shards:      constants.DefaultShardCount,
		concurrency: constants.DefaultConcurrency,
		retention:   constants.FeedRetention,
		pruneChance: constants.FeedPruneProbability,
		now:         time.Now,
	}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	if o.store == nil {
		return &errors.ConfigError{Component: "pipeline", Message: "a store is required"}
	}
	if o.queue == nil {
		return &errors.ConfigError{Component: "pipeline", Message: "a delivery queue is required"}
	}
	if o.community == nil {
		if cs, ok := o.store.(notify.CommunityStore); ok {
			o.community = cs
		}
	}
	return nil
}

// WithStore sets the persistence backend.
func WithStore(s Store) Option {
	return func(o *options) error {
		o.store = s
		return nil
	}
}

// WithQueue sets the sink for discord and webhook delivery jobs.
func WithQueue(q notify.Queue) Option {
	return func(o *options) error {
		o.queue = q
		return nil
	}
}

// WithPushSender sets the sender used for direct push notifications.
func WithPushSender(s notify.Sender) Option {
	return func(o *options) error {
		o.push = s
		return nil
	}
}

// WithCommunityStore sets where community channels are looked up. When not
// set, the store is used if it implements notify.CommunityStore.
func WithCommunityStore(s notify.CommunityStore) Option {
	return func(o *options) error {
		o.community = s
		return nil
	}
}

// WithFeedPublisher forwards live feed entries as they are written.
func WithFeedPublisher(p livefeed.Publisher) Option {
	return func(o *options) error {
		o.publisher = p
		return nil
	}
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *notify.Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithShards sets the number of delivery queues.
func WithShards(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("shards", n, "must be at least 1")
		}
		o.shards = n
		return nil
	}
}

// WithConcurrency bounds concurrent lookups and deliveries per dispatch.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("concurrency", n, "must be at least 1")
		}
		o.concurrency = n
		return nil
	}
}

// WithFeedRetention sets how long live feed entries are kept.
func WithFeedRetention(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("retention", d, "must be positive")
		}
		o.retention = d
		return nil
	}
}

// WithPruneProbability sets the chance that a feed write prunes old entries.
func WithPruneProbability(p float64) Option {
	return func(o *options) error {
		if p < 0 || p > 1 {
			return errors.NewValidationError("prune_probability", p, "must be within [0, 1]")
		}
		o.pruneChance = p
		return nil
	}
}

// WithIgnoredTypes stops the differ from emitting the given event types.
func WithIgnoredTypes(types ...events.Type) Option {
	return func(o *options) error {
		for _, t := range types {
			if !t.Valid() {
				return errors.NewValidationError("ignore", string(t), "unknown event type")
			}
		}
		o.ignore = append(o.ignore, types...)
		return nil
	}
}

// WithClock overrides the wall clock used for feed observation times.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}
