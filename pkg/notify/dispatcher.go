package notify

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Result aggregates the outcome of a dispatch run. A run always completes;
// individual failures are reported here and never stop other deliveries.
type Result struct {
	Delivered int
	Failed    int
	Failures  []*errors.DeliveryError
}

// Err joins all failures, or returns nil when there were none.
func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Dispatcher fans events out to recipients and community channels.
type Dispatcher struct {
	resolver    *subscriptions.Resolver
	profiles    ProfileStore
	queue       Queue
	push        Sender
	community   CommunityStore
	shards      int
	concurrency int
	logger      *zerolog.Logger
	metrics     *Metrics
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPushSender sets the sender used for push notifications.
func WithPushSender(s Sender) Option {
	return func(d *Dispatcher) {
		d.push = s
	}
}

// WithCommunityStore enables community channel delivery.
func WithCommunityStore(s CommunityStore) Option {
	return func(d *Dispatcher) {
		d.community = s
	}
}

// WithShards sets the number of delivery queues.
func WithShards(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.shards = n
		}
	}
}

// WithConcurrency bounds the number of concurrent lookups and deliveries.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logging.OrNop(logger)
	}
}

// WithMetrics records outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithClock overrides the clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver *subscriptions.Resolver, profiles ProfileStore, queue Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		profiles:    profiles,
		queue:       queue,
		shards:      constants.DefaultShardCount,
		concurrency: constants.DefaultConcurrency,
		logger:      logging.OrNop(nil),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Shards returns the number of delivery queues jobs are spread over.
func (d *Dispatcher) Shards() int {
	return d.shards
}

// delivery is one planned hand-off of an event to a channel.
type delivery struct {
	ev     events.Event
	userID string // empty for community channels
	kind   ChannelKind
	target string
}

// run holds the per-dispatch caches. It is discarded when Dispatch returns.
type run struct {
	*Dispatcher
	memo           *subscriptions.Memo
	profileCache   onceCache[Profile]
	communityCache onceCache[[]string]

	mu         sync.Mutex
	deliveries []delivery
	result     Result
}

// Dispatch resolves recipients for every event and hands one delivery per
// enabled channel to the push sender or the shard queues. It returns once
// every lookup and hand-off has settled.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []events.Event, prefix, semester string) (Result, error) {
	if semester == "" {
		return Result{}, errors.NewValidationError("semester", nil, "semester is required")
	}
	start := d.now()
	logger := d.logger.With().Str("semester", semester).Str("prefix", prefix).Logger()

	r := &run{Dispatcher: d, memo: subscriptions.NewMemo()}

	// Plan every delivery first so that no pool task waits on the pool.
	p := pool.New().WithMaxGoroutines(d.concurrency)
	for _, ev := range evs {
		if ev.Semester == "" {
			ev.Semester = semester
		}
		p.Go(func() {
			r.plan(ctx, ev)
		})
	}
	p.Wait()

	p = pool.New().WithMaxGoroutines(d.concurrency)
	for _, dl := range r.deliveries {
		p.Go(func() {
			r.deliver(ctx, dl)
		})
	}
	p.Wait()

	slices.SortFunc(r.result.Failures, func(a, b *errors.DeliveryError) int {
		return cmp.Or(
			cmp.Compare(a.EventID, b.EventID),
			cmp.Compare(a.UserID, b.UserID),
			cmp.Compare(a.Channel, b.Channel),
			cmp.Compare(a.Target, b.Target),
		)
	})

	d.metrics.observe(len(evs), d.now().Sub(start).Seconds())
	event := logger.Info()
	if r.result.Failed > 0 {
		event = logger.Warn()
	}
	event.
		Int("events", len(evs)).
		Int("lookups", r.memo.Len()).
		Int("delivered", r.result.Delivered).
		Int("failed", r.result.Failed).
		Msg("Dispatch complete")
	return r.result, nil
}

// plan resolves one event into deliveries.
func (r *run) plan(ctx context.Context, ev events.Event) {
	recipients, err := r.resolver.Resolve(ctx, r.memo, ev)
	if err != nil {
		r.fail(errors.NewDeliveryError("resolve", "", ev.ID, "", err))
	}

	var planned []delivery
	for _, rc := range recipients {
		profile, err := r.profileCache.get(rc.UserID, func() (Profile, error) {
			return r.profiles.Profile(ctx, rc.UserID)
		})
		if errors.IsNotFound(err) {
			r.logger.Debug().Str("user", rc.UserID).Msg("Recipient has no delivery profile")
			continue
		}
		if err != nil {
			r.fail(errors.NewDeliveryError("profile", rc.UserID, ev.ID, "", err))
			continue
		}
		channels := profile.Channels()
		for _, kind := range []ChannelKind{ChannelPush, ChannelDiscord, ChannelWebhook} {
			if target, ok := channels[kind]; ok {
				planned = append(planned, delivery{ev: ev, userID: rc.UserID, kind: kind, target: target})
			}
		}
	}

	if r.community != nil {
		for _, t := range []subscriptions.Target{
			{Scope: subscriptions.ScopeDepartment, Key: catalog.Department(ev.Course)},
			{Scope: subscriptions.ScopeEverything, Key: subscriptions.EverythingKey},
		} {
			urls, err := r.communityCache.get(string(t.Scope)+"\x00"+t.Key, func() ([]string, error) {
				return r.community.Channels(ctx, ev.Semester, t.Scope, t.Key)
			})
			if err != nil {
				r.fail(errors.NewDeliveryError("community", "", ev.ID, string(t.Scope)+":"+t.Key, err))
				continue
			}
			for _, url := range urls {
				planned = append(planned, delivery{ev: ev, kind: ChannelDiscord, target: url})
			}
		}
	}

	r.mu.Lock()
	r.deliveries = append(r.deliveries, planned...)
	r.mu.Unlock()
}

// deliver sends a push directly or enqueues a shard job.
func (r *run) deliver(ctx context.Context, dl delivery) {
	err := r.handOff(ctx, dl)
	if err != nil {
		r.metrics.failed(dl.kind)
		r.fail(errors.NewDeliveryError(string(dl.kind), dl.userID, dl.ev.ID, dl.target, err))
		return
	}
	r.metrics.delivered(dl.kind)
	r.mu.Lock()
	r.result.Delivered++
	r.mu.Unlock()
}

func (r *run) handOff(ctx context.Context, dl delivery) error {
	payload, err := Payload(dl.kind, dl.ev)
	if err != nil {
		return err
	}

	if dl.kind == ChannelPush {
		if r.push == nil {
			return errors.New("no push sender configured")
		}
		return r.push.Send(ctx, dl.target, payload)
	}

	return r.queue.Enqueue(ctx, Job{
		ID:        uuid.NewString(),
		Shard:     Shard(dl.target, r.shards),
		Kind:      dl.kind,
		Target:    dl.target,
		Payload:   payload,
		EventID:   dl.ev.ID,
		UserID:    dl.userID,
		CreatedAt: r.now().UTC(),
	})
}

func (r *run) fail(err *errors.DeliveryError) {
	r.logger.Warn().Err(err.Err).
		Str("channel", err.Channel).
		Str("user", err.UserID).
		Str("event", err.EventID).
		Msg("Delivery failed")

	r.mu.Lock()
	r.result.Failed++
	r.result.Failures = append(r.result.Failures, err)
	r.mu.Unlock()
}

// onceCache memoizes keyed lookups for one run; concurrent callers for the
// same key share a single call.
type onceCache[T any] struct {
	mu sync.Mutex
	m  map[string]*onceValue[T]
}

type onceValue[T any] struct {
	once sync.Once
	v    T
	err  error
}

func (c *onceCache[T]) get(key string, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[string]*onceValue[T])
	}
	e, ok := c.m[key]
	if !ok {
		e = &onceValue[T]{}
		c.m[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.v, e.err = fn()
	})
	return e.v, e.err
}
