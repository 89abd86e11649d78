package subscriptions

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// Target is one (scope, key) pair consulted for an event.
type Target struct {
	Scope Scope
	Key   string
}

// Scopes returns the targets whose subscribers may want ev, from lowest to
// highest precedence. Course-level events have no section target.
func Scopes(ev events.Event) []Target {
	targets := []Target{
		{Scope: ScopeEverything, Key: EverythingKey},
		{Scope: ScopeDepartment, Key: catalog.Department(ev.Course)},
		{Scope: ScopeCourse, Key: ev.Course},
	}
	if ev.Section != "" {
		targets = append(targets, Target{Scope: ScopeSection, Key: ev.Key()})
	}
	return targets
}

// Recipient is a user whose merged settings enable an event.
type Recipient struct {
	UserID   string
	Settings Settings
}

// Memo caches subscriber lookups for the duration of one dispatch run.
// Create one per run with NewMemo and drop it when the run ends. It is safe
// for concurrent use; concurrent lookups of the same target share one
// store read.
type Memo struct {
	mu      sync.Mutex
	entries map[memoKey]*memoEntry
}

type memoKey struct {
	semester string
	target   Target
}

type memoEntry struct {
	once sync.Once
	subs []Subscription
	err  error
}

// NewMemo creates an empty per-run lookup cache.
func NewMemo() *Memo {
	return &Memo{entries: make(map[memoKey]*memoEntry)}
}

// Len returns the number of distinct targets looked up so far.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memo) subscribers(ctx context.Context, store Store, semester string, t Target) ([]Subscription, error) {
	k := memoKey{semester: semester, target: t}

	m.mu.Lock()
	e, ok := m.entries[k]
	if !ok {
		e = &memoEntry{}
		m.entries[k] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.subs, e.err = store.Subscribers(ctx, semester, t.Scope, t.Key)
	})
	return e.subs, e.err
}

// Resolver merges subscriptions across scopes.
type Resolver struct {
	store  Store
	logger *zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: logging.OrNop(nil)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the users whose merged settings enable ev.Type, sorted by
// user id. Each user's settings start from Baseline and are overlaid by
// their subscriptions in Precedence order, key by key. A nil memo disables
// caching across calls.
func (r *Resolver) Resolve(ctx context.Context, memo *Memo, ev events.Event) ([]Recipient, error) {
	if memo == nil {
		memo = NewMemo()
	}

	merged := make(map[string]Settings)
	for _, t := range Scopes(ev) {
		subs, err := memo.subscribers(ctx, r.store, ev.Semester, t)
		if err != nil {
			return nil, errors.WrapStore("read", "subscriptions", string(t.Scope)+":"+t.Key, err)
		}
		for _, sub := range subs {
			s, ok := merged[sub.UserID]
			if !ok {
				s = Baseline()
				merged[sub.UserID] = s
			}
			s.Overlay(sub.Settings)
		}
	}

	recipients := make([]Recipient, 0, len(merged))
	for user, s := range merged {
		if s.Enabled(ev.Type) {
			recipients = append(recipients, Recipient{UserID: user, Settings: s})
		}
	}
	slices.SortFunc(recipients, func(a, b Recipient) int {
		return cmp.Compare(a.UserID, b.UserID)
	})

	r.logger.Debug().
		Str("event", ev.ID).
		Stringer("type", ev.Type).
		Int("candidates", len(merged)).
		Int("recipients", len(recipients)).
		Msg("Resolved recipients")
	return recipients, nil
}
