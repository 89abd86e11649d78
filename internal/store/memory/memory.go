// Package memory provides an in-process implementation of every seatwatch
// store. It backs tests and single-process runs without a database file.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

type scopeKey struct {
	semester string
	scope    subscriptions.Scope
	key      string
}

// Store is a thread-safe in-memory store.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]time.Time
	snapshots map[string]catalog.Catalog
	events    map[string]map[string]events.Event
	subs      map[scopeKey]map[string]subscriptions.Subscription
	profiles  map[string]notify.Profile
	community map[scopeKey][]string
	feed      []livefeed.Entry
}

var _ seatwatch.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		runs:      make(map[string]time.Time),
		snapshots: make(map[string]catalog.Catalog),
		events:    make(map[string]map[string]events.Event),
		subs:      make(map[scopeKey]map[string]subscriptions.Subscription),
		profiles:  make(map[string]notify.Profile),
		community: make(map[scopeKey][]string),
	}
}

// LastRun implements guard.RunStateStore.
func (s *Store) LastRun(_ context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.runs[key]
	if !ok {
		return time.Time{}, errors.NewNotFoundError("run_state", key)
	}
	return ts, nil
}

// SetLastRun implements guard.RunStateStore.
func (s *Store) SetLastRun(_ context.Context, key string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[key] = ts
	return nil
}

func snapshotKey(semester, prefix string) string {
	return semester + "/" + prefix
}

// LastSnapshot returns a copy of the stored snapshot.
func (s *Store) LastSnapshot(_ context.Context, semester, prefix string) (catalog.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.snapshots[snapshotKey(semester, prefix)]
	if !ok {
		return nil, errors.NewNotFoundError("snapshot", snapshotKey(semester, prefix))
	}
	return c.Clone(), nil
}

// SaveSnapshot replaces the stored snapshot.
func (s *Store) SaveSnapshot(_ context.Context, semester, prefix string, c catalog.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(semester, prefix)] = c.Clone()
	return nil
}

// AppendEvents merges events under key, overwriting by event id.
func (s *Store) AppendEvents(_ context.Context, key string, evs []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.events[key]
	if !ok {
		byID = make(map[string]events.Event)
		s.events[key] = byID
	}
	for _, ev := range evs {
		byID[ev.ID] = ev
	}
	return nil
}

// Events returns the history stored under key, oldest first.
func (s *Store) Events(_ context.Context, key string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Event, 0, len(s.events[key]))
	for _, ev := range s.events[key] {
		out = append(out, ev)
	}
	slices.SortFunc(out, func(a, b events.Event) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Subscribers implements subscriptions.Store.
func (s *Store) Subscribers(_ context.Context, semester string, scope subscriptions.Scope, key string) ([]subscriptions.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := s.subs[scopeKey{semester, scope, key}]
	out := make([]subscriptions.Subscription, 0, len(users))
	for _, sub := range users {
		sub.Settings = sub.Settings.Clone()
		out = append(out, sub)
	}
	slices.SortFunc(out, func(a, b subscriptions.Subscription) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

// Subscribe implements subscriptions.Writer. An existing subscription for
// the same user and scope is replaced.
func (s *Store) Subscribe(_ context.Context, sub subscriptions.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopeKey{sub.Semester, sub.Scope, sub.Key}
	users, ok := s.subs[k]
	if !ok {
		users = make(map[string]subscriptions.Subscription)
		s.subs[k] = users
	}
	sub.Settings = sub.Settings.Clone()
	users[sub.UserID] = sub
	return nil
}

// Unsubscribe implements subscriptions.Writer.
func (s *Store) Unsubscribe(_ context.Context, semester string, scope subscriptions.Scope, key, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopeKey{semester, scope, key}
	if _, ok := s.subs[k][userID]; !ok {
		return errors.NewNotFoundError("subscription", string(scope)+":"+key+":"+userID)
	}
	delete(s.subs[k], userID)
	return nil
}

// Profile implements notify.ProfileStore.
func (s *Store) Profile(_ context.Context, userID string) (notify.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return notify.Profile{}, errors.NewNotFoundError("profile", userID)
	}
	return p, nil
}

// SaveProfile creates or replaces a profile.
func (s *Store) SaveProfile(_ context.Context, p notify.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// Channels implements notify.CommunityStore.
func (s *Store) Channels(_ context.Context, semester string, scope subscriptions.Scope, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.community[scopeKey{semester, scope, key}]), nil
}

// AddCommunityChannel registers a shared channel for a department or the
// everything scope.
func (s *Store) AddCommunityChannel(_ context.Context, semester string, scope subscriptions.Scope, key, url string) error {
	if scope != subscriptions.ScopeDepartment && scope != subscriptions.ScopeEverything {
		return errors.NewValidationError("scope", string(scope), "community channels attach to department or everything")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopeKey{semester, scope, key}
	if !slices.Contains(s.community[k], url) {
		s.community[k] = append(s.community[k], url)
	}
	return nil
}

// Append implements livefeed.Store.
func (s *Store) Append(_ context.Context, entries []livefeed.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.feed = slices.DeleteFunc(s.feed, func(x livefeed.Entry) bool { return x.EventID == e.EventID })
		s.feed = append(s.feed, e)
	}
	slices.SortStableFunc(s.feed, func(a, b livefeed.Entry) int {
		return a.ObservedAt.Compare(b.ObservedAt)
	})
	return nil
}

// PruneBefore implements livefeed.Store. The feed is kept sorted, so the
// oldest entries are at the front.
func (s *Store) PruneBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for n < len(s.feed) && n < limit && s.feed[n].ObservedAt.Before(cutoff) {
		n++
	}
	s.feed = slices.Delete(s.feed, 0, n)
	return n, nil
}

// Recent implements livefeed.Store.
func (s *Store) Recent(_ context.Context, limit int) ([]livefeed.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.feed) {
		limit = len(s.feed)
	}
	out := make([]livefeed.Entry, 0, limit)
	for i := len(s.feed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.feed[i])
	}
	return out, nil
}

// Len returns the number of feed entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feed)
}
