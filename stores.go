package seatwatch

import (
	"context"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/guard"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Source fetches the current catalog for one department of a semester.
// Errors are returned to the caller, which retries the whole batch.
type Source interface {
	Fetch(ctx context.Context, semester, prefix string) (catalog.Catalog, error)
}

// SnapshotStore persists the last catalog seen per semester and prefix.
type SnapshotStore interface {
	// LastSnapshot returns a NotFoundError before the first snapshot.
	LastSnapshot(ctx context.Context, semester, prefix string) (catalog.Catalog, error)
	SaveSnapshot(ctx context.Context, semester, prefix string, c catalog.Catalog) error
}

// EventStore keeps event history keyed by course or course-section.
// Appending an event whose id is already stored overwrites it.
type EventStore interface {
	AppendEvents(ctx context.Context, key string, evs []events.Event) error
}

// Store is everything a Pipeline reads and writes.
type Store interface {
	guard.RunStateStore
	SnapshotStore
	EventStore
	subscriptions.Store
	notify.ProfileStore
	livefeed.Store
}

// Backend is a Store that also serves the write side used by the CLI and
// the HTTP API.
type Backend interface {
	Store
	subscriptions.Writer
	notify.CommunityStore
	SaveProfile(ctx context.Context, p notify.Profile) error
	AddCommunityChannel(ctx context.Context, semester string, scope subscriptions.Scope, key, url string) error
	Events(ctx context.Context, key string) ([]events.Event, error)
}
