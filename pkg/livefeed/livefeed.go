// Package livefeed keeps a short-retention, display-oriented feed of recent
// events.
//
// Entries are ordered by the time this writer observed them rather than by
// the scrape timestamp, so the feed reflects what workers have actually
// processed even when batches arrive out of order. Old entries are pruned
// opportunistically after writes instead of by a scheduled job.
package livefeed

import (
	"context"
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// Entry is the display projection of one event.
type Entry struct {
	EventID    string      `json:"event_id"`
	Semester   string      `json:"semester"`
	Department string      `json:"department"`
	Course     string      `json:"course"`
	Section    string      `json:"section,omitempty"`
	Type       events.Type `json:"type"`
	Title      string      `json:"title,omitempty"`
	Old        string      `json:"old,omitempty"`
	New        string      `json:"new,omitempty"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Project builds the feed entry for ev. Long text is truncated.
func Project(ev events.Event, observedAt time.Time) Entry {
	old, cur := ev.Values()
	return Entry{
		EventID:    ev.ID,
		Semester:   ev.Semester,
		Department: catalog.Department(ev.Course),
		Course:     ev.Course,
		Section:    ev.Section,
		Type:       ev.Type,
		Title:      truncate(ev.Title, constants.FeedTextLimit),
		Old:        truncate(old, constants.FeedTextLimit),
		New:        truncate(cur, constants.FeedTextLimit),
		ObservedAt: observedAt.UTC(),
	}
}

// Store is a time-ordered feed store.
type Store interface {
	// Append adds entries. Re-appending an event id replaces the entry.
	Append(ctx context.Context, entries []Entry) error
	// PruneBefore deletes at most limit entries observed before cutoff and
	// returns how many were deleted.
	PruneBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Publisher receives entries after they are stored.
type Publisher interface {
	Publish(entries []Entry)
}

// Stats reports what a Write did.
type Stats struct {
	Appended int
	Pruned   int
}

// Writer appends events to the feed.
type Writer struct {
	store       Store
	publisher   Publisher
	retention   time.Duration
	probability float64
	batch       int
	now         func() time.Time
	roll        func() float64
	logger      *zerolog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithPublisher forwards stored entries to p.
func WithPublisher(p Publisher) Option {
	return func(w *Writer) {
		w.publisher = p
	}
}

// WithRetention sets how long entries are kept.
func WithRetention(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.retention = d
		}
	}
}

// WithPruneProbability sets the chance that a write triggers a prune.
func WithPruneProbability(p float64) Option {
	return func(w *Writer) {
		w.probability = p
	}
}

// WithPruneBatch sets the page size used when pruning.
func WithPruneBatch(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithClock overrides the observation clock.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// WithRandom overrides the source of prune rolls, which must return values
// in [0, 1).
func WithRandom(roll func() float64) Option {
	return func(w *Writer) {
		w.roll = roll
	}
}

// WithLogger sets the writer's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(w *Writer) {
		w.logger = logging.OrNop(logger)
	}
}

// NewWriter creates a feed writer over store.
func NewWriter(store Store, opts ...Option) *Writer {
	w := &Writer{
		store:       store,
		retention:   constants.FeedRetention,
		probability: constants.FeedPruneProbability,
		batch:       constants.FeedPruneBatch,
		now:         time.Now,
		roll:        rand.Float64,
		logger:      logging.OrNop(nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends the events in order. Entries in one batch get strictly
// increasing observation times so that their order survives storage.
func (w *Writer) Write(ctx context.Context, evs []events.Event) (Stats, error) {
	var stats Stats
	if len(evs) == 0 {
		return stats, nil
	}

	observed := w.now()
	entries := make([]Entry, len(evs))
	for i, ev := range evs {
		entries[i] = Project(ev, observed.Add(time.Duration(i)))
	}
	if err := w.store.Append(ctx, entries); err != nil {
		return stats, errors.WrapStore("append", "live_feed", "", err)
	}
	stats.Appended = len(entries)

	if w.publisher != nil {
		w.publisher.Publish(entries)
	}

	if w.roll() < w.probability {
		pruned, err := w.Prune(ctx)
		stats.Pruned = pruned
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Prune deletes entries older than the retention window, one page at a
// time, until a page comes back short.
func (w *Writer) Prune(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.retention)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.store.PruneBefore(ctx, cutoff, w.batch)
		total += n
		if err != nil {
			return total, errors.WrapStore("prune", "live_feed", "", err)
		}
		if n < w.batch {
			break
		}
	}
	w.logger.Debug().Time("cutoff", cutoff).Int("pruned", total).Msg("Pruned live feed")
	return total, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
