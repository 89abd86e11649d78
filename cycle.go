package seatwatch

import (
	"context"
	"slices"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/differ"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/guard"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// CycleResult is the outcome of RunScrapeCycle.
type CycleResult struct {
	Events  []events.Event
	Skipped bool
}

// CycleReport describes one full Cycle.
type CycleReport struct {
	Semester string
	Prefix   string
	Batch    time.Time
	Events   []events.Event
	Skipped  bool
	// Seeded is true when no earlier snapshot existed; the current catalog
	// becomes the baseline and no events are emitted.
	Seeded   bool
	Dispatch notify.Result
	Feed     livefeed.Stats
	Duration time.Duration
}

// RunScrapeCycle checks the batch timestamp against the last processed run
// for semester/prefix and, unless it is a repeat, diffs the two snapshots.
// The batch is recorded as processed before returning.
func (p *Pipeline) RunScrapeCycle(ctx context.Context, previous, current catalog.Catalog, ts time.Time, semester, prefix string) (CycleResult, error) {
	res, err := p.scrape(ctx, previous, current, ts, semester, prefix)
	if err != nil {
		return CycleResult{}, err
	}
	if err := p.guard.Record(ctx, guard.Key(semester, prefix), ts); err != nil {
		return CycleResult{}, err
	}
	return res, nil
}

// scrape is RunScrapeCycle without recording the batch.
func (p *Pipeline) scrape(ctx context.Context, previous, current catalog.Catalog, ts time.Time, semester, prefix string) (CycleResult, error) {
	d, err := p.guard.Peek(ctx, guard.Key(semester, prefix), ts)
	if err != nil {
		return CycleResult{}, err
	}
	if d.Skip {
		return CycleResult{Skipped: true}, nil
	}

	if previous.Equal(current) {
		logging.FromContext(ctx).Debug().Msg("Catalog unchanged")
		return CycleResult{}, nil
	}
	return CycleResult{Events: differ.Generate(previous, current, ts, semester, p.differOptions()...)}, nil
}

// DispatchNotifications resolves recipients for evs and hands off one
// delivery per enabled channel. Partial failures are reported in the
// result, not as an error.
func (p *Pipeline) DispatchNotifications(ctx context.Context, evs []events.Event, prefix, semester string) (notify.Result, error) {
	return p.dispatcher.Dispatch(ctx, evs, prefix, semester)
}

// Cycle fetches the current catalog for semester/prefix and runs the
// pipeline against the stored snapshot. Fetch failures are returned as a
// FetchError so the trigger can retry the batch.
func (p *Pipeline) Cycle(ctx context.Context, src Source, semester, prefix string, ts time.Time) (CycleReport, error) {
	start := p.options.now()
	report := CycleReport{Semester: semester, Prefix: prefix, Batch: ts}
	ctx = logging.WithLogger(ctx, p.logger)
	ctx = logging.WithRun(ctx, semester, prefix, ts)
	logger := logging.FromContext(ctx)

	current, err := src.Fetch(ctx, semester, prefix)
	if err != nil {
		var fe *errors.FetchError
		if !errors.As(err, &fe) {
			err = errors.WrapFetch(semester, prefix, err)
		}
		return report, err
	}

	previous, err := p.options.store.LastSnapshot(ctx, semester, prefix)
	switch {
	case errors.IsNotFound(err):
		previous = current
		report.Seeded = true
	case err != nil:
		return report, errors.WrapStore("read", "snapshot", guard.Key(semester, prefix), err)
	default:
		// A malformed read means "unchanged", so it is neither diffed nor
		// stored as a value nobody observed.
		current = current.Settle(previous)
	}

	res, err := p.scrape(ctx, previous, current, ts, semester, prefix)
	if err != nil {
		return report, err
	}
	report.Skipped = res.Skipped
	report.Events = res.Events
	if res.Skipped {
		report.Duration = p.options.now().Sub(start)
		p.hooks.triggerCycle(report)
		return report, nil
	}

	// The batch counts as processed only once its events and snapshot are
	// stored; a failed attempt is retried with the same timestamp.
	if err := p.persist(ctx, semester, prefix, current, res.Events); err != nil {
		return report, err
	}
	if err := p.guard.Record(ctx, guard.Key(semester, prefix), ts); err != nil {
		return report, err
	}
	p.hooks.triggerEvents(res.Events)

	var feedErr, dispatchErr error
	if len(res.Events) > 0 {
		var wg conc.WaitGroup
		wg.Go(func() {
			report.Dispatch, dispatchErr = p.DispatchNotifications(ctx, res.Events, prefix, semester)
		})
		wg.Go(func() {
			report.Feed, feedErr = p.feed.Write(ctx, res.Events)
		})
		wg.Wait()
	}

	report.Duration = p.options.now().Sub(start)
	logger.Info().
		Int("events", len(report.Events)).
		Bool("seeded", report.Seeded).
		Int("delivered", report.Dispatch.Delivered).
		Int("failed", report.Dispatch.Failed).
		Dur("duration", report.Duration).
		Msg("Cycle complete")
	p.hooks.triggerCycle(report)

	return report, errors.Join(dispatchErr, feedErr)
}

// persist appends events grouped by key, then advances the snapshot.
func (p *Pipeline) persist(ctx context.Context, semester, prefix string, current catalog.Catalog, evs []events.Event) error {
	groups := make(map[string][]events.Event)
	for _, ev := range evs {
		groups[ev.Key()] = append(groups[ev.Key()], ev)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := p.options.store.AppendEvents(ctx, k, groups[k]); err != nil {
			return errors.WrapStore("append", "events", k, err)
		}
	}
	if err := p.options.store.SaveSnapshot(ctx, semester, prefix, current); err != nil {
		return errors.WrapStore("write", "snapshot", guard.Key(semester, prefix), err)
	}
	return nil
}

// RunAll runs a Cycle for every prefix concurrently with the same batch
// timestamp. Reports are returned in prefix order; errors are joined.
func (p *Pipeline) RunAll(ctx context.Context, src Source, semester string, prefixes []string, ts time.Time) ([]CycleReport, error) {
	reports := make([]CycleReport, len(prefixes))
	errs := make([]error, len(prefixes))

	wp := pool.New().WithMaxGoroutines(max(1, min(len(prefixes), p.options.concurrency)))
	for i, prefix := range prefixes {
		wp.Go(func() {
			reports[i], errs[i] = p.Cycle(ctx, src, semester, prefix, ts)
		})
	}
	wp.Wait()
	return reports, errors.Join(errs...)
}
