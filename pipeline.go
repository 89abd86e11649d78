// Package seatwatch tracks a university course catalog across scrapes and
// notifies subscribers when seats, waitlists, instructors or meeting times
// change.
//
// A Pipeline runs one scrape cycle at a time per department prefix:
//   - the idempotency guard drops batches that were already processed
//   - the differ turns the previous and current snapshots into typed events
//   - events are persisted by course and section
//   - the dispatcher and the live feed writer consume the batch concurrently
//
// Example usage:
//
//	p, err := seatwatch.New(
//	    seatwatch.WithStore(store),
//	    seatwatch.WithQueue(queue),
//	    seatwatch.WithPushSender(notify.NewHTTPSender(nil)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := p.Cycle(ctx, source, "202508", "CMSC", time.Now())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Dispatch.Delivered, "notifications sent")
package seatwatch

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/differ"
	"github.com/agentstation/seatwatch/pkg/guard"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Pipeline wires the guard, differ, dispatcher and live feed writer over a
// shared store. It holds no state between runs; everything that must
// survive a run lives in the store.
type Pipeline struct {
	options    *options
	logger     *zerolog.Logger
	guard      *guard.Guard
	dispatcher *notify.Dispatcher
	feed       *livefeed.Writer
	hooks      *hooks
}

// New creates a Pipeline. WithStore and WithQueue are required.
func New(opts ...Option) (*Pipeline, error) {
	o := defaults()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}
	logger := logging.OrNop(o.logger)

	dispatchOpts := []notify.Option{
		notify.WithShards(o.shards),
		notify.WithConcurrency(o.concurrency),
		notify.WithLogger(logger),
		notify.WithMetrics(o.metrics),
	}
	if o.push != nil {
		dispatchOpts = append(dispatchOpts, notify.WithPushSender(o.push))
	}
	if o.community != nil {
		dispatchOpts = append(dispatchOpts, notify.WithCommunityStore(o.community))
	}

	feedOpts := []livefeed.Option{
		livefeed.WithRetention(o.retention),
		livefeed.WithPruneProbability(o.pruneChance),
		livefeed.WithClock(o.now),
		livefeed.WithLogger(logger),
	}
	if o.publisher != nil {
		feedOpts = append(feedOpts, livefeed.WithPublisher(o.publisher))
	}

	return &Pipeline{
		options: o,
		logger:  logger,
		guard:   guard.New(o.store, guard.WithLogger(logger)),
		dispatcher: notify.NewDispatcher(
			subscriptions.NewResolver(o.store, subscriptions.WithLogger(logger)),
			o.store,
			o.queue,
			dispatchOpts...,
		),
		feed:  livefeed.NewWriter(o.store, feedOpts...),
		hooks: newHooks(),
	}, nil
}

// differOptions returns the options passed to every Generate call.
func (p *Pipeline) differOptions() []differ.Option {
	return []differ.Option{
		differ.WithLogger(p.logger),
		differ.WithIgnoredTypes(p.options.ignore...),
	}
}
