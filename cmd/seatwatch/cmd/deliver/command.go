// Package deliver runs the delivery workers that drain the shard queues.
package deliver

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/delivery"
	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/internal/queue/redisq"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// NewCommand creates the deliver command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "deliver",
		GroupID: "core",
		Short:   "Drain the Discord and webhook delivery queues",
		Long: `Deliver runs one consumer per shard queue until interrupted. Use it to
scale deliveries separately from "serve" when the queues live in Redis.
Jobs left in flight by a crashed worker are requeued on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			broker, err := app.Broker(ctx)
			if err != nil {
				return err
			}
			if err := Recover(ctx, app, broker); err != nil {
				return err
			}
			NewWorker(app, broker).Run(ctx)
			return nil
		},
	}
}

// NewWorker creates a delivery worker over broker using the configured rate.
func NewWorker(app appcontext.Interface, broker queue.Broker, opts ...delivery.Option) *delivery.Worker {
	all := []delivery.Option{
		delivery.WithLogger(app.Logger()),
		delivery.WithRate(app.Settings().DeliveryRate),
		delivery.WithRegisterer(app.Registry()),
	}
	return delivery.NewWorker(broker, notify.NewHTTPSender(nil), append(all, opts...)...)
}

// Recover requeues jobs a previous worker left in flight. It is a no-op for
// brokers that do not persist in-flight jobs.
func Recover(ctx context.Context, app appcontext.Interface, broker queue.Broker) error {
	q, ok := broker.(*redisq.Queue)
	if !ok {
		return nil
	}
	n, err := q.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		app.Logger().Info().Int("jobs", n).Msg("Requeued in-flight deliveries")
	}
	return nil
}

// InProcess drains an in-process queue while a short-lived command runs.
// Wait blocks until the queue is drained or ctx is done, then stops the
// worker.
type InProcess struct {
	memory *queue.Memory
	cancel context.CancelFunc
	done   chan struct{}
}

// pollInterval is how often Wait checks whether the queue is drained.
const pollInterval = 50 * time.Millisecond

// StartInProcess starts a worker when broker is an in-process queue; jobs
// in Redis are left for a "deliver" or "serve" process. The returned value
// is never nil.
func StartInProcess(ctx context.Context, app appcontext.Interface, broker queue.Broker, opts ...delivery.Option) *InProcess {
	mem, ok := broker.(*queue.Memory)
	if !ok {
		return &InProcess{}
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &InProcess{memory: mem, cancel: cancel, done: make(chan struct{})}
	worker := NewWorker(app, broker, opts...)
	go func() {
		defer close(p.done)
		worker.Run(ctx)
	}()
	return p
}

// Wait blocks until the in-process queue is drained or ctx is done and
// stops the worker. It reports whether the queue was drained.
func (p *InProcess) Wait(ctx context.Context) bool {
	if p.memory == nil {
		return true
	}
	defer func() {
		p.cancel()
		<-p.done
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if p.memory.Drained() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
