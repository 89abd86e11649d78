package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// Subscriber adapts the broker's messages to one transport.
type Subscriber interface {
	// Send delivers m. It must not block.
	Send(m Message) error
	// Close disconnects every client of the transport.
	Close() error
}

// Broker numbers messages and hands them to every subscriber in order.
type Broker struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	queue  chan Message
	seq    atomic.Uint64
	logger *zerolog.Logger
	now    func() time.Time
}

// NewBroker creates a broker. Subscribers may be added before Run.
func NewBroker(logger *zerolog.Logger) *Broker {
	return &Broker{
		subs:   make(map[Subscriber]struct{}),
		queue:  make(chan Message, constants.ChannelBufferSize),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Subscribe adds sub.
func (b *Broker) Subscribe(sub Subscriber) {
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

// Len returns the number of subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PublishEntry queues a feed entry.
func (b *Broker) PublishEntry(e livefeed.Entry) {
	b.publish(Message{Kind: KindEntry, Entry: &e})
}

// PublishCycle queues a cycle summary.
func (b *Broker) PublishCycle(c Cycle) {
	b.publish(Message{Kind: KindCycle, Cycle: &c})
}

// publish stamps m and queues it. A full queue drops m: stream clients
// recover missed entries from the feed backlog on reconnect.
func (b *Broker) publish(m Message) {
	m.Seq = b.seq.Add(1)
	if m.Time.IsZero() {
		m.Time = b.now().UTC()
	}
	select {
	case b.queue <- m:
	default:
		b.logger.Warn().Str("type", string(m.Kind)).Uint64("seq", m.Seq).Msg("Stream queue full, message dropped")
	}
}

// Run delivers queued messages until ctx is canceled, then closes every
// subscriber.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			subs := b.subs
			b.subs = make(map[Subscriber]struct{})
			b.mu.Unlock()
			for sub := range subs {
				_ = sub.Close()
			}
			b.logger.Debug().Msg("Stream broker stopped")
			return

		case m := <-b.queue:
			b.mu.RLock()
			for sub := range b.subs {
				if err := sub.Send(m); err != nil {
					b.logger.Warn().Err(err).Str("type", string(m.Kind)).Msg("Stream subscriber failed")
				}
			}
			b.mu.RUnlock()
		}
	}
}
