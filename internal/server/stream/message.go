// Package stream fans live feed activity out to connected transports.
//
// The pipeline publishes into a Broker, which numbers every message and
// hands it to each registered Subscriber. The WebSocket hub and the SSE
// broadcaster are subscribers; they apply each client's Filter.
package stream

import (
	"strconv"
	"time"

	"github.com/agentstation/seatwatch/pkg/livefeed"
)

// Kind names a kind of message.
type Kind string

// Message kinds.
const (
	KindEntry Kind = "feed.entry"
	KindCycle Kind = "cycle.completed"
	KindHello Kind = "client.connected"
)

// Message is one frame sent to stream clients. Exactly one of Entry and
// Cycle is set, except on hello frames.
type Message struct {
	Seq    uint64          `json:"seq,omitempty"`
	Kind   Kind            `json:"type"`
	Time   time.Time       `json:"timestamp"`
	Entry  *livefeed.Entry `json:"entry,omitempty"`
	Cycle  *Cycle          `json:"cycle,omitempty"`
	Client string          `json:"client,omitempty"`
}

// Cycle summarizes one finished scrape cycle.
type Cycle struct {
	Semester  string    `json:"semester"`
	Prefix    string    `json:"prefix"`
	Batch     time.Time `json:"batch"`
	Events    int       `json:"events"`
	Skipped   bool      `json:"skipped,omitempty"`
	Seeded    bool      `json:"seeded,omitempty"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
}

// EntryMessage wraps a feed entry. Backlog messages carry no sequence.
func EntryMessage(e livefeed.Entry) Message {
	return Message{Kind: KindEntry, Time: e.ObservedAt, Entry: &e}
}

// ID is the resume token clients echo back: the event id for feed
// entries, the sequence number otherwise.
func (m Message) ID() string {
	if m.Entry != nil {
		return m.Entry.EventID
	}
	if m.Seq == 0 {
		return ""
	}
	return strconv.FormatUint(m.Seq, 10)
}
