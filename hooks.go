package seatwatch

import (
	"sync"

	"github.com/agentstation/seatwatch/pkg/events"
)

// Hook function types for pipeline events
type (
	// EventHook is called for every persisted event of a cycle
	EventHook func(ev events.Event)

	// CycleHook is called when a cycle finishes, including skipped cycles
	CycleHook func(report CycleReport)
)

// hooks manages callbacks registered on a Pipeline
type hooks struct {
	mu      sync.RWMutex
	onEvent []EventHook
	onCycle []CycleHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnEvent registers a callback for each persisted event.
func (p *Pipeline) OnEvent(fn EventHook) {
	p.hooks.mu.Lock()
	defer p.hooks.mu.Unlock()
	p.hooks.onEvent = append(p.hooks.onEvent, fn)
}

// OnCycle registers a callback for finished cycles.
func (p *Pipeline) OnCycle(fn CycleHook) {
	p.hooks.mu.Lock()
	defer p.hooks.mu.Unlock()
	p.hooks.onCycle = append(p.hooks.onCycle, fn)
}

// triggerEvents calls event hooks in order
func (h *hooks) triggerEvents(evs []events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ev := range evs {
		for _, fn := range h.onEvent {
			fn(ev)
		}
	}
}

// triggerCycle calls cycle hooks
func (h *hooks) triggerCycle(report CycleReport) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onCycle {
		fn(report)
	}
}
