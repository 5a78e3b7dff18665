package events

import "sync"

// Bus fans emitted events out to every registered subscriber in
// subscription order. Emission is synchronous: an event is fully delivered
// before Emit returns, preserving the append-only ordering observers rely
// on.
type Bus struct {
	mu   sync.RWMutex
	subs []Emitter
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an additional downstream emitter. Nil subscribers are
// ignored.
func (b *Bus) Subscribe(sub Emitter) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Emit implements the Emitter interface.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	subs := make([]Emitter, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Emit(evt)
	}
}
