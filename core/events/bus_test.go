package events

import "testing"

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt Event) {
	r.types = append(r.types, evt.EventType())
}

type testEvent string

func (t testEvent) EventType() string { return string(t) }

func TestBusFansOutInOrder(t *testing.T) {
	bus := NewBus()
	first := &recordingEmitter{}
	second := &recordingEmitter{}
	bus.Subscribe(first)
	bus.Subscribe(second)

	bus.Emit(testEvent("a"))
	bus.Emit(testEvent("b"))

	for _, sub := range []*recordingEmitter{first, second} {
		if len(sub.types) != 2 {
			t.Fatalf("expected 2 events, got %d", len(sub.types))
		}
		if sub.types[0] != "a" || sub.types[1] != "b" {
			t.Fatalf("unexpected order: %v", sub.types)
		}
	}
}

func TestBusIgnoresNilSubscriberAndEvent(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(nil)
	bus.Emit(nil)

	rec := &recordingEmitter{}
	bus.Subscribe(rec)
	bus.Emit(testEvent("x"))
	if len(rec.types) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.types))
	}
}
