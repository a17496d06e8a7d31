package events

import (
	"io"
	"log/slog"
	"testing"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOnReceivesMatchingType(t *testing.T) {
	bus := newTestBus()

	var got []Event
	bus.On(EventAuthComplete, func(e Event) { got = append(got, e) })

	bus.Emit(Event{Type: EventAuthComplete})
	bus.Emit(Event{Type: EventAlert})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Type != EventAuthComplete {
		t.Errorf("type = %q", got[0].Type)
	}
}

func TestOnAllReceivesEverything(t *testing.T) {
	bus := newTestBus()

	var count int
	bus.OnAll(func(Event) { count++ })

	bus.Emit(Event{Type: EventAuthComplete})
	bus.Emit(Event{Type: EventAlert})
	bus.Emit(Event{Type: EventStateUpdate})

	if count != 3 {
		t.Errorf("handler called %d times, want 3", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus()

	var count int
	unsub := bus.On(EventAlert, func(Event) { count++ })

	bus.Emit(Event{Type: EventAlert})
	unsub()
	bus.Emit(Event{Type: EventAlert})

	if count != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", count)
	}
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	bus := newTestBus()

	bus.On(EventAlert, func(Event) { panic("boom") })

	var after bool
	bus.On(EventAlert, func(Event) { after = true })

	bus.Emit(Event{Type: EventAlert}) // must not panic the caller

	if !after {
		t.Error("handler after the panicking one was not called")
	}
}
