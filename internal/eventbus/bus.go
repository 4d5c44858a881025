package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termdock/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
	// EventExitOutput carries the terminal output captured at process exit.
	EventExitOutput EventType = "exit_output"
)

// Event represents a watcher-facing event emitted by the controller.
type Event struct {
	Type       EventType
	Session    schema.SessionEvent
	ExitOutput schema.ExitOutputEvent
}

// Bus fanouts controller events to subscribers. Session visibility is
// global, so subscriptions are too.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
		if b.log != nil {
			b.log.Debug("eventbus unsubscribe")
		}
	}
}

// OnSessionEvent publishes a session lifecycle event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(Event{Type: EventSession, Session: event})
}

// OnExitOutput publishes captured exit output.
func (b *Bus) OnExitOutput(event schema.ExitOutputEvent) {
	b.publish(Event{Type: EventExitOutput, ExitOutput: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	// Sends happen under the mutex so cancel cannot close a channel
	// between snapshot and send. Channels are buffered and sends never
	// block; a full subscriber drops the event.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
