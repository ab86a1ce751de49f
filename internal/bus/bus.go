// Package bus provides a minimal typed in-process publish/subscribe mechanism.
// It exists so the subscription manager, alert engine and command-parsing
// components can be constructed independently and wired together once at
// startup, each depending only on the event types.
package bus

import (
	"log/slog"
	"sync"

	"github.com/Durss/streamerRaider/internal/domain"
)

// Handler receives a single event. Handlers run synchronously on the
// emitter's goroutine, in registration order.
type Handler func(domain.Event)

// Bus fans events out to registered handlers. There is no queueing, no
// backpressure and no cross-process delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[domain.EventType][]Handler)}
}

// On registers a handler for the given event type.
func (b *Bus) On(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Emit invokes every handler registered for the event's type. A panicking
// handler is isolated so it cannot prevent the remaining handlers from running.
func (b *Bus) Emit(e domain.Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		call(h, e)
	}
}

func call(h Handler, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "event", e.Type, "profile", e.Profile, "broadcaster", e.BroadcasterID, "panic", r)
		}
	}()
	h(e)
}
