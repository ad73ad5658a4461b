// Package localbus is the in-process implementation of events.Bus.
package localbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/veridianlabs/go-auth-client/events"
)

// Bus delivers events synchronously to every subscriber of a channel.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[string]events.Handler // channel -> subscription ID -> handler
}

// New creates a new in-process bus
func New() *Bus {
	return &Bus{channels: make(map[string]map[string]events.Handler)}
}

// Dispatch delivers ev to all handlers currently subscribed to channel. The
// subscriber set is snapshotted before delivery, so handlers may subscribe or
// unsubscribe (including themselves) while being invoked.
func (b *Bus) Dispatch(channel string, ev events.Event) {
	b.mu.RLock()
	handlers := make([]events.Handler, 0, len(b.channels[channel]))
	for _, h := range b.channels[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribe registers h on channel and returns the handle used to remove it.
func (b *Bus) Subscribe(channel string, h events.Handler) events.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.channels[channel]; !ok {
		b.channels[channel] = make(map[string]events.Handler)
	}
	id := uuid.New().String()
	b.channels[channel][id] = h
	return &subscription{bus: b, channel: channel, id: id}
}

type subscription struct {
	bus     *Bus
	channel string
	id      string
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		handlers, ok := s.bus.channels[s.channel]
		if !ok {
			return
		}
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.bus.channels, s.channel)
		}
	})
}
