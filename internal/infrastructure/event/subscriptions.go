package event

import (
	"slices"
	"sync"

	"github.com/medledger/billing/internal/domain/shared"
)

// subscription binds a handler to the event types it wants; an empty type
// set means every event
type subscription struct {
	handler shared.EventHandler
	types   map[string]struct{}
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// subscriptionTable keeps subscriptions in registration order so that
// handlers run in the order they were wired at startup
type subscriptionTable struct {
	mu   sync.RWMutex
	subs []subscription
}

// add subscribes handler to eventTypes, merging with an existing subscription
// of the same handler
func (t *subscriptionTable) add(handler shared.EventHandler, eventTypes ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.subs {
		if t.subs[i].handler != handler {
			continue
		}
		if len(eventTypes) == 0 || len(t.subs[i].types) == 0 {
			t.subs[i].types = nil
			return
		}
		for _, et := range eventTypes {
			t.subs[i].types[et] = struct{}{}
		}
		return
	}

	sub := subscription{handler: handler}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, et := range eventTypes {
			sub.types[et] = struct{}{}
		}
	}
	t.subs = append(t.subs, sub)
}

func (t *subscriptionTable) remove(handler shared.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = slices.DeleteFunc(t.subs, func(s subscription) bool { return s.handler == handler })
}

// handlersFor returns a snapshot of the handlers interested in eventType
func (t *subscriptionTable) handlersFor(eventType string) []shared.EventHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]shared.EventHandler, 0, len(t.subs))
	for _, s := range t.subs {
		if s.wants(eventType) {
			out = append(out, s.handler)
		}
	}
	return out
}

func (t *subscriptionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
