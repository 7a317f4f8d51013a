package transport

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler processes one inbound message. Returned errors and panics are
// reported as errors.HandlerError and never stop dispatch.
type Handler func(ctx context.Context, msg *Message) error

// Unsubscribe removes the registration that returned it. Calling it more
// than once is harmless.
type Unsubscribe func()

type subscription struct {
	msgType  string
	handler  Handler
	priority Priority
	active   atomic.Bool
}

// subscriptionRegistry maps message types to handlers in registration order.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[string][]*subscription)}
}

func (r *subscriptionRegistry) add(msgType string, h Handler, priority Priority) Unsubscribe {
	sub := &subscription{msgType: msgType, handler: h, priority: priority}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[msgType] = append(r.subs[msgType], sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(sub) })
	}
}

// remove deletes sub by identity and drops the type once it has no handlers.
func (r *subscriptionRegistry) remove(sub *subscription) {
	sub.active.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[sub.msgType]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.subs, sub.msgType)
		return
	}
	r.subs[sub.msgType] = list
}

// lookup returns the handlers for msgType. The slice is never mutated in
// place, so callers may iterate it without the lock.
func (r *subscriptionRegistry) lookup(msgType string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[msgType]
}

func (r *subscriptionRegistry) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs))
	for t := range r.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *subscriptionRegistry) count(msgType string) int {
	return len(r.lookup(msgType))
}
