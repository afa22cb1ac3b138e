package smartnpc

import (
	"encoding/json"
	"sync"
)

// EventChannel fans one transport handler per event name out to any number
// of subscribers. Dispatch happens on the Loop, in registration order.
type EventChannel struct {
	transport Transport
	loop      *Loop

	mu     sync.Mutex
	events map[string]*listeners[func(json.RawMessage)]
	closed bool
}

// NewEventChannel creates an EventChannel over t, dispatching on loop.
func NewEventChannel(t Transport, loop *Loop) *EventChannel {
	return &EventChannel{
		transport: t,
		loop:      loop,
		events:    make(map[string]*listeners[func(json.RawMessage)]),
	}
}

// Subscribe registers handler for event. The first subscription to an event
// installs the transport-level dispatcher. After Close it returns an inert
// Subscription.
func (c *EventChannel) Subscribe(event string, handler func(data json.RawMessage)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Subscription{}
	}
	ls, ok := c.events[event]
	if !ok {
		ls = &listeners[func(json.RawMessage)]{}
		c.events[event] = ls
		c.transport.On(event, func(data json.RawMessage) {
			c.loop.Post(func() { c.dispatch(event, data) })
		})
	}
	id := ls.add(handler)
	return Subscription{id: id, off: func(id uint64) { c.remove(event, id) }}
}

// Unsubscribe removes one handler. Other handlers of the same event are
// untouched. Removing twice is a no-op.
func (c *EventChannel) Unsubscribe(sub Subscription) {
	sub.Cancel()
}

// Subscribers returns the number of handlers registered for event.
func (c *EventChannel) Subscribers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ls, ok := c.events[event]; ok {
		return ls.len()
	}
	return 0
}

// Close removes every transport handler and subscription.
func (c *EventChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for event := range c.events {
		c.transport.Off(event)
	}
	c.events = nil
}

func (c *EventChannel) remove(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ls, ok := c.events[event]; ok {
		ls.remove(id)
	}
}

func (c *EventChannel) alive(event string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.events[event]
	return ok && ls.has(id)
}

// dispatch iterates a snapshot so handlers may subscribe or unsubscribe
// while it runs; a handler removed earlier in the same dispatch is skipped.
func (c *EventChannel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	ls, ok := c.events[event]
	if !ok {
		c.mu.Unlock()
		return
	}
	snap := ls.snapshot()
	c.mu.Unlock()

	for _, l := range snap {
		if c.alive(event, l.id) {
			l.fn(data)
		}
	}
}
