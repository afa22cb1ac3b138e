package smartnpc

import (
	"sync"
	"sync/atomic"
)

var subscriptionSeq atomic.Uint64

// Subscription identifies one registered handler. The zero value is inert.
type Subscription struct {
	id  uint64
	off func(id uint64)
}

// Cancel removes the handler. It is idempotent and only affects this
// registration.
func (s Subscription) Cancel() {
	if s.off != nil {
		s.off(s.id)
	}
}

// Valid reports whether s came from a registration.
func (s Subscription) Valid() bool {
	return s.id != 0
}

type listener[F any] struct {
	id uint64
	fn F
}

// listeners is an ordered handler list. The owner holds the lock.
type listeners[F any] struct {
	entries []listener[F]
}

func (ls *listeners[F]) add(fn F) uint64 {
	id := subscriptionSeq.Add(1)
	ls.entries = append(ls.entries, listener[F]{id: id, fn: fn})
	return id
}

func (ls *listeners[F]) remove(id uint64) bool {
	for i, e := range ls.entries {
		if e.id == id {
			ls.entries = append(ls.entries[:i:i], ls.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (ls *listeners[F]) has(id uint64) bool {
	for _, e := range ls.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

func (ls *listeners[F]) snapshot() []listener[F] {
	if len(ls.entries) == 0 {
		return nil
	}
	out := make([]listener[F], len(ls.entries))
	copy(out, ls.entries)
	return out
}

func (ls *listeners[F]) len() int {
	return len(ls.entries)
}

func (ls *listeners[F]) clear() {
	ls.entries = nil
}

// event is a set of callbacks fired through a Loop.
type event[T any] struct {
	mu sync.Mutex
	ls listeners[func(T)]
}

func (e *event[T]) on(fn func(T)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Subscription{id: e.ls.add(fn), off: e.off}
}

func (e *event[T]) off(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ls.remove(id)
}

func (e *event[T]) alive(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ls.has(id)
}

// fire delivers v to the handlers on the next turn. A handler canceled
// before its turn is skipped.
func (e *event[T]) fire(loop *Loop, v T) {
	loop.Post(func() { e.emit(v) })
}

// emit delivers v synchronously. It must run on the loop.
func (e *event[T]) emit(v T) {
	e.mu.Lock()
	snap := e.ls.snapshot()
	e.mu.Unlock()
	for _, l := range snap {
		if e.alive(l.id) {
			l.fn(v)
		}
	}
}

func (e *event[T]) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ls.clear()
}
