package smartnpc

import "sync"

// BehaviorQueue hands queued behaviors to consumers in FIFO order. The head
// is broadcast to every consumer together with a next function; the first
// call to next removes the head and offers the following item. The queue
// never advances on its own, so a head nobody advances stalls it.
type BehaviorQueue struct {
	loop   *Loop
	logger Logger

	mu        sync.Mutex
	items     []Behavior
	seq       uint64
	offered   bool
	consumers listeners[func(Behavior, func())]
	onAdd     listeners[func(Behavior, []Behavior)]
}

// NewBehaviorQueue creates an empty queue that delivers on loop.
func NewBehaviorQueue(loop *Loop, logger Logger) *BehaviorQueue {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &BehaviorQueue{loop: loop, logger: logger}
}

// Add appends b. If the queue was empty, b is offered on the next turn.
func (q *BehaviorQueue) Add(b Behavior) {
	q.mu.Lock()
	q.items = append(q.items, b)
	start := len(q.items) == 1
	seq := q.seq
	q.mu.Unlock()

	q.loop.Post(func() {
		q.mu.Lock()
		snap := q.onAdd.snapshot()
		queued := append([]Behavior(nil), q.items...)
		q.mu.Unlock()
		for _, l := range snap {
			if q.alive(&q.onAdd, l.id) {
				l.fn(b, queued)
			}
		}
		if start {
			q.offer(seq)
		}
	})
}

// Consume registers a consumer for every behavior. If a behavior is already
// being offered, only this consumer is handed it on the next turn.
func (q *BehaviorQueue) Consume(handler func(b Behavior, next func())) Subscription {
	q.mu.Lock()
	id := q.consumers.add(handler)
	catchUp := q.offered && len(q.items) > 0
	seq := q.seq
	q.mu.Unlock()

	if catchUp {
		q.loop.Post(func() {
			q.mu.Lock()
			if seq != q.seq || len(q.items) == 0 || !q.consumers.has(id) {
				q.mu.Unlock()
				return
			}
			head := q.items[0]
			q.mu.Unlock()
			handler(head, q.advancer(seq))
		})
	}
	return Subscription{id: id, off: q.removeConsumer}
}

// ConsumeActions registers a consumer that only sees actions. Other heads
// must be advanced by other consumers.
func (q *BehaviorQueue) ConsumeActions(handler func(a Action, next func())) Subscription {
	return q.Consume(func(b Behavior, next func()) {
		if a, ok := b.(Action); ok {
			handler(a, next)
		}
	})
}

// ConsumeGestures registers a consumer that only sees gestures.
func (q *BehaviorQueue) ConsumeGestures(handler func(g Gesture, next func())) Subscription {
	return q.Consume(func(b Behavior, next func()) {
		if g, ok := b.(Gesture); ok {
			handler(g, next)
		}
	})
}

// ConsumeExpressions registers a consumer that only sees expressions.
func (q *BehaviorQueue) ConsumeExpressions(handler func(e Expression, next func())) Subscription {
	return q.Consume(func(b Behavior, next func()) {
		if e, ok := b.(Expression); ok {
			handler(e, next)
		}
	})
}

// StopConsuming removes a consumer.
func (q *BehaviorQueue) StopConsuming(sub Subscription) {
	sub.Cancel()
}

// OnAdd registers fn to observe every Add with the queue contents after it.
func (q *BehaviorQueue) OnAdd(fn func(added Behavior, queued []Behavior)) Subscription {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.onAdd.add(fn)
	return Subscription{id: id, off: func(id uint64) {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.onAdd.remove(id)
	}}
}

// Len returns the number of queued behaviors, the head included.
func (q *BehaviorQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queue.
func (q *BehaviorQueue) Items() []Behavior {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Behavior(nil), q.items...)
}

// Head returns the behavior currently offered, if any.
func (q *BehaviorQueue) Head() (Behavior, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Clear drops every queued behavior. Pending next functions become no-ops.
func (q *BehaviorQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.seq++
	q.offered = false
}

// Close clears the queue and removes every consumer and observer.
func (q *BehaviorQueue) Close() {
	q.Clear()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers.clear()
	q.onAdd.clear()
}

func (q *BehaviorQueue) removeConsumer(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers.remove(id)
}

func (q *BehaviorQueue) alive(ls interface{ has(uint64) bool }, id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ls.has(id)
}

// offer broadcasts the head to every consumer if seq still names it.
func (q *BehaviorQueue) offer(seq uint64) {
	q.mu.Lock()
	if seq != q.seq || len(q.items) == 0 || q.offered {
		q.mu.Unlock()
		return
	}
	q.offered = true
	head := q.items[0]
	snap := q.consumers.snapshot()
	q.mu.Unlock()

	if len(snap) == 0 {
		q.logger.DebugPrintf("%s offered with no consumer", head.Type())
	}
	next := q.advancer(seq)
	for _, l := range snap {
		if q.alive(&q.consumers, l.id) {
			l.fn(head, next)
		}
	}
}

// advancer returns the next function for the head identified by seq. Only
// its first call has an effect.
func (q *BehaviorQueue) advancer(seq uint64) func() {
	return func() {
		q.mu.Lock()
		if seq != q.seq || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		q.items[0] = nil
		q.items = q.items[1:]
		q.seq++
		q.offered = false
		more := len(q.items) > 0
		nextSeq := q.seq
		q.mu.Unlock()

		if more {
			q.loop.Post(func() { q.offer(nextSeq) })
		}
	}
}
