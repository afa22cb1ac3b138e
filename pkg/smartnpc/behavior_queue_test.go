package smartnpc

import (
	"slices"
	"testing"
)

func TestBehaviorQueue_HeadAndAdvance(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)

	var seen []string
	var next func()
	q.Consume(func(b Behavior, n func()) {
		seen = append(seen, b.(Action).Name)
		next = n
	})

	q.Add(Action{Name: "wave"})
	q.Add(Action{Name: "bow"})
	drain(l)
	if !slices.Equal(seen, []string{"wave"}) {
		t.Fatalf("seen = %v, want [wave]", seen)
	}
	if head, _ := q.Head(); head.(Action).Name != "wave" || q.Len() != 2 {
		t.Errorf("head = %v, len = %d", head, q.Len())
	}

	first := next
	first()
	first()
	drain(l)
	if !slices.Equal(seen, []string{"wave", "bow"}) {
		t.Fatalf("seen = %v, want [wave bow]", seen)
	}
	if q.Len() != 1 {
		t.Errorf("len = %d after one advance, want 1", q.Len())
	}

	next()
	drain(l)
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
	if _, ok := q.Head(); ok {
		t.Error("head present on empty queue")
	}
}

func TestBehaviorQueue_SharedAdvance(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)

	var nexts []func()
	offers := 0
	for range 2 {
		q.Consume(func(_ Behavior, n func()) {
			offers++
			nexts = append(nexts, n)
		})
	}
	q.Add(Gesture{Name: "nod"})
	q.Add(Gesture{Name: "shrug"})
	drain(l)
	if offers != 2 {
		t.Fatalf("offers = %d, want 2 (one per consumer)", offers)
	}

	nexts[0]()
	nexts[1]()
	drain(l)
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1: two next calls for one head advanced twice", q.Len())
	}
}

func TestBehaviorQueue_LateConsumerCatchesUp(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)

	early := 0
	q.Consume(func(Behavior, func()) { early++ })
	q.Add(Action{Name: "jump"})
	drain(l)

	var late []Behavior
	q.Consume(func(b Behavior, _ func()) { late = append(late, b) })
	drain(l)

	if early != 1 {
		t.Errorf("early consumer called %d times, want 1", early)
	}
	if len(late) != 1 || late[0].(Action).Name != "jump" {
		t.Errorf("late consumer got %v", late)
	}
}

func TestBehaviorQueue_NoConsumerStalls(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)
	q.Add(Action{Name: "a"})
	q.Add(Action{Name: "b"})
	drain(l)
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}

	var got []string
	q.ConsumeActions(func(a Action, next func()) {
		got = append(got, a.Name)
		next()
	})
	drain(l)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}

func TestBehaviorQueue_TypedConsumers(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)

	var actions, gestures []string
	q.ConsumeActions(func(a Action, next func()) {
		actions = append(actions, a.Name)
		next()
	})
	q.ConsumeGestures(func(g Gesture, next func()) {
		gestures = append(gestures, g.StateName())
		next()
	})

	q.Add(Action{Name: "sit"})
	q.Add(Gesture{Name: "Wave"})
	q.Add(Action{Name: "stand"})
	drain(l)

	if !slices.Equal(actions, []string{"sit", "stand"}) {
		t.Errorf("actions = %v", actions)
	}
	if !slices.Equal(gestures, []string{"SmartNPCWave"}) {
		t.Errorf("gestures = %v", gestures)
	}
}

func TestBehaviorQueue_StopConsuming(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)
	calls := 0
	sub := q.Consume(func(Behavior, func()) { calls++ })
	q.StopConsuming(sub)
	q.Add(Action{Name: "a"})
	drain(l)
	if calls != 0 {
		t.Errorf("stopped consumer called %d times", calls)
	}
}

func TestBehaviorQueue_ClearInvalidatesNext(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)
	var next func()
	q.Consume(func(_ Behavior, n func()) { next = n })
	q.Add(Action{Name: "a"})
	drain(l)
	stale := next

	q.Clear()
	q.Add(Action{Name: "b"})
	drain(l)

	stale()
	drain(l)
	if head, ok := q.Head(); !ok || head.(Action).Name != "b" {
		t.Errorf("head = %v, want b", head)
	}
	next()
	if q.Len() != 0 {
		t.Errorf("len = %d, want 0", q.Len())
	}
}

func TestBehaviorQueue_OnAdd(t *testing.T) {
	l := NewLoop()
	q := NewBehaviorQueue(l, nil)
	var sizes []int
	q.OnAdd(func(_ Behavior, queued []Behavior) { sizes = append(sizes, len(queued)) })
	q.Add(Action{Name: "a"})
	drain(l)
	q.Add(Action{Name: "b"})
	drain(l)
	if !slices.Equal(sizes, []int{1, 2}) {
		t.Errorf("sizes = %v", sizes)
	}
	if items := q.Items(); len(items) != 2 {
		t.Errorf("Items = %v", items)
	}
}
