package history_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

func newBadgerStore(t *testing.T) history.Store {
	t.Helper()
	s, err := history.NewBadger(history.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRedisStore(t *testing.T) history.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s := history.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { s.Close() })
	return s
}

var stores = []struct {
	name string
	new  func(t *testing.T) history.Store
}{
	{"memory", func(*testing.T) history.Store { return history.NewMemory() }},
	{"badger", newBadgerStore},
	{"redis", newRedisStore},
}

func msg(i int) smartnpc.HistoryMessage {
	return smartnpc.HistoryMessage{
		Message:  fmt.Sprintf("question %d", i),
		Response: fmt.Sprintf("answer %d", i),
	}
}

func TestStore_AppendList(t *testing.T) {
	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.new(t)

			got, err := s.List(ctx, "npc")
			if err != nil {
				t.Fatalf("List empty: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("List empty = %d entries", len(got))
			}

			withBehavior := msg(1)
			withBehavior.Behaviors = []smartnpc.RawBehavior{{Type: "gesture", Args: []string{"wave"}}}
			if err := s.Append(ctx, "npc", withBehavior, msg(2)); err != nil {
				t.Fatalf("Append: %v", err)
			}
			// 17 entries cross a hex digit boundary in the badger keys.
			for i := 3; i <= 17; i++ {
				if err := s.Append(ctx, "npc", msg(i)); err != nil {
					t.Fatalf("Append %d: %v", i, err)
				}
			}

			got, err = s.List(ctx, "npc")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 17 {
				t.Fatalf("List = %d entries, want 17", len(got))
			}
			for i, e := range got {
				if e.Seq != uint64(i+1) {
					t.Errorf("entry %d Seq = %d", i, e.Seq)
				}
				if e.Message.Message != msg(i+1).Message {
					t.Errorf("entry %d = %q", i, e.Message.Message)
				}
				if e.Time.IsZero() {
					t.Errorf("entry %d has no time", i)
				}
			}
			b := got[0].Message.Behaviors
			if len(b) != 1 || b[0].Type != "gesture" || !slices.Equal(b[0].Args, []string{"wave"}) {
				t.Errorf("behaviors = %+v", b)
			}
		})
	}
}

func TestStore_CharactersIsolated(t *testing.T) {
	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.new(t)

			// "a" must not see "a:b" even though one key prefixes the other.
			if err := s.Append(ctx, "a", msg(1)); err != nil {
				t.Fatal(err)
			}
			if err := s.Append(ctx, "a:b", msg(2), msg(3)); err != nil {
				t.Fatal(err)
			}

			a, err := s.List(ctx, "a")
			if err != nil {
				t.Fatal(err)
			}
			if len(a) != 1 || a[0].Message.Message != msg(1).Message {
				t.Errorf("a = %+v", a)
			}
			ab, err := s.List(ctx, "a:b")
			if err != nil {
				t.Fatal(err)
			}
			if len(ab) != 2 {
				t.Errorf("a:b = %d entries", len(ab))
			}

			if err := s.Clear(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			if a, _ := s.List(ctx, "a"); len(a) != 0 {
				t.Errorf("a after Clear = %d entries", len(a))
			}
			if ab, _ := s.List(ctx, "a:b"); len(ab) != 2 {
				t.Errorf("a:b after clearing a = %d entries", len(ab))
			}
		})
	}
}

func TestStore_Replace(t *testing.T) {
	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.new(t)

			if err := s.Append(ctx, "npc", msg(1), msg(2), msg(3)); err != nil {
				t.Fatal(err)
			}
			if err := s.Replace(ctx, "npc", []smartnpc.HistoryMessage{msg(9)}); err != nil {
				t.Fatalf("Replace: %v", err)
			}
			got, err := s.List(ctx, "npc")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Seq != 1 || got[0].Message.Message != "question 9" {
				t.Errorf("after Replace = %+v", got)
			}

			// Appends continue after the replaced history.
			if err := s.Append(ctx, "npc", msg(10)); err != nil {
				t.Fatal(err)
			}
			got, _ = s.List(ctx, "npc")
			if len(got) != 2 || got[1].Seq != 2 {
				t.Errorf("after Append = %+v", got)
			}

			if err := s.Replace(ctx, "npc", nil); err != nil {
				t.Fatalf("Replace nil: %v", err)
			}
			if got, _ := s.List(ctx, "npc"); len(got) != 0 {
				t.Errorf("after Replace nil = %d entries", len(got))
			}
		})
	}
}

func TestStore_EmptyCharacter(t *testing.T) {
	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.new(t)
			if err := s.Append(ctx, "", msg(1)); !errors.Is(err, history.ErrEmptyCharacter) {
				t.Errorf("Append err = %v", err)
			}
			if _, err := s.List(ctx, " "); !errors.Is(err, history.ErrEmptyCharacter) {
				t.Errorf("List err = %v", err)
			}
			if err := s.Clear(ctx, ""); !errors.Is(err, history.ErrEmptyCharacter) {
				t.Errorf("Clear err = %v", err)
			}
		})
	}
}

func TestBadger_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := history.NewBadger(history.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := s.Append(ctx, "npc", msg(1), msg(2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = history.NewBadger(history.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.List(ctx, "npc")
	if err != nil {
		t.Fatal(err)
	}
	msgs := history.Messages(got)
	if len(msgs) != 2 || msgs[1].Response != "answer 2" {
		t.Errorf("reopened = %+v", msgs)
	}
}

func TestNewBadger_RequiresDir(t *testing.T) {
	if _, err := history.NewBadger(history.BadgerOptions{}); err == nil {
		t.Fatal("NewBadger without Dir succeeded")
	}
}
