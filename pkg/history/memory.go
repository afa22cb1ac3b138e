package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

func (m *Memory) Append(_ context.Context, character string, msgs ...smartnpc.HistoryMessage) error {
	if _, err := escape(character); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[character] = appendEntries(m.entries[character], msgs)
	return nil
}

func (m *Memory) List(_ context.Context, character string) ([]Entry, error) {
	if _, err := escape(character); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries[character]), nil
}

func (m *Memory) Replace(_ context.Context, character string, msgs []smartnpc.HistoryMessage) error {
	if _, err := escape(character); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[character] = appendEntries(nil, msgs)
	return nil
}

func (m *Memory) Clear(_ context.Context, character string) error {
	if _, err := escape(character); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, character)
	return nil
}

func (m *Memory) Close() error { return nil }

func appendEntries(entries []Entry, msgs []smartnpc.HistoryMessage) []Entry {
	now := time.Now()
	for _, msg := range msgs {
		entries = append(entries, Entry{Seq: uint64(len(entries)) + 1, Time: now, Message: msg})
	}
	return entries
}
