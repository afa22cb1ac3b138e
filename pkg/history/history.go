// Package history caches SmartNPC message history outside the service.
//
// A Store keeps an ordered list of exchanges per character. The CLI keeps
// its local copy in a Badger store; the mock server keeps the authoritative
// copy in Memory or Redis. Records are msgpack encoded in the persistent
// stores.
package history

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// ErrEmptyCharacter is returned when a character id is empty.
var ErrEmptyCharacter = errors.New("history: empty character id")

// Entry is one cached exchange.
type Entry struct {
	// Seq is the 1-based position of the entry in its character's history.
	Seq uint64

	// Time is when the entry was stored.
	Time time.Time

	Message smartnpc.HistoryMessage
}

// Store is an ordered per-character message history.
type Store interface {
	// Append adds messages to the end of a character's history.
	Append(ctx context.Context, character string, msgs ...smartnpc.HistoryMessage) error

	// List returns a character's history, oldest first. An unknown
	// character has an empty history.
	List(ctx context.Context, character string) ([]Entry, error)

	// Replace discards a character's history and stores msgs instead.
	Replace(ctx context.Context, character string, msgs []smartnpc.HistoryMessage) error

	// Clear removes a character's history.
	Clear(ctx context.Context, character string) error

	// Close releases any resources held by the store.
	Close() error
}

// Messages strips the bookkeeping from entries.
func Messages(entries []Entry) []smartnpc.HistoryMessage {
	out := make([]smartnpc.HistoryMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// record is the stored form of an Entry. Seq lives in the key.
type record struct {
	Time    int64                   `msgpack:"t"`
	Message smartnpc.HistoryMessage `msgpack:"m"`
}

func encodeRecord(t time.Time, m smartnpc.HistoryMessage) ([]byte, error) {
	return msgpack.Marshal(&record{Time: t.UnixMilli(), Message: m})
}

func decodeRecord(seq uint64, data []byte) (Entry, error) {
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Entry{}, err
	}
	return Entry{Seq: seq, Time: time.UnixMilli(r.Time), Message: r.Message}, nil
}

// escape makes a character id safe to use as one key segment.
func escape(character string) (string, error) {
	if strings.TrimSpace(character) == "" {
		return "", ErrEmptyCharacter
	}
	return url.QueryEscape(character), nil
}
