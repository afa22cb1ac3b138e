package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Badger is a Store backed by BadgerDB v4. Each entry lives under
// "history:<character>:<seq>" with seq as fixed-width hex, so key order is
// history order.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, only warnings and errors are
	// logged through the standard log package.
	Logger badger.Logger
}

// NewBadger opens a BadgerDB-backed Store.
func NewBadger(bopts BadgerOptions) (*Badger, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("history: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(bopts.Dir)
	if bopts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if bopts.Logger != nil {
		dbOpts = dbOpts.WithLogger(bopts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(defaultLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("history: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func prefixKey(character string) ([]byte, error) {
	c, err := escape(character)
	if err != nil {
		return nil, err
	}
	return []byte("history:" + c + ":"), nil
}

func entryKey(prefix []byte, seq uint64) []byte {
	return fmt.Appendf(append([]byte(nil), prefix...), "%016x", seq)
}

func seqOf(prefix, key []byte) (uint64, error) {
	return strconv.ParseUint(string(key[len(prefix):]), 16, 64)
}

func (b *Badger) Append(_ context.Context, character string, msgs ...smartnpc.HistoryMessage) error {
	prefix, err := prefixKey(character)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		last, err := lastSeq(txn, prefix)
		if err != nil {
			return err
		}
		return setAll(txn, prefix, last, msgs)
	})
}

func (b *Badger) List(_ context.Context, character string) ([]Entry, error) {
	prefix, err := prefixKey(character)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	err = b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			seq, err := seqOf(prefix, item.Key())
			if err != nil {
				return fmt.Errorf("history: bad key %q: %w", item.Key(), err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := decodeRecord(seq, val)
			if err != nil {
				return fmt.Errorf("history: decode %q: %w", item.Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func (b *Badger) Replace(_ context.Context, character string, msgs []smartnpc.HistoryMessage) error {
	prefix, err := prefixKey(character)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deleteAll(txn, prefix); err != nil {
			return err
		}
		return setAll(txn, prefix, 0, msgs)
	})
}

func (b *Badger) Clear(_ context.Context, character string) error {
	prefix, err := prefixKey(character)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return deleteAll(txn, prefix)
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// lastSeq returns the highest stored seq under prefix, or 0.
func lastSeq(txn *badger.Txn, prefix []byte) (uint64, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.Reverse = true
	iterOpts.PrefetchValues = false
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	seek := append(append([]byte(nil), prefix...), 0xff)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return 0, nil
	}
	return seqOf(prefix, it.Item().Key())
}

func setAll(txn *badger.Txn, prefix []byte, after uint64, msgs []smartnpc.HistoryMessage) error {
	now := time.Now()
	for i, m := range msgs {
		val, err := encodeRecord(now, m)
		if err != nil {
			return fmt.Errorf("history: encode: %w", err)
		}
		if err := txn.Set(entryKey(prefix, after+uint64(i)+1), val); err != nil {
			return err
		}
	}
	return nil
}

func deleteAll(txn *badger.Txn, prefix []byte) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.PrefetchValues = false
	it := txn.NewIterator(iterOpts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// defaultLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type defaultLogger struct{}

func (defaultLogger) Errorf(f string, v ...interface{}) { log.Printf("[badger] ERROR: "+f, v...) }
func (defaultLogger) Warningf(f string, v ...interface{}) {
	log.Printf("[badger] WARN: "+f, v...)
}
func (defaultLogger) Infof(string, ...interface{})  {}
func (defaultLogger) Debugf(string, ...interface{}) {}
