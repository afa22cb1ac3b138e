package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// Redis is a Store backed by one Redis list per character.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis returns a Store using client. Keys are "<prefix>history:<id>";
// prefix may be empty.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(character string) (string, error) {
	c, err := escape(character)
	if err != nil {
		return "", err
	}
	return r.prefix + "history:" + c, nil
}

func encodeAll(msgs []smartnpc.HistoryMessage) ([]any, error) {
	now := time.Now()
	vals := make([]any, len(msgs))
	for i, m := range msgs {
		data, err := encodeRecord(now, m)
		if err != nil {
			return nil, fmt.Errorf("history: encode: %w", err)
		}
		vals[i] = data
	}
	return vals, nil
}

func (r *Redis) Append(ctx context.Context, character string, msgs ...smartnpc.HistoryMessage) error {
	key, err := r.key(character)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	vals, err := encodeAll(msgs)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, key, vals...).Err(); err != nil {
		return fmt.Errorf("history: redis append: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context, character string) ([]Entry, error) {
	key, err := r.key(character)
	if err != nil {
		return nil, err
	}
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: redis list: %w", err)
	}
	entries := make([]Entry, 0, len(vals))
	for i, v := range vals {
		e, err := decodeRecord(uint64(i)+1, []byte(v))
		if err != nil {
			return nil, fmt.Errorf("history: decode %s[%d]: %w", key, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Redis) Replace(ctx context.Context, character string, msgs []smartnpc.HistoryMessage) error {
	key, err := r.key(character)
	if err != nil {
		return err
	}
	vals, err := encodeAll(msgs)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(vals) > 0 {
			pipe.RPush(ctx, key, vals...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("history: redis replace: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, character string) error {
	key, err := r.key(character)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("history: redis clear: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
