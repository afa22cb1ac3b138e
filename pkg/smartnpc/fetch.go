package smartnpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FetchOptions describes one request/response exchange.
type FetchOptions struct {
	// Event is the request event name.
	Event string

	// Data is the request payload. It must encode to a JSON object; nil
	// sends an object holding only the emitId.
	Data any

	// OnSuccess receives the reply.
	OnSuccess func(data json.RawMessage)

	// OnException receives an *Error for a correlated "exception", or an
	// error wrapping ErrTimeout.
	OnException func(err error)

	// Timeout overrides Config.RequestTimeout. Negative disables it.
	Timeout time.Duration
}

// Fetch sends a request and delivers exactly one of OnSuccess or OnException
// on a later loop turn. With neither callback set the request is
// fire-and-forget. It returns the request's emitId.
//
// Fetch fails synchronously with ErrNotReady before the service is ready,
// and with the transport error if the request could not be sent; no
// callback fires in either case.
func (c *Connection) Fetch(opts FetchOptions) (string, error) {
	if !c.IsReady() {
		return "", ErrNotReady
	}
	return c.fetch(opts)
}

// FetchAs is Fetch with the reply decoded into T. A reply that fails to
// decode is routed to onException.
func FetchAs[T any](c *Connection, event string, data any, onSuccess func(T), onException func(error)) (string, error) {
	return c.Fetch(FetchOptions{
		Event: event,
		Data:  data,
		OnSuccess: func(raw json.RawMessage) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				err = fmt.Errorf("smartnpc: decode %s reply: %w", event, err)
				if onException != nil {
					onException(err)
				} else {
					c.logger.ErrorPrintf("unhandled: %v", err)
				}
				return
			}
			if onSuccess != nil {
				onSuccess(v)
			}
		},
		OnException: onException,
	})
}

func (c *Connection) fetch(opts FetchOptions) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	emitID := newEmitID()
	payload, err := withEmitID(opts.Data, emitID)
	if err != nil {
		return "", err
	}

	if opts.OnSuccess == nil && opts.OnException == nil {
		if err := c.transport.Emit(opts.Event, payload); err != nil {
			return "", fmt.Errorf("smartnpc: fetch %s: %w", opts.Event, err)
		}
		return emitID, nil
	}

	cl := &call{}
	if opts.OnException != nil {
		cl.add(c.subscribeException(opts.Event, emitID, cl, opts.OnException))
	}
	if d := c.timeout(opts.Timeout); d > 0 {
		cl.arm(c.loop, d, func() {
			if !cl.finish() {
				return
			}
			err := fmt.Errorf("smartnpc: %s %s: %w", opts.Event, emitID, ErrTimeout)
			if opts.OnException != nil {
				opts.OnException(err)
			} else {
				c.logger.ErrorPrintf("unhandled: %v", err)
			}
		})
	}

	ack := func(data json.RawMessage) {
		c.loop.Post(func() {
			if !cl.finish() {
				return
			}
			if opts.OnSuccess != nil {
				opts.OnSuccess(data)
			}
		})
	}
	if err := c.transport.EmitWithAck(opts.Event, payload, ack); err != nil {
		cl.finish()
		return "", fmt.Errorf("smartnpc: fetch %s: %w", opts.Event, err)
	}
	return emitID, nil
}

// subscribeException installs a transient "exception" handler for emitID
// that settles cl.
func (c *Connection) subscribeException(event, emitID string, cl *call, onException func(error)) Subscription {
	return c.channel.Subscribe(EventException, func(data json.RawMessage) {
		var ex exceptionFrame
		if err := json.Unmarshal(data, &ex); err != nil {
			c.logger.DebugPrintf("decode exception: %v", err)
			return
		}
		if ex.EmitID != emitID || !cl.finish() {
			return
		}
		onException(&Error{Event: event, EmitID: emitID, Message: ex.Message})
	})
}

func (c *Connection) timeout(d time.Duration) time.Duration {
	if d == 0 {
		return c.cfg.RequestTimeout
	}
	if d < 0 {
		return 0
	}
	return d
}

// call tracks the settlement of one correlated request.
type call struct {
	mu    sync.Mutex
	done  bool
	subs  []Subscription
	stop  func() bool
	timer uint64
}

func (cl *call) add(sub Subscription) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.done {
		sub.Cancel()
		return
	}
	cl.subs = append(cl.subs, sub)
}

// arm (re)starts the timer. A timer replaced by a later arm never fires fn.
func (cl *call) arm(loop *Loop, d time.Duration, fn func()) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.done {
		return
	}
	if cl.stop != nil {
		cl.stop()
	}
	cl.timer++
	gen := cl.timer
	cl.stop = loop.AfterFunc(d, func() {
		cl.mu.Lock()
		current := gen == cl.timer
		cl.mu.Unlock()
		if current {
			fn()
		}
	})
}

// finish settles the call and releases its subscriptions and timer. It
// reports false if the call was already settled.
func (cl *call) finish() bool {
	cl.mu.Lock()
	if cl.done {
		cl.mu.Unlock()
		return false
	}
	cl.done = true
	subs := cl.subs
	cl.subs = nil
	stop := cl.stop
	cl.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	if stop != nil {
		stop()
	}
	return true
}

func (cl *call) settled() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.done
}

func newEmitID() string {
	return uuid.NewString()
}

// withEmitID returns data as a JSON object with "emitId" set.
func withEmitID(data any, emitID string) (map[string]json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("smartnpc: encode request: %w", err)
		}
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, truncate(raw, 64))
			}
			if obj == nil {
				obj = make(map[string]json.RawMessage)
			}
		}
	}
	id, _ := json.Marshal(emitID)
	obj["emitId"] = id
	return obj, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
