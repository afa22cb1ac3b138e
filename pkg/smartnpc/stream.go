package smartnpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// StreamOptions describes one streamed request.
type StreamOptions struct {
	// Event is the request event name; frames arrive on the same name.
	Event string

	// Data is the request payload. See FetchOptions.Data.
	Data any

	// OnStart receives the "start" frame.
	OnStart func(frame json.RawMessage)

	// OnProgress receives every frame that is neither start nor complete.
	OnProgress func(frame json.RawMessage)

	// OnComplete receives the "complete" frame.
	OnComplete func(frame json.RawMessage)

	// OnException receives an *Error for a correlated "exception", or an
	// error wrapping ErrTimeout.
	OnException func(err error)

	// Timeout is the longest wait for the next frame. It overrides
	// Config.RequestTimeout; negative disables it.
	Timeout time.Duration
}

// Stream sends a request whose reply is a sequence of frames tagged with the
// request's emitId. Frames for other requests are ignored. After the
// complete frame or a correlated exception, both handlers are removed and
// no further callback fires; OnComplete and OnException are mutually
// exclusive.
//
// Stream fails synchronously with ErrNotReady before the service is ready,
// and with the transport error if the request could not be sent.
func (c *Connection) Stream(opts StreamOptions) (string, error) {
	if !c.IsReady() {
		return "", ErrNotReady
	}
	return c.stream(opts)
}

// StreamHandlers are the typed callbacks of StreamAs.
type StreamHandlers[T any] struct {
	OnStart     func(T)
	OnProgress  func(T)
	OnComplete  func(T)
	OnException func(error)
}

// StreamAs is Stream with every frame decoded into T. Start and progress
// frames that fail to decode are logged and dropped; a complete frame that
// fails to decode still completes the stream with the zero value.
func StreamAs[T any](c *Connection, event string, data any, h StreamHandlers[T]) (string, error) {
	decode := func(raw json.RawMessage) (T, bool) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.WarnPrintf("decode %s frame: %v", event, err)
			return v, false
		}
		return v, true
	}
	opts := StreamOptions{
		Event:       event,
		Data:        data,
		OnException: h.OnException,
	}
	if h.OnStart != nil {
		opts.OnStart = func(raw json.RawMessage) {
			if v, ok := decode(raw); ok {
				h.OnStart(v)
			}
		}
	}
	if h.OnProgress != nil {
		opts.OnProgress = func(raw json.RawMessage) {
			if v, ok := decode(raw); ok {
				h.OnProgress(v)
			}
		}
	}
	if h.OnComplete != nil {
		opts.OnComplete = func(raw json.RawMessage) {
			v, _ := decode(raw)
			h.OnComplete(v)
		}
	}
	return c.Stream(opts)
}

func (c *Connection) stream(opts StreamOptions) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	emitID := newEmitID()
	payload, err := withEmitID(opts.Data, emitID)
	if err != nil {
		return "", err
	}

	cl := &call{}
	timeout := c.timeout(opts.Timeout)
	onTimeout := func() {
		if !cl.finish() {
			return
		}
		err := fmt.Errorf("smartnpc: %s %s: %w", opts.Event, emitID, ErrTimeout)
		if opts.OnException != nil {
			opts.OnException(err)
		} else {
			c.logger.ErrorPrintf("unhandled: %v", err)
		}
	}

	cl.add(c.channel.Subscribe(opts.Event, func(data json.RawMessage) {
		if cl.settled() {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.DebugPrintf("decode %s frame: %v", opts.Event, err)
			return
		}
		if f.EmitID != emitID {
			return
		}
		if timeout > 0 {
			cl.arm(c.loop, timeout, onTimeout)
		}
		switch f.Status {
		case StatusStart:
			if opts.OnStart != nil {
				opts.OnStart(data)
			}
		case StatusComplete:
			if !cl.finish() {
				return
			}
			if opts.OnComplete != nil {
				opts.OnComplete(data)
			}
		default:
			if opts.OnProgress != nil {
				opts.OnProgress(data)
			}
		}
	}))
	cl.add(c.subscribeException(opts.Event, emitID, cl, func(err error) {
		if opts.OnException != nil {
			opts.OnException(err)
		} else {
			c.logger.ErrorPrintf("unhandled: %v", err)
		}
	}))
	if timeout > 0 {
		cl.arm(c.loop, timeout, onTimeout)
	}

	if err := c.transport.Emit(opts.Event, payload); err != nil {
		cl.finish()
		return "", fmt.Errorf("smartnpc: stream %s: %w", opts.Event, err)
	}
	return emitID, nil
}
