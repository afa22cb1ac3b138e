package smartnpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/socketio"
)

// DefaultHost is the SmartNPC service endpoint.
const DefaultHost = "wss://api.smartnpc.ai"

// Config configures a Connection.
type Config struct {
	// KeyID and PublicKey authenticate the connection. Required.
	KeyID     string
	PublicKey string

	// Host is the service URL. Default DefaultHost.
	Host string

	// Player, when its ID is set, is announced after every "auth" event.
	Player PlayerInfo

	// RequestTimeout bounds Fetch and the idle time between Stream frames
	// when the request does not set its own. Zero disables timeouts.
	RequestTimeout time.Duration

	// Loop delivers all callbacks. If nil the Connection creates one, owns
	// it, and the caller drives it through Loop().
	Loop *Loop

	// Logger for protocol warnings. Default DefaultLogger().
	Logger Logger
}

// Connection is an authenticated session with the SmartNPC service. It
// correlates requests with their replies and exceptions over a transport
// that only supports one handler per event.
//
// Construct one Connection per process and pass it to every component that
// needs it.
type Connection struct {
	cfg       Config
	loop      *Loop
	ownsLoop  bool
	logger    Logger
	transport Transport
	channel   *EventChannel

	mu      sync.Mutex
	ready   bool
	closed  bool
	player  PlayerInfo
	readyCh chan struct{}
	closeCh chan struct{}

	onReady      event[struct{}]
	onDisconnect event[error]
}

// Connect dials the service and returns a Connection that becomes ready
// once the service sends "ready". Drive conn.Loop() to receive it.
func Connect(ctx context.Context, cfg Config, opts ...socketio.Option) (*Connection, error) {
	if cfg.KeyID == "" || cfg.PublicKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	opts = append([]socketio.Option{
		socketio.WithAuth(map[string]string{
			"keyId":     cfg.KeyID,
			"publicKey": cfg.PublicKey,
		}),
	}, opts...)
	client, err := socketio.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smartnpc: %w", err)
	}

	conn, err := NewConnection(SocketTransport{Client: client}, cfg)
	if err != nil {
		return nil, err
	}
	client.OnDisconnect(conn.handleDisconnect)

	if err := client.Connect(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("smartnpc: connect %s: %w", cfg.Host, err)
	}
	return conn, nil
}

// NewConnection wraps an already established transport. Reserved event
// handlers are installed immediately, so t may start delivering events
// right after this returns.
func NewConnection(t Transport, cfg Config) (*Connection, error) {
	if cfg.KeyID == "" || cfg.PublicKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	c := &Connection{
		cfg:       cfg,
		loop:      cfg.Loop,
		logger:    cfg.Logger,
		transport: t,
		player:    cfg.Player,
		readyCh:   make(chan struct{}),
		closeCh:   make(chan struct{}),
	}
	if c.loop == nil {
		c.loop = NewLoop()
		c.ownsLoop = true
	}
	c.channel = NewEventChannel(t, c.loop)
	c.channel.Subscribe(EventAuth, func(json.RawMessage) { c.announcePlayer() })
	c.channel.Subscribe(EventReady, func(json.RawMessage) { c.setReady() })
	return c, nil
}

// Loop returns the loop delivering this connection's callbacks.
func (c *Connection) Loop() *Loop {
	return c.loop
}

// Logger returns the connection's logger.
func (c *Connection) Logger() Logger {
	return c.logger
}

// IsReady reports whether the service has sent "ready" and the connection
// is still up.
func (c *Connection) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.closed
}

// WaitReady blocks until the connection is ready. The loop must be driven
// by another goroutine.
func (c *Connection) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnReady registers fn for the ready transition. If the connection is
// already ready, fn is also scheduled for the next turn.
func (c *Connection) OnReady(fn func()) Subscription {
	sub := c.onReady.on(func(struct{}) { fn() })
	if c.IsReady() {
		c.loop.Post(func() {
			if c.onReady.alive(sub.id) {
				fn()
			}
		})
	}
	return sub
}

// OnDisconnect registers fn for transport loss.
func (c *Connection) OnDisconnect(fn func(error)) Subscription {
	return c.onDisconnect.on(fn)
}

// On subscribes handler to a raw service event.
func (c *Connection) On(event string, handler func(data json.RawMessage)) Subscription {
	return c.channel.Subscribe(event, handler)
}

// Off removes a subscription made with On, OnReady or OnDisconnect.
func (c *Connection) Off(sub Subscription) {
	sub.Cancel()
}

// OnAs subscribes to event and decodes each payload into T. Payloads that
// fail to decode are logged and dropped.
func OnAs[T any](c *Connection, event string, handler func(T)) Subscription {
	return c.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			c.logger.WarnPrintf("decode %s event: %v", event, err)
			return
		}
		handler(v)
	})
}

// Emit sends a raw event without correlation.
func (c *Connection) Emit(event string, data any) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.transport.Emit(event, data); err != nil {
		return fmt.Errorf("smartnpc: emit %s: %w", event, err)
	}
	return nil
}

// SetPlayer records the player and announces it to the service.
func (c *Connection) SetPlayer(p PlayerInfo) {
	c.mu.Lock()
	c.player = p
	c.mu.Unlock()
	c.announcePlayer()
}

// Player returns the current player.
func (c *Connection) Player() PlayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Close removes every subscription and closes the transport. Requests in
// flight are abandoned without callbacks.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.logger.InfoPrintf("connection closed")
	c.channel.Close()
	c.onReady.clear()
	c.onDisconnect.clear()
	err := c.transport.Close()
	if c.ownsLoop {
		c.loop.Close()
	}
	return err
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) announcePlayer() {
	p := c.Player()
	if p.ID == "" {
		return
	}
	_, err := c.fetch(FetchOptions{
		Event: EventPlayer,
		Data:  p,
		OnSuccess: func(json.RawMessage) {
			c.logger.InfoPrintf("player %s announced", p.ID)
		},
		OnException: func(err error) {
			c.logger.ErrorPrintf("set player %s: %v", p.ID, err)
		},
	})
	if err != nil {
		c.logger.ErrorPrintf("set player %s: %v", p.ID, err)
	}
}

func (c *Connection) setReady() {
	c.mu.Lock()
	if c.ready || c.closed {
		c.mu.Unlock()
		return
	}
	c.ready = true
	select {
	case <-c.readyCh:
	default:
		close(c.readyCh)
	}
	c.mu.Unlock()

	c.logger.InfoPrintf("connection ready")
	c.onReady.emit(struct{}{})
}

func (c *Connection) handleDisconnect(err error) {
	c.loop.Post(func() {
		c.mu.Lock()
		c.ready = false
		c.mu.Unlock()
		c.logger.WarnPrintf("disconnected: %v", err)
		c.onDisconnect.emit(err)
	})
}
