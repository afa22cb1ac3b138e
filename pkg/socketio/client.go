package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultPath is the endpoint path of a Socket.IO server.
	DefaultPath = "/socket.io/"

	defaultHandshakeTimeout = 20 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

var (
	// ErrNotConnected is returned when emitting before Connect or after Close.
	ErrNotConnected = errors.New("socketio: not connected")

	// ErrServerDisconnect is reported when the server ends the session.
	ErrServerDisconnect = errors.New("socketio: server disconnected")
)

// ConnectError is returned by Connect when the server rejects the CONNECT
// packet, typically because authentication failed.
type ConnectError struct {
	Message string
	Data    json.RawMessage
}

func (e *ConnectError) Error() string {
	return "socketio: connect rejected: " + e.Message
}

// Handler receives the arguments of an event.
type Handler func(args []json.RawMessage)

// AckFunc receives the arguments of an acknowledgement.
type AckFunc func(args []json.RawMessage)

// Client is a Socket.IO client over the Engine.IO WebSocket transport.
//
// Register handlers with On before calling Connect so events sent right
// after the handshake are not missed.
type Client struct {
	config *clientConfig
	url    string

	conn      *websocket.Conn
	sid       string
	pingEvery time.Duration
	pingWait  time.Duration

	writeMu sync.Mutex

	mu           sync.Mutex
	handlers     map[string]Handler
	acks         map[int64]AckFunc
	nextAckID    int64
	connected    bool
	onDisconnect func(error)

	closeCh   chan struct{}
	closeOnce sync.Once
	doneCh    chan struct{}
	err       error
}

type clientConfig struct {
	auth             any
	header           http.Header
	namespace        string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	dialer           *websocket.Dialer
	logger           *slog.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithAuth sets the payload sent with the CONNECT packet.
func WithAuth(auth any) Option {
	return func(c *clientConfig) {
		c.auth = auth
	}
}

// WithHeader sets extra HTTP headers for the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return func(c *clientConfig) {
		c.header = h
	}
}

// WithNamespace connects to a namespace other than "/".
func WithNamespace(ns string) Option {
	return func(c *clientConfig) {
		c.namespace = ns
	}
}

// WithHandshakeTimeout bounds the WebSocket and Socket.IO handshakes.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.handshakeTimeout = d
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.writeTimeout = d
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithLogger sets the logger used for frame dumps and protocol warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// NewClient creates a client for the server at rawURL. The scheme may be
// ws, wss, http or https; an empty path selects /socket.io/.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		namespace:        DefaultNamespace,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	u, err := EndpointURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		config:   cfg,
		url:      u,
		handlers: make(map[string]Handler),
		acks:     make(map[int64]AckFunc),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// EndpointURL normalizes rawURL into an Engine.IO v4 WebSocket endpoint.
func EndpointURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("socketio: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// On registers the handler for event, replacing any previous one. Handlers
// run on the read goroutine and must not block.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for event.
func (c *Client) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// OnDisconnect registers a callback invoked once when the session ends for
// any reason other than Close.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// Connect performs the WebSocket, Engine.IO and Socket.IO handshakes and
// starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	dialer := c.config.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: c.config.handshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		}
	}
	conn, resp, err := dialer.DialContext(ctx, c.url, c.config.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("socketio: dial %s: status %d: %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("socketio: dial %s: %w", c.url, err)
	}
	c.conn = conn

	deadline := time.Now().Add(c.config.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	if err := c.handshake(); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	_ = conn.SetReadDeadline(c.readDeadline())

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *Client) handshake() error {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("socketio: read open packet: %w", err)
	}
	if len(msg) == 0 || msg[0] != engineOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrMalformedPacket, truncate(msg, 64))
	}
	var hs handshake
	if err := json.Unmarshal(msg[1:], &hs); err != nil {
		return fmt.Errorf("socketio: parse open packet: %w", err)
	}
	c.sid = hs.SID
	c.pingEvery = time.Duration(hs.PingInterval) * time.Millisecond
	c.pingWait = time.Duration(hs.PingTimeout) * time.Millisecond

	connect := &Packet{Type: PacketConnect, Namespace: c.config.namespace, ID: NoAck}
	if c.config.auth != nil {
		data, err := json.Marshal(c.config.auth)
		if err != nil {
			return fmt.Errorf("socketio: encode auth: %w", err)
		}
		connect.Data = data
	}
	if err := c.write(connect.Encode()); err != nil {
		return err
	}

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("socketio: read connect reply: %w", err)
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case enginePing:
			if err := c.write(append([]byte{enginePong}, msg[1:]...)); err != nil {
				return err
			}
			continue
		case engineClose:
			return ErrServerDisconnect
		case engineMessage:
		default:
			continue
		}
		p, err := DecodePacket(msg[1:])
		if err != nil {
			return err
		}
		switch p.Type {
		case PacketConnect:
			return nil
		case PacketConnectError:
			var ce connectError
			if err := json.Unmarshal(p.Data, &ce); err != nil {
				ce.Message = string(p.Data)
			}
			return &ConnectError{Message: ce.Message, Data: ce.Data}
		}
	}
}

// SID returns the Engine.IO session id.
func (c *Client) SID() string {
	return c.sid
}

// Emit sends an event without requesting an acknowledgement.
func (c *Client) Emit(event string, args ...any) error {
	return c.emit(event, NoAck, args)
}

// EmitWithAck sends an event and registers ack for the server's reply.
func (c *Client) EmitWithAck(event string, ack AckFunc, args ...any) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := c.nextAckID
	c.nextAckID++
	c.acks[id] = ack
	c.mu.Unlock()

	if err := c.emit(event, id, args); err != nil {
		c.mu.Lock()
		delete(c.acks, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) emit(event string, id int64, args []any) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	data, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}
	p := &Packet{Type: PacketEvent, Namespace: c.config.namespace, ID: id, Data: data}
	return c.write(p.Encode())
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.config.logger.Debug("socketio: send", "content", truncate(frame, 500))
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("socketio: write: %w", err)
	}
	return nil
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the reason the read loop exited, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends DISCONNECT and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		connected := c.connected
		c.connected = false
		c.mu.Unlock()
		if c.conn == nil {
			close(c.doneCh)
			return
		}
		if connected {
			p := &Packet{Type: PacketDisconnect, Namespace: c.config.namespace, ID: NoAck}
			_ = c.write(p.Encode())
		}
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	var exitErr error
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.err = exitErr
		onDisconnect := c.onDisconnect
		c.acks = make(map[int64]AckFunc)
		c.mu.Unlock()
		close(c.doneCh)

		select {
		case <-c.closeCh:
		default:
			c.conn.Close()
			if onDisconnect != nil {
				onDisconnect(exitErr)
			}
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}
			exitErr = fmt.Errorf("socketio: read: %w", err)
			return
		}
		_ = c.conn.SetReadDeadline(c.readDeadline())

		if c.config.logger.Enabled(context.Background(), slog.LevelDebug) {
			c.config.logger.Debug("socketio: received", "len", len(msg), "content", truncate(msg, 1000))
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePing:
			if err := c.write(append([]byte{enginePong}, msg[1:]...)); err != nil {
				exitErr = err
				return
			}
		case engineClose:
			exitErr = ErrServerDisconnect
			return
		case engineMessage:
			p, err := DecodePacket(msg[1:])
			if err != nil {
				c.config.logger.Warn("socketio: drop packet", "error", err)
				continue
			}
			if p.Namespace != c.config.namespace {
				continue
			}
			if done := c.handlePacket(p); done {
				exitErr = ErrServerDisconnect
				return
			}
		}
	}
}

func (c *Client) handlePacket(p *Packet) (disconnected bool) {
	switch p.Type {
	case PacketEvent:
		event, args, err := DecodeEvent(p.Data)
		if err != nil {
			c.config.logger.Warn("socketio: drop event", "error", err)
			return false
		}
		c.mu.Lock()
		h := c.handlers[event]
		c.mu.Unlock()
		if h != nil {
			h(args)
		}
	case PacketAck:
		args, err := DecodeArgs(p.Data)
		if err != nil {
			c.config.logger.Warn("socketio: drop ack", "error", err)
			return false
		}
		c.mu.Lock()
		ack := c.acks[p.ID]
		delete(c.acks, p.ID)
		c.mu.Unlock()
		if ack != nil {
			ack(args)
		}
	case PacketDisconnect:
		return true
	}
	return false
}

// readDeadline allows one missed ping plus the server's ping timeout.
func (c *Client) readDeadline() time.Time {
	wait := c.pingEvery + c.pingWait
	if wait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(wait)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
