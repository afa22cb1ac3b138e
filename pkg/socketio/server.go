package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	maxMessageSize      = 1 << 20
	sendBufferSize      = 256
)

// ErrSendBufferFull is returned by Socket.Emit when the peer is not reading.
var ErrSendBufferFull = errors.New("socketio: send buffer full")

// EventHandler handles an event received by the server. ack is nil when the
// client did not request an acknowledgement.
type EventHandler func(args []json.RawMessage, ack func(args ...any) error)

// ServerConfig configures a Server.
type ServerConfig struct {
	// PingInterval is how often the server pings. Default 25s.
	PingInterval time.Duration

	// PingTimeout is how long to wait for a pong. Default 20s.
	PingTimeout time.Duration

	// Authenticate validates the CONNECT payload. A non-nil error is sent
	// back as CONNECT_ERROR and the connection is closed.
	Authenticate func(r *http.Request, auth json.RawMessage) error

	// CheckOrigin overrides the WebSocket origin check. Default allows all.
	CheckOrigin func(r *http.Request) bool

	// Logger for connection lifecycle. Default slog.Default().
	Logger *slog.Logger
}

// Server accepts Socket.IO clients over the Engine.IO WebSocket transport.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader

	mu           sync.Mutex
	onConnection func(*Socket)
	sockets      map[string]*Socket
	closed       bool
}

// NewServer creates a Server. Serve it with ServeHTTP on the /socket.io/ path.
func NewServer(cfg ServerConfig) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		sockets: make(map[string]*Socket),
	}
}

// OnConnection sets the callback invoked after a client has connected.
// Handlers registered on the socket inside the callback see every event
// the client sends afterwards.
func (s *Server) OnConnection(fn func(*Socket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnection = fn
}

// Len returns the number of connected sockets.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// Close disconnects every socket. Later upgrades are refused.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	sockets := make([]*Socket, 0, len(s.sockets))
	for _, sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		sock.Close()
	}
	return nil
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		http.Error(w, "only EIO=4 websocket transport is supported", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Error("socketio: upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sock := &Socket{
		id:       uuid.NewString(),
		ws:       ws,
		srv:      s,
		request:  r,
		handlers: make(map[string]EventHandler),
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	sock.logger = s.config.Logger.With("sid", sock.id)

	open, _ := json.Marshal(handshake{
		SID:          sock.id,
		Upgrades:     []string{},
		PingInterval: int(s.config.PingInterval / time.Millisecond),
		PingTimeout:  int(s.config.PingTimeout / time.Millisecond),
		MaxPayload:   maxMessageSize,
	})
	sock.queue(append([]byte{engineOpen}, open...))

	go sock.writePump(s.config.PingInterval)
	sock.readPump(s.config.PingInterval + s.config.PingTimeout)
}

func (s *Server) register(sock *Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sockets[sock.id] = sock
	return true
}

func (s *Server) unregister(sock *Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, sock.id)
}

// Socket is one connected client on the server side.
type Socket struct {
	id      string
	ws      *websocket.Conn
	srv     *Server
	request *http.Request
	logger  *slog.Logger

	mu           sync.Mutex
	handlers     map[string]EventHandler
	onDisconnect []func()
	auth         json.RawMessage
	connected    bool
	closed       bool

	send chan []byte
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the session id.
func (s *Socket) ID() string {
	return s.id
}

// Auth returns the CONNECT payload.
func (s *Socket) Auth() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// Request returns the HTTP upgrade request.
func (s *Socket) Request() *http.Request {
	return s.request
}

// Context is canceled when the socket disconnects.
func (s *Socket) Context() context.Context {
	return s.ctx
}

// On registers the handler for event. Handlers run on the read goroutine.
func (s *Socket) On(event string, h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// OnDisconnect registers a callback run once the socket is gone.
func (s *Socket) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// Emit sends an event to the client.
func (s *Socket) Emit(event string, args ...any) error {
	data, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}
	p := &Packet{Type: PacketEvent, ID: NoAck, Data: data}
	return s.queue(p.Encode())
}

// Disconnect sends DISCONNECT and closes the socket.
func (s *Socket) Disconnect() {
	p := &Packet{Type: PacketDisconnect, ID: NoAck}
	_ = s.queue(p.Encode())
	s.Close()
}

// Close closes the underlying connection.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.cancel()
}

func (s *Socket) queue(frame []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrNotConnected
	default:
		s.logger.Warn("socketio: send buffer full, dropping frame")
		return ErrSendBufferFull
	}
}

func (s *Socket) readPump(wait time.Duration) {
	defer func() {
		s.Close()
		s.srv.unregister(s)
		s.mu.Lock()
		connected := s.connected
		callbacks := s.onDisconnect
		s.onDisconnect = nil
		s.mu.Unlock()
		if connected {
			for _, fn := range callbacks {
				fn()
			}
		}
	}()

	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(wait))

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("socketio: read ended", "error", err)
			}
			return
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(wait))
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePong:
		case enginePing:
			_ = s.queue(append([]byte{enginePong}, msg[1:]...))
		case engineClose:
			return
		case engineMessage:
			p, err := DecodePacket(msg[1:])
			if err != nil {
				s.logger.Warn("socketio: drop packet", "error", err)
				continue
			}
			if p.Namespace != DefaultNamespace {
				s.rejectNamespace(p.Namespace)
				continue
			}
			if stop := s.handlePacket(p); stop {
				return
			}
		}
	}
}

func (s *Socket) rejectNamespace(ns string) {
	data, _ := json.Marshal(connectError{Message: "Invalid namespace"})
	p := &Packet{Type: PacketConnectError, Namespace: ns, ID: NoAck, Data: data}
	_ = s.queue(p.Encode())
}

func (s *Socket) handlePacket(p *Packet) (stop bool) {
	switch p.Type {
	case PacketConnect:
		if auth := s.srv.config.Authenticate; auth != nil {
			if err := auth(s.request, p.Data); err != nil {
				data, _ := json.Marshal(connectError{Message: err.Error()})
				_ = s.queue((&Packet{Type: PacketConnectError, ID: NoAck, Data: data}).Encode())
				s.logger.Info("socketio: connect rejected", "error", err)
				return true
			}
		}
		if !s.srv.register(s) {
			return true
		}
		data, _ := json.Marshal(map[string]string{"sid": s.id})
		s.mu.Lock()
		s.auth = p.Data
		s.connected = true
		s.mu.Unlock()
		_ = s.queue((&Packet{Type: PacketConnect, ID: NoAck, Data: data}).Encode())

		s.srv.mu.Lock()
		onConnection := s.srv.onConnection
		s.srv.mu.Unlock()
		if onConnection != nil {
			onConnection(s)
		}
	case PacketDisconnect:
		return true
	case PacketEvent:
		s.mu.Lock()
		connected := s.connected
		s.mu.Unlock()
		if !connected {
			return false
		}
		event, args, err := DecodeEvent(p.Data)
		if err != nil {
			s.logger.Warn("socketio: drop event", "error", err)
			return false
		}
		s.mu.Lock()
		h := s.handlers[event]
		s.mu.Unlock()
		if h == nil {
			s.logger.Debug("socketio: no handler", "event", event)
			return false
		}
		var ack func(args ...any) error
		if p.ID >= 0 {
			id := p.ID
			ack = func(args ...any) error {
				data, err := EncodeArgs(args...)
				if err != nil {
					return err
				}
				return s.queue((&Packet{Type: PacketAck, ID: id, Data: data}).Encode())
			}
		}
		h(args, ack)
	}
	return false
}

func (s *Socket) writePump(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(frame); err != nil {
				s.logger.Debug("socketio: write failed", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write([]byte{enginePing}); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			// Flush what was queued before the close, e.g. DISCONNECT.
			for {
				select {
				case frame := <-s.send:
					if err := s.write(frame); err != nil {
						return
					}
				default:
					_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (s *Socket) write(frame []byte) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("socketio: write: %w", err)
	}
	return nil
}
