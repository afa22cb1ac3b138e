// Package mockserver is a scripted SmartNPC backend. It speaks the same
// Socket.IO protocol as the hosted service, so the SDK and the CLI can run
// against it locally and in tests.
//
// Replies come from a Responder and are streamed one word per frame,
// with an optional voice clip attached to every word. Behavior tags become
// frames of their own, or ride on the next word's frame when voice is on. History is kept in a history.Store. Speech is
// "recognized" by revealing a fixed transcript as audio arrives.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
	"github.com/smartnpc/smartnpc-go/pkg/socketio"
)

// Config configures a Server.
type Config struct {
	// Keys maps key ids to public keys. Empty accepts any non-empty pair.
	Keys map[string]string

	// Characters served by the mock. Default DemoCharacters.
	Characters []smartnpc.CharacterInfo

	// Respond produces replies. Default EchoResponder.
	Respond Responder

	// History stores message history. Default history.NewMemory().
	History history.Store

	// Voice is attached to every word frame when the client asks for
	// voice. Nil disables voice.
	Voice []byte

	// WordDelay is the pause before each frame of a reply. Default 50ms;
	// negative streams without pauses.
	WordDelay time.Duration

	// Transcript is what speech recognition "hears". Default
	// "hello there".
	Transcript string

	// SpeechIdle is the silence after which a speech session completes.
	// Default 500ms.
	SpeechIdle time.Duration

	// PingInterval and PingTimeout tune the Engine.IO heartbeat.
	PingInterval time.Duration
	PingTimeout  time.Duration

	Logger *slog.Logger
}

// DemoCharacters is the default cast.
var DemoCharacters = []smartnpc.CharacterInfo{{
	ID:                "mira",
	Name:              "Mira",
	Background:        "Keeper of the lighthouse on the northern cliffs.",
	Gender:            "female",
	Language:          string(smartnpc.LanguageEnglish),
	PersonalityTraits: []string{"curious", "patient"},
	DialogueStyle:     []string{"warm"},
	Actions:           []string{"point", "walk"},
	Gestures:          []string{"wave", "nod", "shrug"},
	Expressions:       []string{"calm", "happy", "surprised"},
}}

// Server is the mock backend.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	sockets    *socketio.Server
	characters map[string]smartnpc.CharacterInfo
	history    history.Store
}

// New creates a Server. Mount it with RegisterRoutes or serve Sockets
// directly.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Characters) == 0 {
		cfg.Characters = DemoCharacters
	}
	if cfg.Respond == nil {
		cfg.Respond = EchoResponder
	}
	if cfg.History == nil {
		cfg.History = history.NewMemory()
	}
	if cfg.WordDelay == 0 {
		cfg.WordDelay = 50 * time.Millisecond
	}
	if cfg.Transcript == "" {
		cfg.Transcript = "hello there"
	}
	if cfg.SpeechIdle <= 0 {
		cfg.SpeechIdle = 500 * time.Millisecond
	}

	s := &Server{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "mockserver"),
		characters: make(map[string]smartnpc.CharacterInfo, len(cfg.Characters)),
		history:    cfg.History,
	}
	for _, c := range cfg.Characters {
		s.characters[c.ID] = c
	}
	s.sockets = socketio.NewServer(socketio.ServerConfig{
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
		Authenticate: func(_ *http.Request, auth json.RawMessage) error { return s.authenticate(auth) },
		Logger:       cfg.Logger,
	})
	s.sockets.OnConnection(s.onConnection)
	return s
}

// Sockets returns the Socket.IO endpoint.
func (s *Server) Sockets() *socketio.Server {
	return s.sockets
}

// Characters returns the served characters sorted by id.
func (s *Server) Characters() []smartnpc.CharacterInfo {
	out := make([]smartnpc.CharacterInfo, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b smartnpc.CharacterInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// History returns the history store.
func (s *Server) History() history.Store {
	return s.history
}

// Close disconnects every client. The history store is left open.
func (s *Server) Close() error {
	return s.sockets.Close()
}

type credentials struct {
	KeyID     string `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

var errBadCredentials = errors.New("invalid credentials")

func (s *Server) authenticate(auth json.RawMessage) error {
	var c credentials
	if len(auth) == 0 || json.Unmarshal(auth, &c) != nil || c.KeyID == "" || c.PublicKey == "" {
		return errBadCredentials
	}
	if len(s.cfg.Keys) == 0 {
		return nil
	}
	if want, ok := s.cfg.Keys[c.KeyID]; !ok || want != c.PublicKey {
		return errBadCredentials
	}
	return nil
}

// request is the union of every request payload.
type request struct {
	EmitID    string            `json:"emitId"`
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Character string            `json:"character"`
	Message   string            `json:"message"`
	Voice     bool              `json:"voice"`
	Behaviors bool              `json:"behaviors"`
	Language  smartnpc.Language `json:"language"`
	Data      smartnpc.Audio    `json:"data"`
}

type exception struct {
	EmitID  string `json:"emitId"`
	Message string `json:"message"`
}

type historyReply struct {
	Data []smartnpc.HistoryMessage `json:"data"`
}

// session is the state of one connected client.
type session struct {
	srv    *Server
	sock   *socketio.Socket
	logger *slog.Logger

	mu     sync.Mutex
	player smartnpc.PlayerInfo
	speech *speechSession
}

func (s *Server) onConnection(sock *socketio.Socket) {
	sess := &session{
		srv:    s,
		sock:   sock,
		logger: s.logger.With("sid", sock.ID()),
	}
	sock.On(smartnpc.EventPlayer, sess.handle(sess.setPlayer))
	sock.On(smartnpc.EventCharacter, sess.handle(sess.character))
	sock.On(smartnpc.EventMessageHistory, sess.handle(sess.messageHistory))
	sock.On(smartnpc.EventClearMessageHistory, sess.handle(sess.clearMessageHistory))
	sock.On(smartnpc.EventMessage, sess.handle(sess.message))
	sock.On(smartnpc.EventSpeech, sess.handle(sess.speechChunk))
	sock.OnDisconnect(sess.close)

	sess.logger.Info("client connected")
	sess.emit(smartnpc.EventAuth, true)
	sess.emit(smartnpc.EventReady, true)
}

type handlerFunc func(req request, ack func(...any) error)

// handle decodes the first argument as a request. Undecodable requests are
// logged and dropped, as the service does.
func (sess *session) handle(h handlerFunc) socketio.EventHandler {
	return func(args []json.RawMessage, ack func(...any) error) {
		var req request
		if len(args) > 0 {
			if err := json.Unmarshal(args[0], &req); err != nil {
				sess.logger.Warn("drop request", "error", err)
				return
			}
		}
		h(req, ack)
	}
}

func (sess *session) emit(event string, v any) {
	if err := sess.sock.Emit(event, v); err != nil {
		sess.logger.Debug("emit failed", "event", event, "error", err)
	}
}

func (sess *session) exception(emitID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	sess.logger.Info("exception", "emitId", emitID, "message", msg)
	sess.emit(smartnpc.EventException, exception{EmitID: emitID, Message: msg})
}

func reply(ack func(...any) error, v any) {
	if ack != nil {
		_ = ack(v)
	}
}

func (sess *session) setPlayer(req request, ack func(...any) error) {
	if req.ID == "" {
		sess.exception(req.EmitID, "player id is required")
		return
	}
	sess.mu.Lock()
	sess.player = smartnpc.PlayerInfo{ID: req.ID, Name: req.Name}
	sess.mu.Unlock()
	sess.logger.Info("player", "id", req.ID, "name", req.Name)
	reply(ack, true)
}

func (sess *session) lookup(req request, id string) (smartnpc.CharacterInfo, bool) {
	info, ok := sess.srv.characters[id]
	if !ok {
		sess.exception(req.EmitID, "character %q not found", id)
	}
	return info, ok
}

func (sess *session) character(req request, ack func(...any) error) {
	if info, ok := sess.lookup(req, req.ID); ok {
		reply(ack, info)
	}
}

func (sess *session) messageHistory(req request, ack func(...any) error) {
	if _, ok := sess.lookup(req, req.Character); !ok {
		return
	}
	entries, err := sess.srv.history.List(sess.sock.Context(), req.Character)
	if err != nil {
		sess.exception(req.EmitID, "load history: %v", err)
		return
	}
	data := history.Messages(entries)
	if data == nil {
		data = []smartnpc.HistoryMessage{}
	}
	reply(ack, historyReply{Data: data})
}

func (sess *session) clearMessageHistory(req request, ack func(...any) error) {
	if _, ok := sess.lookup(req, req.Character); !ok {
		return
	}
	if err := sess.srv.history.Clear(sess.sock.Context(), req.Character); err != nil {
		sess.exception(req.EmitID, "clear history: %v", err)
		return
	}
	reply(ack, true)
}

func (sess *session) message(req request, _ func(...any) error) {
	info, ok := sess.lookup(req, req.Character)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		sess.exception(req.EmitID, "message is empty")
		return
	}
	go sess.streamReply(sess.sock.Context(), req, info)
}

// streamReply sends start, one progress frame per word or behavior, then
// complete. With voice, a behavior rides on the next word's frame so it is
// performed when that word is spoken. The exchange is stored before
// complete is sent.
func (sess *session) streamReply(ctx context.Context, req request, info smartnpc.CharacterInfo) {
	frame := func(status smartnpc.StreamStatus) smartnpc.MessageResponse {
		return smartnpc.MessageResponse{
			Frame:     smartnpc.Frame{Status: status, EmitID: req.EmitID},
			Character: info.ID,
		}
	}
	sess.emit(smartnpc.EventMessage, frame(smartnpc.StatusStart))

	text, err := sess.srv.cfg.Respond(ctx, info, req.Message)
	if err != nil {
		sess.exception(req.EmitID, "%v", err)
		return
	}
	tokens := tokenize(text)
	voiced := req.Voice && sess.srv.cfg.Voice != nil

	var (
		said      strings.Builder
		behaviors []smartnpc.RawBehavior
		held      *smartnpc.RawBehavior
	)
	send := func(f smartnpc.MessageResponse) bool {
		if !sess.srv.pause(ctx) {
			return false
		}
		sess.emit(smartnpc.EventMessage, f)
		return true
	}
	for _, tok := range tokens {
		if tok.behavior != nil && !req.Behaviors {
			continue
		}
		f := frame(smartnpc.StatusProgress)
		if tok.behavior != nil {
			behaviors = append(behaviors, *tok.behavior)
			if !voiced {
				f.Behavior = tok.behavior
				if !send(f) {
					return
				}
				continue
			}
			if held != nil {
				f.Behavior = held
				if !send(f) {
					return
				}
			}
			held = tok.behavior
			continue
		}
		chunk := tok.word
		if said.Len() > 0 {
			chunk = " " + chunk
		}
		said.WriteString(chunk)
		f.Text = chunk
		if voiced {
			f.Voice = sess.srv.cfg.Voice
			f.Behavior, held = held, nil
		}
		if !send(f) {
			return
		}
	}
	if held != nil {
		f := frame(smartnpc.StatusProgress)
		f.Behavior = held
		if !send(f) {
			return
		}
	}

	record := smartnpc.HistoryMessage{Message: req.Message, Response: plainText(tokens), Behaviors: behaviors}
	if err := sess.srv.history.Append(ctx, info.ID, record); err != nil {
		sess.exception(req.EmitID, "store history: %v", err)
		return
	}
	done := frame(smartnpc.StatusComplete)
	done.Text = record.Response
	sess.emit(smartnpc.EventMessage, done)
}

// pause waits WordDelay and reports false if ctx ended first.
func (s *Server) pause(ctx context.Context) bool {
	if s.cfg.WordDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.WordDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (sess *session) close() {
	sess.mu.Lock()
	if sess.speech != nil {
		sess.speech.stop()
		sess.speech = nil
	}
	sess.mu.Unlock()
	sess.logger.Info("client disconnected")
}
