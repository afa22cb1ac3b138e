package smartnpc

import (
	"errors"
	"fmt"
	"sync"
)

// CharacterOptions configures a Character.
type CharacterOptions struct {
	// Voice requests spoken replies and plays them through the voice queue.
	Voice bool

	// Behaviors requests actions, gestures and expressions with replies.
	Behaviors bool

	// Decoder and Player drive voice playback. See VoiceQueueConfig.
	Decoder AudioDecoder
	Player  AudioPlayer

	// VoiceFormat is the encoding of voice chunks. Default "mp3".
	VoiceFormat string

	Logger Logger
}

// Character is a conversation with one NPC. It loads the character's info
// and message history, sends player messages, and routes the streamed reply
// to text events, the voice queue and the behavior queue.
type Character struct {
	conn      *Connection
	id        string
	opts      CharacterOptions
	loop      *Loop
	logger    Logger
	voice     *VoiceQueue
	behaviors *BehaviorQueue

	mu              sync.Mutex
	info            *CharacterInfo
	history         []Message
	historyLoaded   bool
	ready           bool
	expression      string
	currentResponse string
	inProgress      bool
	speaking        bool
	turn            *turn
	subs            []Subscription

	onReady                event[struct{}]
	onError                event[error]
	onMessageStart         event[Message]
	onMessageProgress      event[Message]
	onMessageTextComplete  event[Message]
	onMessageVoiceComplete event[Message]
	onMessageComplete      event[Message]
	onMessageException     event[Message]
	onHistoryChange        event[[]Message]
	onExpressionChange     event[string]
}

// turn is the state of the message being answered.
type turn struct {
	index        int
	text         string
	announced    bool
	expression   *Expression
	behaviors    []Behavior
	textComplete bool
}

type messageRequest struct {
	Character string `json:"character"`
	Message   string `json:"message"`
	Voice     bool   `json:"voice"`
	Behaviors bool   `json:"behaviors"`
}

type characterRequest struct {
	ID string `json:"id"`
}

type historyRequest struct {
	Character string `json:"character"`
}

// NewCharacter creates a Character bound to conn. It panics if id is empty.
func NewCharacter(conn *Connection, id string, opts CharacterOptions) *Character {
	if id == "" {
		panic("smartnpc: character id is required")
	}
	if opts.Logger == nil {
		opts.Logger = conn.Logger()
	}
	ch := &Character{
		conn:   conn,
		id:     id,
		opts:   opts,
		loop:   conn.Loop(),
		logger: opts.Logger,
	}
	ch.voice = NewVoiceQueue(VoiceQueueConfig{
		Loop:    ch.loop,
		Decoder: opts.Decoder,
		Player:  opts.Player,
		Format:  opts.VoiceFormat,
		Logger:  opts.Logger,
	})
	ch.behaviors = NewBehaviorQueue(ch.loop, opts.Logger)
	ch.subs = []Subscription{
		ch.voice.OnProgress(ch.voiceProgress),
		ch.voice.OnLastChunk(ch.voiceLastChunk),
		ch.voice.OnComplete(ch.voiceComplete),
	}
	return ch
}

// Init loads the character's info and history once the connection is
// ready. OnReady fires when both have arrived; failures go to OnError.
func (ch *Character) Init() {
	sub := ch.conn.OnReady(ch.load)
	ch.mu.Lock()
	ch.subs = append(ch.subs, sub)
	ch.mu.Unlock()
}

func (ch *Character) load() {
	ch.mu.Lock()
	if ch.ready || ch.info != nil || ch.historyLoaded {
		ch.mu.Unlock()
		return
	}
	ch.mu.Unlock()

	_, err := FetchAs(ch.conn, EventCharacter, characterRequest{ID: ch.id},
		func(info CharacterInfo) {
			ch.mu.Lock()
			ch.info = &info
			ch.mu.Unlock()
			ch.maybeReady()
		},
		func(err error) {
			ch.onError.emit(fmt.Errorf("smartnpc: load character %s: %w", ch.id, err))
		})
	if err != nil {
		ch.onError.fire(ch.loop, err)
	}

	_, err = FetchAs(ch.conn, EventMessageHistory, historyRequest{Character: ch.id},
		func(reply historyReply) {
			msgs, errs := HistoryMessages(reply.Data)
			for _, err := range errs {
				ch.logger.WarnPrintf("history behavior: %v", err)
			}
			ch.mu.Lock()
			ch.history = msgs
			ch.historyLoaded = true
			ch.mu.Unlock()
			if ch.opts.Behaviors {
				ch.restoreExpression(msgs)
			}
			ch.maybeReady()
		},
		func(err error) {
			ch.onError.emit(fmt.Errorf("smartnpc: load history of %s: %w", ch.id, err))
		})
	if err != nil {
		ch.onError.fire(ch.loop, err)
	}
}

func (ch *Character) maybeReady() {
	ch.mu.Lock()
	if ch.info == nil || !ch.historyLoaded {
		ch.mu.Unlock()
		return
	}
	first := !ch.ready
	ch.ready = true
	history := ch.messagesLocked()
	ch.mu.Unlock()

	ch.onHistoryChange.emit(history)
	if first {
		ch.onReady.emit(struct{}{})
	}
}

// restoreExpression applies the resting expression of the last reply.
func (ch *Character) restoreExpression(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	for _, b := range msgs[len(msgs)-1].Behaviors {
		if e, ok := b.(Expression); ok {
			ch.setExpression(e.Next)
			return
		}
	}
}

// SendMessage sends text to the character and streams the reply. It fails
// with ErrNotReady before the connection is ready and with
// ErrMessageInProgress while a previous reply is still running.
func (ch *Character) SendMessage(text string) error {
	if !ch.conn.IsReady() {
		return ErrNotReady
	}
	ch.mu.Lock()
	if ch.inProgress {
		ch.mu.Unlock()
		return ErrMessageInProgress
	}
	ch.inProgress = true
	ch.speaking = false
	ch.currentResponse = ""
	ch.history = append(ch.history, Message{Message: text})
	t := &turn{index: len(ch.history) - 1, text: text}
	ch.turn = t
	ch.mu.Unlock()

	if ch.opts.Voice {
		ch.voice.Reset()
	}

	_, err := StreamAs(ch.conn, EventMessage, messageRequest{
		Character: ch.id,
		Message:   text,
		Voice:     ch.opts.Voice,
		Behaviors: ch.opts.Behaviors,
	}, StreamHandlers[MessageResponse]{
		OnStart: func(MessageResponse) {
			ch.announce(t)
		},
		OnProgress: func(r MessageResponse) {
			ch.announce(t)
			if ch.opts.Voice && r.HasVoice() {
				ch.voice.Add(r)
				return
			}
			ch.textProgress(t, r)
		},
		OnComplete: func(MessageResponse) {
			ch.announce(t)
			ch.streamComplete(t)
		},
		OnException: func(err error) {
			ch.announce(t)
			ch.streamException(t, err)
		},
	})
	if err != nil {
		ch.mu.Lock()
		if ch.turn == t {
			ch.turn = nil
			ch.inProgress = false
			ch.history = append(ch.history[:t.index], ch.history[t.index+1:]...)
		}
		ch.mu.Unlock()
		return err
	}
	ch.loop.Post(func() { ch.announce(t) })
	return nil
}

// announce emits the start of t and the grown history, once, before any
// other event of the turn.
func (ch *Character) announce(t *turn) {
	ch.mu.Lock()
	if ch.turn != t || t.announced {
		ch.mu.Unlock()
		return
	}
	t.announced = true
	start := Message{Message: t.text}
	history := ch.messagesLocked()
	ch.mu.Unlock()

	ch.onMessageStart.emit(start)
	ch.onHistoryChange.emit(history)
}

func (ch *Character) textProgress(t *turn, r MessageResponse) {
	ch.mu.Lock()
	if ch.turn != t {
		ch.mu.Unlock()
		return
	}
	ch.currentResponse += r.Text
	ch.speaking = true
	ch.mu.Unlock()

	ch.routeBehavior(t, r.Behavior)
	ch.progress(t, Message{Chunk: r.Text})
}

func (ch *Character) voiceProgress(chunk *VoiceChunk) {
	ch.mu.Lock()
	t := ch.turn
	if t == nil {
		ch.mu.Unlock()
		return
	}
	ch.currentResponse += chunk.Response.Text
	ch.speaking = true
	ch.mu.Unlock()

	ch.routeBehavior(t, chunk.Response.Behavior)
	ch.progress(t, Message{Chunk: chunk.Response.Text, Voice: chunk})
}

// progress records the partial reply and emits it.
func (ch *Character) progress(t *turn, update Message) {
	ch.mu.Lock()
	msg := ch.history[t.index]
	msg.Response = ch.currentResponse
	msg.Behaviors = append([]Behavior(nil), t.behaviors...)
	ch.history[t.index] = msg
	history := ch.messagesLocked()
	ch.mu.Unlock()

	msg.Chunk = update.Chunk
	msg.Voice = update.Voice
	ch.onMessageProgress.emit(msg)
	ch.onHistoryChange.emit(history)
}

func (ch *Character) routeBehavior(t *turn, raw *RawBehavior) {
	if raw == nil || !ch.opts.Behaviors {
		return
	}
	b, err := ParseBehavior(*raw)
	if err != nil {
		ch.logger.WarnPrintf("character %s: %v", ch.id, err)
		return
	}
	ch.mu.Lock()
	t.behaviors = append(t.behaviors, b)
	ch.mu.Unlock()

	switch v := b.(type) {
	case Expression:
		ch.mu.Lock()
		t.expression = &v
		ch.mu.Unlock()
		ch.setExpression(v.Current)
	case Action, Gesture:
		ch.behaviors.Add(v)
	}
}

func (ch *Character) streamComplete(t *turn) {
	ch.mu.Lock()
	if ch.turn != t {
		ch.mu.Unlock()
		return
	}
	msg := ch.history[t.index]
	msg.Response = ch.currentResponse
	msg.Behaviors = append([]Behavior(nil), t.behaviors...)
	ch.history[t.index] = msg
	history := ch.messagesLocked()
	ch.mu.Unlock()

	ch.onHistoryChange.emit(history)
	if ch.opts.Voice {
		ch.voice.SetStreamComplete()
		return
	}
	ch.finish(t, msg, false)
}

func (ch *Character) voiceLastChunk(chunk *VoiceChunk) {
	ch.mu.Lock()
	t := ch.turn
	if t == nil || t.textComplete {
		ch.mu.Unlock()
		return
	}
	t.textComplete = true
	msg := ch.history[t.index]
	ch.mu.Unlock()

	msg.Response = ch.CurrentResponse()
	msg.Chunk = chunk.Response.Text
	msg.Voice = chunk
	ch.onMessageTextComplete.emit(msg)
}

func (ch *Character) voiceComplete() {
	ch.mu.Lock()
	t := ch.turn
	if t == nil {
		ch.mu.Unlock()
		return
	}
	msg := ch.history[t.index]
	msg.Response = ch.currentResponse
	ch.mu.Unlock()
	ch.finish(t, msg, true)
}

// finish ends the turn and applies the resting expression.
func (ch *Character) finish(t *turn, msg Message, voiced bool) {
	ch.mu.Lock()
	if ch.turn != t {
		ch.mu.Unlock()
		return
	}
	ch.turn = nil
	ch.inProgress = false
	ch.speaking = false
	ch.currentResponse = ""
	textDone := t.textComplete
	t.textComplete = true
	expr := t.expression
	ch.mu.Unlock()

	if expr != nil {
		ch.setExpression(expr.Next)
	}
	if !textDone {
		ch.onMessageTextComplete.emit(msg)
	}
	if voiced {
		ch.onMessageVoiceComplete.emit(msg)
	}
	ch.onMessageComplete.emit(msg)
}

func (ch *Character) streamException(t *turn, err error) {
	ch.mu.Lock()
	if ch.turn != t {
		ch.mu.Unlock()
		return
	}
	ch.turn = nil
	ch.inProgress = false
	ch.speaking = false
	ch.currentResponse = ""
	msg := Message{Message: t.text, Err: err}
	ch.history[t.index] = msg
	history := ch.messagesLocked()
	ch.mu.Unlock()

	if ch.opts.Voice {
		ch.voice.Reset()
	}
	ch.onMessageException.emit(msg)
	ch.onHistoryChange.emit(history)
}

// ClearMessageHistory asks the service to forget the conversation. done,
// if set, receives the outcome. It fails with ErrMessageInProgress while a
// reply is running.
func (ch *Character) ClearMessageHistory(done func(error)) error {
	ch.mu.Lock()
	busy := ch.inProgress
	ch.mu.Unlock()
	if busy {
		return ErrMessageInProgress
	}
	_, err := FetchAs(ch.conn, EventClearMessageHistory, historyRequest{Character: ch.id},
		func(bool) {
			ch.mu.Lock()
			// A message sent before the ack keeps its entry.
			var kept []Message
			if t := ch.turn; t != nil {
				kept = []Message{ch.history[t.index]}
				t.index = 0
			}
			ch.history = kept
			history := ch.messagesLocked()
			ch.mu.Unlock()
			ch.onHistoryChange.emit(history)
			if done != nil {
				done(nil)
			}
		},
		func(err error) {
			err = fmt.Errorf("smartnpc: clear history of %s: %w", ch.id, err)
			if done != nil {
				done(err)
			} else {
				ch.onError.emit(err)
			}
		})
	return err
}

func (ch *Character) setExpression(name string) {
	if name == "" {
		return
	}
	ch.mu.Lock()
	changed := ch.expression != name
	ch.expression = name
	ch.mu.Unlock()
	if changed {
		ch.onExpressionChange.emit(name)
	}
}

// ID returns the character id.
func (ch *Character) ID() string { return ch.id }

// Connection returns the connection the character uses.
func (ch *Character) Connection() *Connection { return ch.conn }

// Voice returns the character's voice queue.
func (ch *Character) Voice() *VoiceQueue { return ch.voice }

// Behaviors returns the queue of actions and gestures to perform.
func (ch *Character) Behaviors() *BehaviorQueue { return ch.behaviors }

// IsReady reports whether info and history are loaded.
func (ch *Character) IsReady() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.ready
}

// Info returns the character info, nil before it loads.
func (ch *Character) Info() *CharacterInfo {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.info
}

// Messages returns a copy of the conversation.
func (ch *Character) Messages() []Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.messagesLocked()
}

// Expression returns the current expression name.
func (ch *Character) Expression() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.expression
}

// Speaking reports whether a reply is being delivered.
func (ch *Character) Speaking() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.speaking
}

// MessageInProgress reports whether a message awaits its reply.
func (ch *Character) MessageInProgress() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.inProgress
}

// CurrentResponse returns the reply text received so far.
func (ch *Character) CurrentResponse() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.currentResponse
}

// OnReady fires once info and history are loaded.
func (ch *Character) OnReady(fn func()) Subscription {
	return ch.onReady.on(func(struct{}) { fn() })
}

// OnError receives load and clear failures.
func (ch *Character) OnError(fn func(error)) Subscription {
	return ch.onError.on(fn)
}

// OnMessageStart fires when a message is sent.
func (ch *Character) OnMessageStart(fn func(Message)) Subscription {
	return ch.onMessageStart.on(fn)
}

// OnMessageProgress fires for each text or voice chunk of the reply. With
// voice, a chunk fires when it starts playing and its behavior is routed
// then; a frame without voice, behavior-only frames included, is routed on
// arrival, possibly ahead of voiced chunks still waiting to play.
func (ch *Character) OnMessageProgress(fn func(Message)) Subscription {
	return ch.onMessageProgress.on(fn)
}

// OnMessageTextComplete fires when the reply text is complete; with voice,
// when the last chunk starts playing.
func (ch *Character) OnMessageTextComplete(fn func(Message)) Subscription {
	return ch.onMessageTextComplete.on(fn)
}

// OnMessageVoiceComplete fires when the last voice chunk finished playing.
func (ch *Character) OnMessageVoiceComplete(fn func(Message)) Subscription {
	return ch.onMessageVoiceComplete.on(fn)
}

// OnMessageComplete fires when the reply is fully delivered.
func (ch *Character) OnMessageComplete(fn func(Message)) Subscription {
	return ch.onMessageComplete.on(fn)
}

// OnMessageException fires when the service rejects the message.
func (ch *Character) OnMessageException(fn func(Message)) Subscription {
	return ch.onMessageException.on(fn)
}

// OnHistoryChange fires with the whole conversation whenever it changes.
func (ch *Character) OnHistoryChange(fn func([]Message)) Subscription {
	return ch.onHistoryChange.on(fn)
}

// OnExpressionChange fires when the current expression changes.
func (ch *Character) OnExpressionChange(fn func(string)) Subscription {
	return ch.onExpressionChange.on(fn)
}

// Close stops playback, drops queued behaviors and removes every handler.
func (ch *Character) Close() {
	ch.mu.Lock()
	subs := ch.subs
	ch.subs = nil
	ch.turn = nil
	ch.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
	ch.voice.Close()
	ch.behaviors.Close()
	for _, e := range []interface{ clear() }{
		&ch.onReady, &ch.onError, &ch.onMessageStart, &ch.onMessageProgress,
		&ch.onMessageTextComplete, &ch.onMessageVoiceComplete, &ch.onMessageComplete,
		&ch.onMessageException, &ch.onHistoryChange, &ch.onExpressionChange,
	} {
		e.clear()
	}
}

func (ch *Character) messagesLocked() []Message {
	return append([]Message(nil), ch.history...)
}

// IsException reports whether err is an exception sent by the service.
func IsException(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
