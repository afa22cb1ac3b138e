package smartnpc

import "sync"

// SpeechSampleRate is the sample rate the service expects for speech audio.
const SpeechSampleRate = 16000

type speechRequest struct {
	Language Language `json:"language,omitempty"`
	Data     Audio    `json:"data"`
}

type speechFrame struct {
	Status    StreamStatus `json:"status"`
	Text      string       `json:"text,omitempty"`
	Exception string       `json:"exception,omitempty"`
}

// SpeechRecognizer transcribes player speech. The caller captures audio and
// hands it over as WAV chunks between Start and Stop; transcripts arrive on
// the "speech" event.
//
// A session is recording from Start until Stop. If Stop comes while the
// service is still transcribing and some text already arrived, the session
// enters the finishing state and ends once the final transcript arrives.
// If no text arrived yet, Stop aborts.
type SpeechRecognizer struct {
	conn   *Connection
	loop   *Loop
	logger Logger

	mu                 sync.Mutex
	language           Language
	recording          bool
	finishing          bool
	processing         bool
	processedFirstPart bool
	text               string
	sub                Subscription

	onStart           event[bool]
	onStartProcessing event[struct{}]
	onProgress        event[speechProgress]
	onFinishing       event[string]
	onComplete        event[string]
	onAbort           event[struct{}]
	onException       event[string]
}

type speechProgress struct {
	text      string
	finishing bool
}

// NewSpeechRecognizer creates a recognizer bound to conn.
func NewSpeechRecognizer(conn *Connection, logger Logger) *SpeechRecognizer {
	if logger == nil {
		logger = conn.Logger()
	}
	r := &SpeechRecognizer{
		conn:   conn,
		loop:   conn.Loop(),
		logger: logger,
	}
	r.sub = OnAs(conn, EventSpeech, r.handleFrame)
	return r
}

// Start begins a session in language. It is a no-op while recording.
func (r *SpeechRecognizer) Start(language Language) error {
	if !r.conn.IsReady() {
		return ErrNotReady
	}
	if r.open(language) {
		r.onStart.fire(r.loop, false)
	}
	return nil
}

// open starts a session and reports whether one was not already open.
func (r *SpeechRecognizer) open(language Language) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return false
	}
	r.recording = true
	r.finishing = false
	r.processedFirstPart = false
	r.language = language
	r.text = ""
	return true
}

// SendAudio sends one WAV chunk of the current session. Chunks sent while
// not recording are dropped.
func (r *SpeechRecognizer) SendAudio(wav []byte) error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.processing = true
	lang := r.language
	r.mu.Unlock()
	return r.conn.Emit(EventSpeech, speechRequest{Language: lang, Data: wav})
}

// Stop ends the session. See SpeechRecognizer for the finishing and abort
// rules.
func (r *SpeechRecognizer) Stop() error {
	if !r.conn.IsReady() {
		return ErrNotReady
	}
	r.stop()
	return nil
}

func (r *SpeechRecognizer) stop() {
	r.mu.Lock()
	if !r.recording || r.finishing {
		r.mu.Unlock()
		return
	}
	if !r.processing {
		r.endLocked()
		r.mu.Unlock()
		return
	}
	if !r.processedFirstPart {
		r.endLocked()
		r.mu.Unlock()
		r.onAbort.fire(r.loop, struct{}{})
		return
	}
	r.finishing = true
	text := r.text
	r.mu.Unlock()
	r.onFinishing.fire(r.loop, text)
}

func (r *SpeechRecognizer) endLocked() {
	r.recording = false
	r.finishing = false
	r.processedFirstPart = false
	r.text = ""
}

// Recording reports whether a session is open, finishing included.
func (r *SpeechRecognizer) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Finishing reports whether the session waits for its final transcript.
func (r *SpeechRecognizer) Finishing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishing
}

// Text returns the latest transcript of the session.
func (r *SpeechRecognizer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// OnStart fires when a session opens. recovered is true when the session
// was reopened because text arrived after an abort.
func (r *SpeechRecognizer) OnStart(fn func(recovered bool)) Subscription {
	return r.onStart.on(fn)
}

// OnStartProcessing fires when the service starts transcribing.
func (r *SpeechRecognizer) OnStartProcessing(fn func()) Subscription {
	return r.onStartProcessing.on(func(struct{}) { fn() })
}

// OnProgress fires with the transcript so far.
func (r *SpeechRecognizer) OnProgress(fn func(text string, finishing bool)) Subscription {
	return r.onProgress.on(func(p speechProgress) { fn(p.text, p.finishing) })
}

// OnFinishing fires when Stop waits for the final transcript.
func (r *SpeechRecognizer) OnFinishing(fn func(text string)) Subscription {
	return r.onFinishing.on(fn)
}

// OnComplete fires with the final transcript.
func (r *SpeechRecognizer) OnComplete(fn func(text string)) Subscription {
	return r.onComplete.on(fn)
}

// OnAbort fires when Stop ends a session that produced no text.
func (r *SpeechRecognizer) OnAbort(fn func()) Subscription {
	return r.onAbort.on(func(struct{}) { fn() })
}

// OnException fires with the service's message when transcription fails.
func (r *SpeechRecognizer) OnException(fn func(message string)) Subscription {
	return r.onException.on(fn)
}

// Close ends the session and removes every handler.
func (r *SpeechRecognizer) Close() {
	r.sub.Cancel()
	r.mu.Lock()
	r.endLocked()
	r.processing = false
	r.mu.Unlock()
	for _, e := range []interface{ clear() }{
		&r.onStart, &r.onStartProcessing, &r.onProgress, &r.onFinishing,
		&r.onComplete, &r.onAbort, &r.onException,
	} {
		e.clear()
	}
}

// handleFrame runs on the loop.
func (r *SpeechRecognizer) handleFrame(f speechFrame) {
	switch f.Status {
	case StatusStart:
		r.mu.Lock()
		r.processing = true
		r.mu.Unlock()
		r.onStartProcessing.emit(struct{}{})

	case StatusProgress:
		r.mu.Lock()
		r.processedFirstPart = true
		r.text = f.Text
		reopen := !r.recording
		lang := r.language
		r.mu.Unlock()
		if reopen {
			// Text arrived after an abort: reopen and finish the session.
			r.open(lang)
			r.onStart.emit(true)
			r.mu.Lock()
			r.processedFirstPart = true
			r.text = f.Text
			r.finishing = true
			r.mu.Unlock()
		}
		r.onProgress.emit(speechProgress{text: f.Text, finishing: r.Finishing()})

	case StatusComplete:
		r.mu.Lock()
		r.processing = false
		r.text = f.Text
		r.mu.Unlock()
		r.finishProcessing()
		r.onComplete.emit(f.Text)

	case StatusException:
		r.mu.Lock()
		r.processing = false
		r.mu.Unlock()
		r.finishProcessing()
		r.onException.emit(f.Exception)

	default:
		r.logger.DebugPrintf("speech: unknown status %q", f.Status)
	}
}

func (r *SpeechRecognizer) finishProcessing() {
	r.mu.Lock()
	if !r.finishing {
		r.mu.Unlock()
		return
	}
	r.finishing = false
	r.mu.Unlock()
	r.stop()
}
