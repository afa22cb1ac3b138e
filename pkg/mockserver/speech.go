package mockserver

import (
	"strings"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

type speechFrame struct {
	Status    smartnpc.StreamStatus `json:"status"`
	Text      string                `json:"text,omitempty"`
	Exception string                `json:"exception,omitempty"`
}

// speechSession is one utterance. It reveals one more transcript word per
// chunk received and completes after SpeechIdle without audio.
type speechSession struct {
	words  []string
	chunks int
	audio  time.Duration
	timer  *time.Timer
}

func (sp *speechSession) text() string {
	return strings.Join(sp.words[:min(sp.chunks, len(sp.words))], " ")
}

func (sp *speechSession) stop() {
	if sp.timer != nil {
		sp.timer.Stop()
	}
}

func (sess *session) speechChunk(req request, _ func(...any) error) {
	pcm, f, err := audioclip.DecodeWAV(req.Data)
	if err != nil {
		sess.emit(smartnpc.EventSpeech, speechFrame{Status: smartnpc.StatusException, Exception: err.Error()})
		return
	}

	sess.mu.Lock()
	sp := sess.speech
	started := sp == nil
	if started {
		sp = &speechSession{words: strings.Fields(sess.srv.cfg.Transcript)}
		sess.speech = sp
	}
	sp.chunks++
	sp.audio += f.Duration(len(pcm))
	text := sp.text()
	sp.stop()
	sp.timer = time.AfterFunc(sess.srv.cfg.SpeechIdle, func() { sess.finishSpeech(sp) })
	sess.mu.Unlock()

	if started {
		sess.logger.Info("speech started", "language", req.Language)
		sess.emit(smartnpc.EventSpeech, speechFrame{Status: smartnpc.StatusStart})
	}
	sess.emit(smartnpc.EventSpeech, speechFrame{Status: smartnpc.StatusProgress, Text: text})
}

func (sess *session) finishSpeech(sp *speechSession) {
	sess.mu.Lock()
	if sess.speech != sp {
		sess.mu.Unlock()
		return
	}
	sess.speech = nil
	sess.mu.Unlock()

	sess.logger.Info("speech complete", "chunks", sp.chunks, "audio", sp.audio)
	sess.emit(smartnpc.EventSpeech, speechFrame{Status: smartnpc.StatusComplete, Text: strings.Join(sp.words, " ")})
}
