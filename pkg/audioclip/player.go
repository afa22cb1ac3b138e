package audioclip

import (
	"io"
	"sync"
	"time"

	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

// TimedPlayer plays nothing: it waits each clip's duration and reports it
// finished, which keeps voice-synchronized events on a realistic schedule
// when there is no audio device.
type TimedPlayer struct {
	// Sink, if set, receives each clip's PCM as it starts.
	Sink io.Writer

	// Speed scales playback; 2 plays twice as fast. Default 1.
	Speed float64

	mu    sync.Mutex
	timer *time.Timer
}

var (
	_ smartnpc.AudioPlayer = (*TimedPlayer)(nil)
	_ smartnpc.Stopper     = (*TimedPlayer)(nil)
)

// Play implements smartnpc.AudioPlayer.
func (p *TimedPlayer) Play(chunk *smartnpc.VoiceChunk, finished func()) {
	var d time.Duration
	if chunk.Clip != nil {
		d = chunk.Clip.Duration
		if p.Sink != nil && len(chunk.Clip.PCM) > 0 {
			p.Sink.Write(chunk.Clip.PCM)
		}
	}
	if p.Speed > 0 {
		d = time.Duration(float64(d) / p.Speed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer = time.AfterFunc(d, finished)
}

// Stop abandons the clip in progress. Its finished callback never runs.
func (p *TimedPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// WAVRecorder collects every played clip and writes them out as one WAV
// file. Clips are converted to Format; a zero Format takes the format of
// the first clip.
type WAVRecorder struct {
	Format Format

	mu  sync.Mutex
	pcm []byte
}

var _ smartnpc.AudioPlayer = (*WAVRecorder)(nil)

// Play implements smartnpc.AudioPlayer. It finishes at once.
func (r *WAVRecorder) Play(chunk *smartnpc.VoiceChunk, finished func()) {
	defer finished()
	c := chunk.Clip
	if c == nil || len(c.PCM) == 0 {
		return
	}
	src := Format{SampleRate: c.SampleRate, Stereo: c.Channels == 2}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Format.SampleRate == 0 {
		r.Format = src
	}
	pcm, err := Resample(c.PCM, src, r.Format)
	if err != nil {
		return
	}
	r.pcm = append(r.pcm, pcm...)
}

// Len returns the number of PCM bytes recorded.
func (r *WAVRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pcm)
}

// WriteTo writes the recording as WAV.
func (r *WAVRecorder) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	data := EncodeWAV(r.pcm, r.Format)
	r.mu.Unlock()
	n, err := w.Write(data)
	return int64(n), err
}
