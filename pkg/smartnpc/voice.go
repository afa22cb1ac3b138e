package smartnpc

import (
	"context"
	"sync"
	"time"
)

// Clip is a decoded voice chunk.
type Clip struct {
	// Format is the source encoding, e.g. "mp3".
	Format string

	// Data is the source bytes.
	Data []byte

	// PCM is signed 16-bit little-endian samples, if the decoder produced
	// them.
	PCM []byte

	SampleRate int
	Channels   int

	// Duration is the playback length.
	Duration time.Duration
}

// AudioDecoder turns encoded voice into a playable Clip.
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte, format string) (*Clip, error)
}

// AudioPlayer plays one chunk at a time and calls finished exactly once when
// playback ends. finished may be called from any goroutine.
type AudioPlayer interface {
	Play(chunk *VoiceChunk, finished func())
}

// Stopper is implemented by players that can abort the chunk in progress.
type Stopper interface {
	Stop()
}

// VoiceChunk is one entry of the voice queue.
type VoiceChunk struct {
	// Index is the arrival position within the current message.
	Index int

	// Response is the stream frame that carried the audio.
	Response MessageResponse

	// Clip is the decoded audio; nil if decoding failed.
	Clip *Clip

	// Err is the decode error, if any.
	Err error
}

// VoiceQueueConfig configures a VoiceQueue.
type VoiceQueueConfig struct {
	// Loop delivers events and drives playback. Required.
	Loop *Loop

	// Decoder decodes chunks. Default keeps the encoded bytes in Clip.Data.
	Decoder AudioDecoder

	// Player plays chunks. Default finishes every chunk at once.
	Player AudioPlayer

	// Format is passed to the decoder. Default "mp3".
	Format string

	Logger Logger
}

// VoiceQueue plays the voice chunks of one message strictly in arrival
// order, one at a time. Chunks are decoded concurrently; a chunk that
// finishes decoding early waits for the ones before it.
type VoiceQueue struct {
	loop    *Loop
	decoder AudioDecoder
	player  AudioPlayer
	format  string
	logger  Logger

	mu             sync.Mutex
	gen            uint64
	ctx            context.Context
	cancel         context.CancelFunc
	entries        []*voiceEntry
	index          int
	playing        bool
	streamComplete bool
	complete       bool
	lastFired      bool

	onStart     event[*VoiceChunk]
	onProgress  event[*VoiceChunk]
	onLastChunk event[*VoiceChunk]
	onComplete  event[struct{}]
	onError     event[error]
}

type voiceEntry struct {
	chunk *VoiceChunk
	ready bool
}

// NewVoiceQueue creates an empty queue.
func NewVoiceQueue(cfg VoiceQueueConfig) *VoiceQueue {
	if cfg.Loop == nil {
		panic("smartnpc: VoiceQueueConfig.Loop is required")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = passthroughDecoder{}
	}
	if cfg.Player == nil {
		cfg.Player = instantPlayer{}
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	q := &VoiceQueue{
		loop:    cfg.Loop,
		decoder: cfg.Decoder,
		player:  cfg.Player,
		format:  cfg.Format,
		logger:  cfg.Logger,
		index:   -1,
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Reset empties the queue for a new message. Decodes still running for the
// previous message are canceled and their results dropped. A player that
// implements Stopper is stopped if it was playing.
func (q *VoiceQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.player.(Stopper); ok && q.playing {
		s.Stop()
	}
	q.cancel()
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.gen++
	q.entries = nil
	q.index = -1
	q.playing = false
	q.streamComplete = false
	q.complete = false
	q.lastFired = false
}

// Add reserves the next slot for resp and decodes its audio in the
// background. Playback starts once the slot is next in line and decoded.
func (q *VoiceQueue) Add(resp MessageResponse) {
	q.mu.Lock()
	e := &voiceEntry{chunk: &VoiceChunk{Index: len(q.entries), Response: resp}}
	q.entries = append(q.entries, e)
	q.complete = false
	gen := q.gen
	ctx := q.ctx
	q.mu.Unlock()

	go func() {
		clip, err := q.decoder.Decode(ctx, resp.Voice, q.format)
		q.loop.Post(func() { q.resolve(gen, e, clip, err) })
	}()
}

// PlayNext schedules playback of the next ready chunk if nothing is playing.
func (q *VoiceQueue) PlayNext() {
	q.loop.Post(q.playNext)
}

// PlaybackFinished marks the current chunk as done. It is equivalent to the
// finished callback handed to the player.
func (q *VoiceQueue) PlaybackFinished() {
	q.mu.Lock()
	gen, idx := q.gen, q.index
	q.mu.Unlock()
	q.loop.Post(func() { q.onPlaybackFinished(gen, idx) })
}

// SetStreamComplete records that no more chunks will be added. Playback
// resumes if it was idle with chunks left, and completion fires once the
// last chunk has played, immediately if there is nothing left to play.
func (q *VoiceQueue) SetStreamComplete() {
	q.mu.Lock()
	if q.streamComplete {
		q.mu.Unlock()
		return
	}
	q.streamComplete = true
	var last *VoiceChunk
	if q.playing && q.index == len(q.entries)-1 && !q.lastFired {
		q.lastFired = true
		last = q.entries[q.index].chunk
	}
	q.mu.Unlock()

	if last != nil {
		q.onLastChunk.fire(q.loop, last)
	}
	q.loop.Post(q.playNext)
}

// OnStart fires when the first chunk of a message starts playing.
func (q *VoiceQueue) OnStart(fn func(*VoiceChunk)) Subscription {
	return q.onStart.on(fn)
}

// OnProgress fires as each chunk starts playing, and for chunks that failed
// to decode at the point they would have played.
func (q *VoiceQueue) OnProgress(fn func(*VoiceChunk)) Subscription {
	return q.onProgress.on(fn)
}

// OnLastChunk fires when the final chunk of a completed stream starts.
func (q *VoiceQueue) OnLastChunk(fn func(*VoiceChunk)) Subscription {
	return q.onLastChunk.on(fn)
}

// OnComplete fires once the stream is complete and every chunk has played.
func (q *VoiceQueue) OnComplete(fn func()) Subscription {
	return q.onComplete.on(func(struct{}) { fn() })
}

// OnError fires when a chunk fails to decode.
func (q *VoiceQueue) OnError(fn func(error)) Subscription {
	return q.onError.on(fn)
}

// Playing reports whether a chunk is playing.
func (q *VoiceQueue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Complete reports whether the current message finished playing.
func (q *VoiceQueue) Complete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.complete
}

// StreamComplete reports whether SetStreamComplete was called.
func (q *VoiceQueue) StreamComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.streamComplete
}

// Len returns the number of chunks added since Reset.
func (q *VoiceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Index returns the position of the chunk playing or last played, -1 if none.
func (q *VoiceQueue) Index() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index
}

// Close cancels pending decodes and removes every event handler.
func (q *VoiceQueue) Close() {
	q.Reset()
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()
	q.onStart.clear()
	q.onProgress.clear()
	q.onLastChunk.clear()
	q.onComplete.clear()
	q.onError.clear()
}

func (q *VoiceQueue) resolve(gen uint64, e *voiceEntry, clip *Clip, err error) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	e.chunk.Clip = clip
	e.chunk.Err = err
	e.ready = true
	q.mu.Unlock()

	if err != nil {
		q.logger.WarnPrintf("decode voice chunk %d: %v", e.chunk.Index, err)
		q.onError.emit(err)
	}
	q.playNext()
}

// playNext runs on the loop.
func (q *VoiceQueue) playNext() {
	q.mu.Lock()
	if q.playing {
		q.mu.Unlock()
		return
	}
	next := q.index + 1
	if next >= len(q.entries) {
		done := q.streamComplete && !q.complete
		if done {
			q.complete = true
		}
		q.mu.Unlock()
		if done {
			q.onComplete.emit(struct{}{})
		}
		return
	}
	e := q.entries[next]
	if !e.ready {
		q.mu.Unlock()
		return
	}
	q.index = next
	chunk := e.chunk
	last := q.streamComplete && next == len(q.entries)-1
	if last {
		q.lastFired = true
	}
	skip := chunk.Err != nil || chunk.Clip == nil
	if !skip {
		q.playing = true
	}
	gen := q.gen
	q.mu.Unlock()

	if next == 0 {
		q.onStart.emit(chunk)
	}
	q.onProgress.emit(chunk)
	if last {
		q.onLastChunk.emit(chunk)
	}
	if skip {
		q.loop.Post(q.playNext)
		return
	}

	var once sync.Once
	q.player.Play(chunk, func() {
		once.Do(func() {
			q.loop.Post(func() { q.onPlaybackFinished(gen, next) })
		})
	})
}

func (q *VoiceQueue) onPlaybackFinished(gen uint64, idx int) {
	q.mu.Lock()
	if gen != q.gen || idx != q.index || !q.playing {
		q.mu.Unlock()
		return
	}
	q.playing = false
	q.mu.Unlock()
	q.playNext()
}

// passthroughDecoder keeps the encoded bytes without decoding them.
type passthroughDecoder struct{}

func (passthroughDecoder) Decode(_ context.Context, data []byte, format string) (*Clip, error) {
	return &Clip{Format: format, Data: data}, nil
}

// instantPlayer finishes every chunk immediately.
type instantPlayer struct{}

func (instantPlayer) Play(_ *VoiceChunk, finished func()) {
	finished()
}
