package smartnpc

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

// gatedDecoder blocks each decode until its data is released.
type gatedDecoder struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]bool
}

func newGatedDecoder(names ...string) *gatedDecoder {
	d := &gatedDecoder{gates: make(map[string]chan struct{}), fail: make(map[string]bool)}
	for _, n := range names {
		d.gates[n] = make(chan struct{})
	}
	return d
}

func (d *gatedDecoder) release(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.gates[name])
}

func (d *gatedDecoder) Decode(ctx context.Context, data []byte, format string) (*Clip, error) {
	d.mu.Lock()
	gate := d.gates[string(data)]
	fail := d.fail[string(data)]
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("corrupt chunk")
	}
	return &Clip{Format: format, Data: data}, nil
}

// manualPlayer records plays and lets the test finish them.
type manualPlayer struct {
	mu       sync.Mutex
	played   []string
	finished []func()
	stopped  int
}

func (p *manualPlayer) Play(chunk *VoiceChunk, finished func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, string(chunk.Clip.Data))
	p.finished = append(p.finished, finished)
}

func (p *manualPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *manualPlayer) plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *manualPlayer) finish(i int) {
	p.mu.Lock()
	fn := p.finished[i]
	p.mu.Unlock()
	fn()
}

// instantRecorder records plays and finishes each at once.
type instantRecorder struct {
	mu     sync.Mutex
	played []string
}

func (p *instantRecorder) Play(chunk *VoiceChunk, finished func()) {
	p.mu.Lock()
	p.played = append(p.played, string(chunk.Clip.Data))
	p.mu.Unlock()
	finished()
}

func (p *instantRecorder) plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func voiceFrame(data string) MessageResponse {
	return MessageResponse{Frame: Frame{Status: StatusProgress}, Text: data, Voice: Audio(data)}
}

func TestVoiceQueue_PlaysInArrivalOrder(t *testing.T) {
	l := NewLoop()
	dec := newGatedDecoder("A", "B", "C")
	player := &instantRecorder{}
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l, Decoder: dec, Player: player})

	completed := false
	q.OnComplete(func() { completed = true })

	q.Add(voiceFrame("A"))
	q.Add(voiceFrame("B"))
	q.Add(voiceFrame("C"))
	q.SetStreamComplete()

	dec.release("C")
	drain(l)
	if len(player.plays()) != 0 {
		t.Fatal("C played before A and B decoded")
	}
	dec.release("A")
	waitFor(t, l, func() bool { return len(player.plays()) >= 1 })
	dec.release("B")
	waitFor(t, l, func() bool { return completed })

	if got := player.plays(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("played %v, want [A B C]", got)
	}
	if !q.Complete() || q.Playing() {
		t.Errorf("Complete=%v Playing=%v", q.Complete(), q.Playing())
	}
}

func TestVoiceQueue_StreamCompleteMidPlayback(t *testing.T) {
	l := NewLoop()
	player := &manualPlayer{}
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l, Player: player})

	var events []string
	q.OnStart(func(c *VoiceChunk) { events = append(events, "start:"+c.Response.Text) })
	q.OnProgress(func(c *VoiceChunk) { events = append(events, "progress:"+c.Response.Text) })
	q.OnLastChunk(func(c *VoiceChunk) { events = append(events, "last:"+c.Response.Text) })
	q.OnComplete(func() { events = append(events, "complete") })

	q.Add(voiceFrame("A"))
	q.Add(voiceFrame("B"))
	waitFor(t, l, func() bool { return len(player.plays()) == 1 })
	if !q.Playing() {
		t.Fatal("not playing")
	}

	q.SetStreamComplete()
	drain(l)
	if len(player.plays()) != 1 {
		t.Fatal("B started while A was playing")
	}

	player.finish(0)
	waitFor(t, l, func() bool { return len(player.plays()) == 2 })
	player.finish(1)
	drain(l)

	want := []string{"start:A", "progress:A", "progress:B", "last:B", "complete"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestVoiceQueue_LastChunkAlreadyPlaying(t *testing.T) {
	l := NewLoop()
	player := &manualPlayer{}
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l, Player: player})

	last, complete := 0, 0
	q.OnLastChunk(func(*VoiceChunk) { last++ })
	q.OnComplete(func() { complete++ })

	q.Add(voiceFrame("A"))
	waitFor(t, l, func() bool { return q.Playing() })
	q.SetStreamComplete()
	drain(l)
	if last != 1 {
		t.Errorf("last = %d, want 1 while the final chunk plays", last)
	}

	player.finish(0)
	player.finish(0)
	drain(l)
	if complete != 1 || last != 1 {
		t.Errorf("complete=%d last=%d", complete, last)
	}
}

func TestVoiceQueue_CompleteWithoutChunks(t *testing.T) {
	l := NewLoop()
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l})
	complete := 0
	q.OnComplete(func() { complete++ })
	q.SetStreamComplete()
	q.SetStreamComplete()
	drain(l)
	if complete != 1 {
		t.Errorf("complete = %d, want 1", complete)
	}
}

func TestVoiceQueue_DecodeFailureSkipped(t *testing.T) {
	l := NewLoop()
	dec := newGatedDecoder()
	dec.fail["B"] = true
	player := &instantRecorder{}
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l, Decoder: dec, Player: player})

	var progress []string
	var errs []error
	complete := false
	q.OnProgress(func(c *VoiceChunk) { progress = append(progress, c.Response.Text) })
	q.OnError(func(err error) { errs = append(errs, err) })
	q.OnComplete(func() { complete = true })

	q.Add(voiceFrame("A"))
	q.Add(voiceFrame("B"))
	q.Add(voiceFrame("C"))
	q.SetStreamComplete()
	waitFor(t, l, func() bool { return complete })

	if !slices.Equal(progress, []string{"A", "B", "C"}) {
		t.Errorf("progress = %v", progress)
	}
	if got := player.plays(); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("played %v, want [A C]", got)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v", errs)
	}
}

func TestVoiceQueue_ResetDropsPending(t *testing.T) {
	l := NewLoop()
	dec := newGatedDecoder("old")
	player := &manualPlayer{}
	q := NewVoiceQueue(VoiceQueueConfig{Loop: l, Decoder: dec, Player: player})

	q.Add(voiceFrame("first"))
	waitFor(t, l, func() bool { return q.Playing() })
	q.Add(voiceFrame("old"))

	q.Reset()
	if player.stopped != 1 {
		t.Errorf("stopped = %d, want 1", player.stopped)
	}
	if q.Len() != 0 || q.Index() != -1 || q.Playing() {
		t.Errorf("after Reset: Len=%d Index=%d Playing=%v", q.Len(), q.Index(), q.Playing())
	}

	player.finish(0)
	q.Add(voiceFrame("new"))
	waitFor(t, l, func() bool { return len(player.plays()) == 2 })
	drain(l)
	if got := player.plays(); !slices.Equal(got, []string{"first", "new"}) {
		t.Errorf("played %v, want [first new]", got)
	}
}
