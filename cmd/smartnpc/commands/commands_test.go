package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
	"github.com/smartnpc/smartnpc-go/pkg/cli"
	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/mockserver"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
)

func newMockSession(t *testing.T, cfg mockserver.Config) *session {
	t.Helper()
	cfg.WordDelay = -1
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := mockserver.New(cfg)
	e := echo.New()
	srv.RegisterRoutes(e)
	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := &cli.Context{Name: "test", KeyID: "k", PublicKey: "p", Host: ts.URL, Timeout: 5}
	cc := c.ConnectionConfig()
	cc.Logger = smartnpc.SlogLogger(cfg.Logger)
	conn, err := smartnpc.Connect(ctx, cc)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	loopCtx, stop := context.WithCancel(context.Background())
	go conn.Loop().Run(loopCtx)
	s := &session{cliCtx: c, conn: conn, stop: stop}
	t.Cleanup(s.Close)
	if err := conn.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	return s
}

func TestSpeechChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	wav := mockserver.ToneWAV(440, time.Second, audioclip.Format{SampleRate: 24000, Stereo: true})
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, total, err := speechChunks(path, 300*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	// The resampler may trim or pad a few samples at the edges.
	if len(chunks) < 3 || len(chunks) > 4 {
		t.Fatalf("%d chunks, want 4", len(chunks))
	}
	if total < 900*time.Millisecond || total > 1100*time.Millisecond {
		t.Errorf("total = %v, want about 1s", total)
	}
	for i, c := range chunks {
		_, f, err := audioclip.DecodeWAV(c.wav)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if f != audioclip.Speech {
			t.Errorf("chunk %d format = %+v", i, f)
		}
		if i < 2 && c.duration != 300*time.Millisecond {
			t.Errorf("chunk %d duration = %v", i, c.duration)
		}
	}

	if _, _, err := speechChunks(filepath.Join(t.TempDir(), "missing.wav"), time.Second); err == nil {
		t.Error("missing file accepted")
	}
}

func TestRecognize(t *testing.T) {
	s := newMockSession(t, mockserver.Config{Transcript: "ring the bell", SpeechIdle: 50 * time.Millisecond})

	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, mockserver.ToneWAV(300, 400*time.Millisecond, audioclip.Speech), 0o644); err != nil {
		t.Fatal(err)
	}
	chunks, _, err := speechChunks(path, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	text, err := recognize(context.Background(), s.conn, smartnpc.LanguageEnglish, chunks, false)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "ring the bell" {
		t.Errorf("text = %q", text)
	}
}

func newChat(t *testing.T, s *session, opts smartnpc.CharacterOptions) (*chatSession, *bytes.Buffer) {
	t.Helper()
	ch, err := s.character(context.Background(), "mira", opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ch.Close)
	var out bytes.Buffer
	cs := &chatSession{
		id:     "mira",
		out:    &out,
		styles: cli.PlainStyles(),
		done:   make(chan smartnpc.Message, 1),
		cache:  history.NewMemory(),
		pcmFmt: audioclip.Format{SampleRate: 24000},
	}
	cs.bind(ch)
	return cs, &out
}

func TestChatSession_Interactive(t *testing.T) {
	s := newMockSession(t, mockserver.Config{})
	cs, out := newChat(t, s, smartnpc.CharacterOptions{Behaviors: true})

	in := strings.NewReader("hello\n\n/history\n/quit\nnever sent\n")
	if err := cs.interactive(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	// Behaviors are printed inline wherever the queue offers them.
	got := strings.ReplaceAll(out.String(), " *nod* ", "")
	if !strings.Contains(out.String(), "*nod*") {
		t.Errorf("behavior not printed:\n%s", out.String())
	}
	for _, want := range []string{
		"Mira: Mira heard you say: hello",
		"You: hello",
		"mira: Mira heard you say: hello",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never sent") {
		t.Error("input after /quit was sent")
	}

	entries, err := cs.cache.List(context.Background(), "mira")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Message.Response != "Mira heard you say: hello" {
		t.Errorf("cached = %+v", entries)
	}
	if len(cs.result.Exchanges) != 1 || len(cs.result.Exchanges[0].Behaviors) != 1 {
		t.Errorf("transcript = %+v", cs.result)
	}
}

func TestChatSession_Script(t *testing.T) {
	s := newMockSession(t, mockserver.Config{})
	cs, _ := newChat(t, s, smartnpc.CharacterOptions{})
	cs.quiet = true

	script := &cli.Script{Messages: []string{"one", "two"}, Pause: cli.Duration(10 * time.Millisecond)}
	if err := cs.runScript(context.Background(), script); err != nil {
		t.Fatal(err)
	}
	if n := len(cs.result.Exchanges); n != 2 {
		t.Fatalf("%d exchanges, want 2", n)
	}
	if got := cs.result.Exchanges[1].Response; got != "Mira heard you say: two" {
		t.Errorf("second response = %q", got)
	}
}

func TestChatSession_SaveVoice(t *testing.T) {
	s := newMockSession(t, mockserver.Config{
		Voice: mockserver.ToneWAV(440, 20*time.Millisecond, audioclip.Format{SampleRate: 16000}),
	})
	rec := &audioclip.WAVRecorder{Format: audioclip.Format{SampleRate: 24000}}
	cs, _ := newChat(t, s, smartnpc.CharacterOptions{
		Voice:       true,
		VoiceFormat: "wav",
		Decoder:     &audioclip.Decoder{Output: &audioclip.Format{SampleRate: 24000}},
		Player:      rec,
	})
	cs.recorder = rec
	cs.quiet = true

	dir := t.TempDir()
	if path, err := cs.saveVoice(dir); err != nil || path != "" {
		t.Fatalf("saveVoice before audio = %q, %v", path, err)
	}
	if _, err := cs.send(context.Background(), "hum"); err != nil {
		t.Fatal(err)
	}
	path, err := cs.saveVoice(dir)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pcm, f, err := audioclip.DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}
	if f.SampleRate != 24000 || len(pcm) == 0 {
		t.Errorf("saved %d bytes at %+v", len(pcm), f)
	}
}

func TestToRecords(t *testing.T) {
	now := time.Now()
	recs := toRecords([]history.Entry{{
		Seq:  3,
		Time: now,
		Message: smartnpc.HistoryMessage{
			Message:   "q",
			Response:  "a",
			Behaviors: []smartnpc.RawBehavior{{Type: "action", Args: []string{"point", "door"}}},
		},
	}})
	if len(recs) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	r := recs[0]
	if r.Seq != 3 || r.Time != now.Format("15:04:05") || r.Response != "a" {
		t.Errorf("record = %+v", r)
	}
	if len(r.Behaviors) != 1 || r.Behaviors[0] != "action[point door]" {
		t.Errorf("behaviors = %v", r.Behaviors)
	}
}
