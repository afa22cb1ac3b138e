package smartnpc

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

type speechLog struct {
	events []string
}

func (l *speechLog) attach(r *SpeechRecognizer) {
	r.OnStart(func(reopened bool) {
		if reopened {
			l.events = append(l.events, "start:reopened")
		} else {
			l.events = append(l.events, "start")
		}
	})
	r.OnStartProcessing(func() { l.events = append(l.events, "processing") })
	r.OnProgress(func(text string, finishing bool) {
		if finishing {
			l.events = append(l.events, "progress:"+text+":finishing")
		} else {
			l.events = append(l.events, "progress:"+text)
		}
	})
	r.OnFinishing(func(text string) { l.events = append(l.events, "finishing:"+text) })
	r.OnComplete(func(text string) { l.events = append(l.events, "complete:"+text) })
	r.OnAbort(func() { l.events = append(l.events, "abort") })
	r.OnException(func(msg string) { l.events = append(l.events, "exception:"+msg) })
}

func speech(status StreamStatus, text string) map[string]string {
	return map[string]string{"status": string(status), "text": text}
}

func TestSpeechRecognizer_SendAudio(t *testing.T) {
	conn, ft := newReadyConn(t)
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()

	if err := r.SendAudio([]byte("ignored")); err != nil {
		t.Fatal(err)
	}
	if ft.count(EventSpeech) != 0 {
		t.Error("audio sent while not recording")
	}

	if err := r.Start(LanguageEnglish); err != nil {
		t.Fatal(err)
	}
	if err := r.SendAudio([]byte("RIFF")); err != nil {
		t.Fatal(err)
	}
	var req struct {
		Language string `json:"language"`
		Data     string `json:"data"`
	}
	if err := json.Unmarshal(ft.last(t, EventSpeech).Data, &req); err != nil {
		t.Fatal(err)
	}
	if req.Language != "en" || req.Data != "UklGRg==" {
		t.Errorf("request = %+v", req)
	}
}

func TestSpeechRecognizer_FinishesAfterStop(t *testing.T) {
	conn, ft := newReadyConn(t)
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()
	var log speechLog
	log.attach(r)

	r.Start(LanguageEnglish)
	r.SendAudio([]byte("a"))
	ft.deliver(EventSpeech, speech(StatusStart, ""))
	ft.deliver(EventSpeech, speech(StatusProgress, "hel"))
	drain(conn.Loop())

	r.Stop()
	if !r.Finishing() || !r.Recording() {
		t.Fatalf("Finishing=%v Recording=%v after Stop", r.Finishing(), r.Recording())
	}
	ft.deliver(EventSpeech, speech(StatusComplete, "hello"))
	drain(conn.Loop())

	want := []string{"start", "processing", "progress:hel", "finishing:hel", "complete:hello"}
	if !slices.Equal(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
	if r.Recording() || r.Finishing() {
		t.Error("session still open after final transcript")
	}
}

func TestSpeechRecognizer_AbortWithoutText(t *testing.T) {
	conn, ft := newReadyConn(t)
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()
	var log speechLog
	log.attach(r)

	r.Start(LanguageFrench)
	r.SendAudio([]byte("a"))
	r.Stop()
	drain(conn.Loop())
	if r.Recording() {
		t.Fatal("still recording after abort")
	}

	ft.deliver(EventSpeech, speech(StatusProgress, "bonjour"))
	drain(conn.Loop())
	if !r.Recording() || !r.Finishing() {
		t.Error("late text did not reopen the session")
	}
	ft.deliver(EventSpeech, speech(StatusComplete, "bonjour"))
	drain(conn.Loop())

	want := []string{"start", "abort", "start:reopened", "progress:bonjour:finishing", "complete:bonjour"}
	if !slices.Equal(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
	if r.Recording() {
		t.Error("reopened session not closed by final transcript")
	}
}

func TestSpeechRecognizer_StopIdle(t *testing.T) {
	conn, _ := newReadyConn(t)
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()
	var log speechLog
	log.attach(r)

	r.Start(LanguageEnglish)
	r.Stop()
	drain(conn.Loop())
	if r.Recording() {
		t.Error("still recording")
	}
	if !slices.Equal(log.events, []string{"start"}) {
		t.Errorf("events = %v", log.events)
	}
}

func TestSpeechRecognizer_Exception(t *testing.T) {
	conn, ft := newReadyConn(t)
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()
	var log speechLog
	log.attach(r)

	r.Start(LanguageEnglish)
	r.SendAudio([]byte("a"))
	ft.deliver(EventSpeech, map[string]string{"status": "exception", "exception": "unsupported audio"})
	drain(conn.Loop())
	if !slices.Contains(log.events, "exception:unsupported audio") {
		t.Errorf("events = %v", log.events)
	}
}

func TestSpeechRecognizer_NotReady(t *testing.T) {
	ft := newFakeTransport()
	conn, _ := NewConnection(ft, Config{KeyID: "k", PublicKey: "p"})
	defer conn.Close()
	r := NewSpeechRecognizer(conn, nil)
	defer r.Close()
	if err := r.Start(LanguageEnglish); !errors.Is(err, ErrNotReady) {
		t.Errorf("Start = %v, want ErrNotReady", err)
	}
}
