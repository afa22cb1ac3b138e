package smartnpc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFetch_NotReady(t *testing.T) {
	ft := newFakeTransport()
	conn, err := NewConnection(ft, Config{KeyID: "k", PublicKey: "p"})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	called := false
	_, err = conn.Fetch(FetchOptions{
		Event:     "character",
		OnSuccess: func(json.RawMessage) { called = true },
	})
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Fetch = %v, want ErrNotReady", err)
	}
	if ft.count("character") != 0 {
		t.Error("request sent before ready")
	}
	drain(conn.Loop())
	if called {
		t.Error("callback fired for a rejected request")
	}
}

func TestFetch_Success(t *testing.T) {
	conn, ft := newReadyConn(t)

	var replies []string
	var exceptions []error
	emitID, err := conn.Fetch(FetchOptions{
		Event: "character",
		Data:  map[string]string{"id": "npc"},
		OnSuccess: func(data json.RawMessage) {
			replies = append(replies, string(data))
		},
		OnException: func(err error) { exceptions = append(exceptions, err) },
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	sent := ft.last(t, "character")
	if sent.EmitID != emitID || emitID == "" {
		t.Errorf("sent emitId %q, returned %q", sent.EmitID, emitID)
	}
	var payload map[string]string
	if err := json.Unmarshal(sent.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["id"] != "npc" {
		t.Errorf("payload lost its fields: %v", payload)
	}
	if conn.channel.Subscribers(EventException) != 1 {
		t.Error("no exception handler while pending")
	}

	ft.reply(t, "character", map[string]string{"name": "Bob"})
	if len(replies) != 0 {
		t.Fatal("OnSuccess ran outside the loop")
	}
	drain(conn.Loop())

	ft.deliver(EventException, map[string]string{"emitId": emitID, "message": "late"})
	ft.reply(t, "character", map[string]string{"name": "again"})
	drain(conn.Loop())

	if len(replies) != 1 || replies[0] != `{"name":"Bob"}` {
		t.Errorf("replies = %v", replies)
	}
	if len(exceptions) != 0 {
		t.Errorf("exceptions = %v", exceptions)
	}
	if conn.channel.Subscribers(EventException) != 0 {
		t.Error("exception handler left after settle")
	}
}

func TestFetch_Exception(t *testing.T) {
	conn, ft := newReadyConn(t)

	successes := 0
	var exceptions []error
	emitID, err := conn.Fetch(FetchOptions{
		Event:       "character",
		OnSuccess:   func(json.RawMessage) { successes++ },
		OnException: func(err error) { exceptions = append(exceptions, err) },
	})
	if err != nil {
		t.Fatal(err)
	}

	ft.deliver(EventException, map[string]string{"emitId": "someone-else", "message": "x"})
	drain(conn.Loop())
	if len(exceptions) != 0 {
		t.Fatal("foreign exception was delivered")
	}

	ft.deliver(EventException, map[string]string{"emitId": emitID, "message": "no such character"})
	drain(conn.Loop())
	ft.reply(t, "character", map[string]string{})
	drain(conn.Loop())

	if successes != 0 {
		t.Errorf("OnSuccess fired %d times after exception", successes)
	}
	if len(exceptions) != 1 {
		t.Fatalf("exceptions = %v", exceptions)
	}
	var e *Error
	if !errors.As(exceptions[0], &e) {
		t.Fatalf("exception %T is not *Error", exceptions[0])
	}
	if e.Message != "no such character" || e.EmitID != emitID || e.Event != "character" {
		t.Errorf("Error = %+v", e)
	}
	if !IsException(exceptions[0]) {
		t.Error("IsException = false")
	}
}

func TestFetch_EmitFailure(t *testing.T) {
	conn, ft := newReadyConn(t)
	ft.emitErr = errors.New("broken pipe")

	called := false
	_, err := conn.Fetch(FetchOptions{
		Event:       "character",
		OnSuccess:   func(json.RawMessage) { called = true },
		OnException: func(error) { called = true },
		Timeout:     time.Millisecond,
	})
	if err == nil {
		t.Fatal("Fetch succeeded on a failing transport")
	}
	if conn.channel.Subscribers(EventException) != 0 {
		t.Error("exception handler not rolled back")
	}
	time.Sleep(5 * time.Millisecond)
	drain(conn.Loop())
	if called {
		t.Error("callback fired after synchronous failure")
	}
}

func TestFetch_FireAndForget(t *testing.T) {
	conn, ft := newReadyConn(t)
	if _, err := conn.Fetch(FetchOptions{Event: "player", Data: PlayerInfo{ID: "p1"}}); err != nil {
		t.Fatal(err)
	}
	sent := ft.last(t, "player")
	if sent.ack != nil {
		t.Error("fire-and-forget request asked for an ack")
	}
	if conn.channel.Subscribers(EventException) != 0 {
		t.Error("fire-and-forget request subscribed to exceptions")
	}
}

func TestFetch_Timeout(t *testing.T) {
	conn, ft := newReadyConn(t)

	successes := 0
	var exceptions []error
	_, err := conn.Fetch(FetchOptions{
		Event:       "character",
		OnSuccess:   func(json.RawMessage) { successes++ },
		OnException: func(err error) { exceptions = append(exceptions, err) },
		Timeout:     10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, conn.Loop(), func() bool { return len(exceptions) > 0 })

	ft.reply(t, "character", map[string]string{})
	drain(conn.Loop())

	if len(exceptions) != 1 || !errors.Is(exceptions[0], ErrTimeout) {
		t.Errorf("exceptions = %v, want one ErrTimeout", exceptions)
	}
	if successes != 0 {
		t.Error("OnSuccess fired after timeout")
	}
}

func TestFetchAs(t *testing.T) {
	conn, ft := newReadyConn(t)

	var info CharacterInfo
	var failure error
	if _, err := FetchAs(conn, "character", nil, func(v CharacterInfo) { info = v }, func(err error) { failure = err }); err != nil {
		t.Fatal(err)
	}
	ft.reply(t, "character", CharacterInfo{ID: "npc", Name: "Bob"})
	drain(conn.Loop())
	if info.Name != "Bob" || failure != nil {
		t.Errorf("info = %+v, failure = %v", info, failure)
	}

	if _, err := FetchAs(conn, "character", nil, func(CharacterInfo) {}, func(err error) { failure = err }); err != nil {
		t.Fatal(err)
	}
	ft.reply(t, "character", "not an object")
	drain(conn.Loop())
	if failure == nil {
		t.Error("decode failure not reported")
	}
}

func TestWithEmitID(t *testing.T) {
	obj, err := withEmitID(nil, "id1")
	if err != nil {
		t.Fatal(err)
	}
	if string(obj["emitId"]) != `"id1"` || len(obj) != 1 {
		t.Errorf("nil data: %v", obj)
	}

	obj, err = withEmitID(struct {
		A int `json:"a"`
	}{A: 3}, "id2")
	if err != nil {
		t.Fatal(err)
	}
	if string(obj["a"]) != "3" || string(obj["emitId"]) != `"id2"` {
		t.Errorf("struct data: %v", obj)
	}

	if _, err := withEmitID("text", "id3"); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("string data: err = %v, want ErrInvalidPayload", err)
	}
}

func TestNewEmitID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := newEmitID()
		if seen[id] {
			t.Fatalf("duplicate emitId %s", id)
		}
		seen[id] = true
	}
}
