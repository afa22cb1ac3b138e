// Package smartnpc is a client for the SmartNPC conversational character
// service.
//
// A Connection authenticates over Socket.IO and correlates requests with
// their replies: Fetch for one reply, Stream for a sequence of frames. Both
// tag the request with a fresh emitId and only accept replies and
// "exception" events carrying the same id, so any number of requests may be
// in flight over a transport that holds a single handler per event.
//
// Character builds a conversation on top: it loads the character and its
// history, streams replies, plays voice chunks in order through a
// VoiceQueue and hands actions and gestures to a BehaviorQueue.
// SpeechRecognizer transcribes player audio.
//
// # Threading
//
// Every callback runs on a Loop, one at a time. Drive it with Run on a
// goroutine of its own, or call Tick from an existing frame loop:
//
//	conn, err := smartnpc.Connect(ctx, smartnpc.Config{
//	    KeyID:     keyID,
//	    PublicKey: publicKey,
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	go conn.Loop().Run(ctx)
//
//	ch := smartnpc.NewCharacter(conn, "npc-1", smartnpc.CharacterOptions{})
//	ch.OnMessageComplete(func(m smartnpc.Message) { fmt.Println(m.Response) })
//	ch.OnReady(func() { ch.SendMessage("Hello") })
//	ch.Init()
//
// Methods may be called from any goroutine. Reads of component state from
// outside the loop see a consistent snapshot but may lag behind callbacks
// still queued.
package smartnpc
