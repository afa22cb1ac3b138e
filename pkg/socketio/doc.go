// Package socketio implements the subset of Socket.IO v5 over Engine.IO v4
// that the SmartNPC service speaks: text packets on the WebSocket transport,
// CONNECT with an auth payload, events and acknowledgements on the main
// namespace, and heartbeat handling.
//
// Binary attachments and the HTTP long-polling transport are not supported.
//
// # Client
//
//	c, err := socketio.NewClient("wss://api.smartnpc.ai",
//	    socketio.WithAuth(map[string]string{"keyId": id, "publicKey": key}))
//	if err != nil {
//	    return err
//	}
//	c.On("ready", func(args []json.RawMessage) { ... })
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.EmitWithAck("character", func(args []json.RawMessage) { ... },
//	    map[string]string{"id": "npc-1"})
//
// A client holds one handler per event name. Fan-out to several listeners is
// left to the caller.
//
// # Server
//
// Server is a small in-process counterpart used by the mock backend and by
// tests:
//
//	srv := socketio.NewServer(socketio.ServerConfig{})
//	srv.OnConnection(func(s *socketio.Socket) {
//	    s.On("ping", func(args []json.RawMessage, ack func(...any) error) {
//	        if ack != nil {
//	            ack("pong")
//	        }
//	    })
//	})
//	http.Handle("/socket.io/", srv)
package socketio
