package smartnpc

import (
	"encoding/json"

	"github.com/smartnpc/smartnpc-go/pkg/socketio"
)

// Transport is the duplex event connection underneath a Connection. It holds
// at most one handler per event name; EventChannel multiplexes on top.
//
// Handlers and ack callbacks may be invoked from any goroutine.
type Transport interface {
	// On installs the handler for event, replacing any previous one.
	On(event string, handler func(data json.RawMessage))

	// Off removes the handler for event.
	Off(event string)

	// Emit sends event with data.
	Emit(event string, data any) error

	// EmitWithAck sends event with data and calls ack with the reply.
	EmitWithAck(event string, data any, ack func(data json.RawMessage)) error

	// Close releases the connection.
	Close() error
}

// SocketTransport adapts a socketio.Client to Transport. Events and acks
// carry their payload in the first argument.
type SocketTransport struct {
	Client *socketio.Client
}

var _ Transport = SocketTransport{}

func (t SocketTransport) On(event string, handler func(json.RawMessage)) {
	t.Client.On(event, func(args []json.RawMessage) {
		handler(firstArg(args))
	})
}

func (t SocketTransport) Off(event string) {
	t.Client.Off(event)
}

func (t SocketTransport) Emit(event string, data any) error {
	return t.Client.Emit(event, data)
}

func (t SocketTransport) EmitWithAck(event string, data any, ack func(json.RawMessage)) error {
	return t.Client.EmitWithAck(event, func(args []json.RawMessage) {
		ack(firstArg(args))
	}, data)
}

func (t SocketTransport) Close() error {
	return t.Client.Close()
}

func firstArg(args []json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("null")
	}
	return args[0]
}
