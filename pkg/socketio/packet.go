package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Engine.IO v4 packet types, as the first byte of a text frame.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// PacketType is a Socket.IO v5 packet type.
type PacketType byte

const (
	PacketConnect      PacketType = 0
	PacketDisconnect   PacketType = 1
	PacketEvent        PacketType = 2
	PacketAck          PacketType = 3
	PacketConnectError PacketType = 4
	PacketBinaryEvent  PacketType = 5
	PacketBinaryAck    PacketType = 6
)

// DefaultNamespace is the main namespace.
const DefaultNamespace = "/"

// NoAck marks a packet that carries no ack id.
const NoAck int64 = -1

var (
	// ErrBinaryUnsupported is returned for binary event and ack packets.
	ErrBinaryUnsupported = errors.New("socketio: binary packets are not supported")

	// ErrMalformedPacket is returned when a frame cannot be parsed.
	ErrMalformedPacket = errors.New("socketio: malformed packet")
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	ID        int64
	Data      json.RawMessage
}

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// Encode returns the Engine.IO message frame carrying p.
//
// Layout: '4' <type> [<namespace> ','] [<ack id>] [<json data>]
func (p *Packet) Encode() []byte {
	buf := make([]byte, 0, 8+len(p.Namespace)+len(p.Data))
	buf = append(buf, engineMessage, byte('0'+p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		buf = append(buf, p.Namespace...)
		buf = append(buf, ',')
	}
	if p.ID >= 0 {
		buf = strconv.AppendInt(buf, p.ID, 10)
	}
	buf = append(buf, p.Data...)
	return buf
}

// DecodePacket parses a Socket.IO packet. The Engine.IO message prefix must
// already be stripped.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) == 0 {
		return nil, ErrMalformedPacket
	}
	c := b[0]
	if c < '0' || c > '6' {
		return nil, fmt.Errorf("%w: type %q", ErrMalformedPacket, c)
	}
	p := &Packet{
		Type:      PacketType(c - '0'),
		Namespace: DefaultNamespace,
		ID:        NoAck,
	}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return nil, ErrBinaryUnsupported
	}
	i := 1
	if i < len(b) && b[i] == '/' {
		start := i
		for i < len(b) && b[i] != ',' {
			i++
		}
		p.Namespace = string(b[start:i])
		if i < len(b) {
			i++
		}
	}
	start := i
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.ParseInt(string(b[start:i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: ack id: %v", ErrMalformedPacket, err)
		}
		p.ID = id
	}
	if i < len(b) {
		data := b[i:]
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: invalid json payload", ErrMalformedPacket)
		}
		p.Data = json.RawMessage(data)
	}
	return p, nil
}

// EncodeEvent builds the JSON array payload ["event", args...].
func EncodeEvent(event string, args ...any) (json.RawMessage, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("socketio: encode %s: %w", event, err)
	}
	return data, nil
}

// EncodeArgs builds the JSON array payload of an ack.
func EncodeArgs(args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("socketio: encode ack: %w", err)
	}
	return data, nil
}

// DecodeEvent splits an event payload into its name and raw arguments.
func DecodeEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, fmt.Errorf("%w: event payload: %v", ErrMalformedPacket, err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("%w: empty event payload", ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformedPacket, err)
	}
	return name, items[1:], nil
}

// DecodeArgs splits an ack payload into raw arguments.
func DecodeArgs(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: ack payload: %v", ErrMalformedPacket, err)
	}
	return items, nil
}

// handshake is the Engine.IO open packet body.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// connectError is the CONNECT_ERROR packet body.
type connectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}
