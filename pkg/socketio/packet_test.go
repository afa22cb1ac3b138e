package socketio

import (
	"errors"
	"testing"
)

func TestPacket_Encode(t *testing.T) {
	tests := []struct {
		name string
		p    Packet
		want string
	}{
		{"connect", Packet{Type: PacketConnect, ID: NoAck}, "40"},
		{"connect auth", Packet{Type: PacketConnect, ID: NoAck, Data: []byte(`{"keyId":"k"}`)}, `40{"keyId":"k"}`},
		{"event", Packet{Type: PacketEvent, ID: NoAck, Data: []byte(`["ready"]`)}, `42["ready"]`},
		{"event with ack", Packet{Type: PacketEvent, ID: 12, Data: []byte(`["player",{}]`)}, `4212["player",{}]`},
		{"ack", Packet{Type: PacketAck, ID: 0, Data: []byte(`[true]`)}, `430[true]`},
		{"namespace", Packet{Type: PacketEvent, Namespace: "/admin", ID: 1, Data: []byte(`["x"]`)}, `42/admin,1["x"]`},
		{"default namespace omitted", Packet{Type: PacketDisconnect, Namespace: "/", ID: NoAck}, "41"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.p.Encode()); got != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePacket(t *testing.T) {
	p, err := DecodePacket([]byte(`3/admin,7["a",1]`))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if p.Type != PacketAck {
		t.Errorf("Type = %v, want ACK", p.Type)
	}
	if p.Namespace != "/admin" {
		t.Errorf("Namespace = %q, want /admin", p.Namespace)
	}
	if p.ID != 7 {
		t.Errorf("ID = %d, want 7", p.ID)
	}
	if string(p.Data) != `["a",1]` {
		t.Errorf("Data = %s", p.Data)
	}

	p, err = DecodePacket([]byte(`0`))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if p.Type != PacketConnect || p.ID != NoAck || p.Data != nil || p.Namespace != DefaultNamespace {
		t.Errorf("bare connect decoded as %+v", p)
	}
}

func TestDecodePacket_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrMalformedPacket},
		{"bad type", "9", ErrMalformedPacket},
		{"binary", `51-["x",{"_placeholder":true,"num":0}]`, ErrBinaryUnsupported},
		{"bad json", `2["x"`, ErrMalformedPacket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	name, args, err := DecodeEvent([]byte(`["message",{"status":"start"},2]`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if name != "message" {
		t.Errorf("name = %q", name)
	}
	if len(args) != 2 || string(args[0]) != `{"status":"start"}` || string(args[1]) != "2" {
		t.Errorf("args = %q", args)
	}

	if _, _, err := DecodeEvent([]byte(`[]`)); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("empty array err = %v", err)
	}
	if _, _, err := DecodeEvent([]byte(`[1]`)); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("numeric name err = %v", err)
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"wss://api.smartnpc.ai", "wss://api.smartnpc.ai/socket.io/?EIO=4&transport=websocket"},
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/socket.io/?EIO=4&transport=websocket"},
		{"https://example.com/custom", "wss://example.com/custom/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := EndpointURL(tt.in)
		if err != nil {
			t.Fatalf("EndpointURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("EndpointURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := EndpointURL("ftp://x"); err == nil {
		t.Error("EndpointURL(ftp) should fail")
	}
}
