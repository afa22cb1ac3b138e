package smartnpc

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Reserved event names.
const (
	EventAuth      = "auth"
	EventReady     = "ready"
	EventException = "exception"
)

// Service event names.
const (
	EventPlayer              = "player"
	EventCharacter           = "character"
	EventMessage             = "message"
	EventMessageHistory      = "messagehistory"
	EventClearMessageHistory = "clearmessagehistory"
	EventSpeech              = "speech"
)

// StreamStatus is the status field of a stream frame.
type StreamStatus string

const (
	StatusStart     StreamStatus = "start"
	StatusProgress  StreamStatus = "progress"
	StatusComplete  StreamStatus = "complete"
	StatusException StreamStatus = "exception"
)

// Frame is the header shared by every stream frame.
type Frame struct {
	Status StreamStatus `json:"status"`
	EmitID string       `json:"emitId,omitempty"`
}

// exceptionFrame is the payload of the "exception" event.
type exceptionFrame struct {
	EmitID  string `json:"emitId"`
	Message string `json:"message"`
}

// Language is a speech language code accepted by the service.
type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageSpanish   Language = "es"
	LanguageItalian   Language = "it"
	LanguageFrench    Language = "fr"
	LanguageGerman    Language = "de"
	LanguageArabic    Language = "ar"
	LanguageJapanese  Language = "ja"
	LanguageKorean    Language = "ko"
	LanguageDutch     Language = "nl"
	LanguageCantonese Language = "yue"
	LanguageMandarin  Language = "cmn"
)

// Languages lists every supported language.
var Languages = []Language{
	LanguageEnglish, LanguageSpanish, LanguageItalian, LanguageFrench,
	LanguageGerman, LanguageArabic, LanguageJapanese, LanguageKorean,
	LanguageDutch, LanguageCantonese, LanguageMandarin,
}

// PlayerInfo identifies the player talking to characters.
type PlayerInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// CharacterInfo is the reply of the "character" request.
type CharacterInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Background        string   `json:"background,omitempty"`
	Gender            string   `json:"gender,omitempty"`
	Language          string   `json:"language,omitempty"`
	PersonalityTraits []string `json:"personalityTraits,omitempty"`
	DialogueStyle     []string `json:"dialogueStyle,omitempty"`
	Actions           []string `json:"actions,omitempty"`
	Gestures          []string `json:"gestures,omitempty"`
	Expressions       []string `json:"expressions,omitempty"`
}

// RawBehavior is a behavior as sent on the wire.
type RawBehavior struct {
	Type string   `json:"type" msgpack:"type"`
	Args []string `json:"args" msgpack:"args"`
}

// MessageResponse is one frame of the "message" stream.
type MessageResponse struct {
	Frame
	Text      string       `json:"text,omitempty"`
	Voice     Audio        `json:"voice,omitempty"`
	Character string       `json:"character,omitempty"`
	Behavior  *RawBehavior `json:"behavior,omitempty"`
}

// HasVoice reports whether the frame carries an audio chunk.
func (r *MessageResponse) HasVoice() bool {
	return len(r.Voice) > 0
}

// HistoryMessage is one exchange in the "messagehistory" reply.
type HistoryMessage struct {
	Message   string        `json:"message" msgpack:"message"`
	Response  string        `json:"response" msgpack:"response"`
	Behaviors []RawBehavior `json:"behaviors,omitempty" msgpack:"behaviors,omitempty"`
}

// historyReply is the body of the "messagehistory" reply.
type historyReply struct {
	Data []HistoryMessage `json:"data"`
}

// Message is a player message and the character's response to it, as
// tracked by a Character.
type Message struct {
	// Message is what the player said.
	Message string

	// Response is the character's reply so far.
	Response string

	// Chunk is the text added by the latest progress update.
	Chunk string

	// Voice is the chunk that started playing with the latest update.
	Voice *VoiceChunk

	// Behaviors are the parsed behaviors of the reply.
	Behaviors []Behavior

	// Err is set when the service reported an exception for the message.
	Err error
}

// HistoryMessages converts history records to Messages, dropping invalid
// behaviors.
func HistoryMessages(records []HistoryMessage) ([]Message, []error) {
	var errs []error
	out := make([]Message, 0, len(records))
	for _, r := range records {
		bs, perrs := ParseBehaviors(r.Behaviors)
		errs = append(errs, perrs...)
		out = append(out, Message{Message: r.Message, Response: r.Response, Behaviors: bs})
	}
	return out, errs
}

// Record converts m to its history form.
func (m Message) Record() HistoryMessage {
	h := HistoryMessage{Message: m.Message, Response: m.Response}
	for _, b := range m.Behaviors {
		h.Behaviors = append(h.Behaviors, Raw(b))
	}
	return h
}

// Audio is encoded audio that serializes to and from standard base64 in JSON.
// null and "" decode to an empty value.
type Audio []byte

// MarshalJSON implements json.Marshaler.
func (a Audio) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(a) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Audio) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errors.New("smartnpc: unmarshal audio: empty data")
	}
	switch data[0] {
	case 'n':
		*a = nil
		return nil
	case '"':
		if len(data) < 2 || data[len(data)-1] != '"' {
			return errors.New("smartnpc: unmarshal audio: invalid string")
		}
		decoded, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))
		if err != nil {
			return fmt.Errorf("smartnpc: unmarshal audio: %w", err)
		}
		*a = decoded
		return nil
	default:
		return fmt.Errorf("smartnpc: invalid audio data: %.32s", data)
	}
}
