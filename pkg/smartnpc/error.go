package smartnpc

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotReady is returned when a request is made before the service has
	// sent "ready".
	ErrNotReady = errors.New("smartnpc: connection not ready")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("smartnpc: closed")

	// ErrTimeout is delivered through OnException when a request gets no
	// reply within its timeout.
	ErrTimeout = errors.New("smartnpc: request timed out")

	// ErrMissingCredentials is returned when KeyID or PublicKey is empty.
	ErrMissingCredentials = errors.New("smartnpc: key id and public key are required")

	// ErrMessageInProgress is returned by Character.SendMessage while a
	// previous message is still streaming.
	ErrMessageInProgress = errors.New("smartnpc: a message is already in progress")

	// ErrInvalidBehavior is returned by ParseBehavior.
	ErrInvalidBehavior = errors.New("smartnpc: invalid behavior")

	// ErrInvalidPayload is returned when request data does not encode to a
	// JSON object.
	ErrInvalidPayload = errors.New("smartnpc: request data must encode to a JSON object")
)

// Error is an exception reported by the service for one request.
type Error struct {
	// Event is the request event name.
	Event string `json:"event,omitzero"`

	// EmitID is the correlation id of the failed request.
	EmitID string `json:"emitId,omitzero"`

	// Message is the service's description.
	Message string `json:"message,omitzero"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("smartnpc: %s: %s", e.Event, e.Message)
	}
	return fmt.Sprintf("smartnpc: %s", e.Message)
}
