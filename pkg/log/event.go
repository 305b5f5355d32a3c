package log

import (
	"time"

	"github.com/solarlink/solarlink-go/pkg/wire"
)

// Event is one protocol log record.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the link connection.
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is accessory or central.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// CredentialID is the authenticated caller, once known.
	CredentialID string `cbor:"8,keyasint,omitempty"`

	// Exactly one of the payloads is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Auth        *AuthEvent        `cbor:"13,keyasint,omitempty"`
	Transition  *TransitionEvent  `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the decoded link message layer.
	LayerWire Layer = 1
	// LayerAccessory is the coordinator: authentication and credentials.
	LayerAccessory Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerAccessory:
		return "ACCESSORY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage    Category = 0
	CategoryState      Category = 1
	CategoryAuth       Category = 2
	CategoryCredential Category = 3
	CategoryError      Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryAuth:
		return "AUTH"
	case CategoryCredential:
		return "CREDENTIAL"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryMessage; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Role is the local side of the link.
type Role uint8

const (
	RoleAccessory Role = 0
	RoleCentral   Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleAccessory:
		return "ACCESSORY"
	case RoleCentral:
		return "CENTRAL"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw link frame.
type FrameEvent struct {
	// Size is the frame size in bytes, including any length prefix.
	Size int `cbor:"1,keyasint"`

	// Data is the frame, truncated to MaxFrameData bytes.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameData bounds the frame bytes kept in a FrameEvent.
const MaxFrameData = 256

// NewFrameEvent captures data, truncating it to MaxFrameData.
func NewFrameEvent(size int, data []byte) *FrameEvent {
	f := &FrameEvent{Size: size}
	if len(data) > MaxFrameData {
		f.Data = append([]byte(nil), data[:MaxFrameData]...)
		f.Truncated = true
	} else {
		f.Data = append([]byte(nil), data...)
	}
	return f
}

// MessageEvent captures a decoded link message. Values are recorded by
// size only.
type MessageEvent struct {
	Type      wire.MessageType `cbor:"1,keyasint"`
	MessageID uint32           `cbor:"2,keyasint"`
	Operation *wire.Operation  `cbor:"3,keyasint,omitempty"`
	Handle    *uint16          `cbor:"4,keyasint,omitempty"`
	Status    *wire.Status     `cbor:"5,keyasint,omitempty"`

	// ValueSize is the length of the carried value.
	ValueSize int `cbor:"6,keyasint,omitempty"`

	// Authenticated is set when the request carried an envelope.
	Authenticated bool `cbor:"7,keyasint,omitempty"`

	// ProcessingTime from request receipt to response (responses only).
	ProcessingTime *time.Duration `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent captures connection and session lifecycle.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
	StateEntityChallenge  StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityChallenge:
		return "CHALLENGE"
	default:
		return "UNKNOWN"
	}
}

// AuthOutcome is the result of checking an envelope.
type AuthOutcome uint8

const (
	AuthAccepted AuthOutcome = 0
	AuthRejected AuthOutcome = 1
	AuthStale    AuthOutcome = 2
	// AuthDecryptFailed means the envelope verified but the payload did not open.
	AuthDecryptFailed AuthOutcome = 3
	// AuthDenied means a requiresAuth read without an authenticated session.
	AuthDenied AuthOutcome = 4
)

// String returns the outcome name.
func (o AuthOutcome) String() string {
	switch o {
	case AuthAccepted:
		return "ACCEPTED"
	case AuthRejected:
		return "REJECTED"
	case AuthStale:
		return "STALE"
	case AuthDecryptFailed:
		return "DECRYPT_FAILED"
	case AuthDenied:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

// AuthEvent records an authentication decision for one access.
type AuthEvent struct {
	Handle  uint16      `cbor:"1,keyasint"`
	Write   bool        `cbor:"2,keyasint,omitempty"`
	Outcome AuthOutcome `cbor:"3,keyasint"`

	// ClaimedID is the identity the envelope claimed.
	ClaimedID string `cbor:"4,keyasint,omitempty"`
}

// TransitionKind names a credential store transition.
type TransitionKind uint8

const (
	TransitionSetup   TransitionKind = 0
	TransitionInvite  TransitionKind = 1
	TransitionConfirm TransitionKind = 2
	TransitionRevoke  TransitionKind = 3
	TransitionPurge   TransitionKind = 4
)

// String returns the transition name.
func (k TransitionKind) String() string {
	switch k {
	case TransitionSetup:
		return "SETUP"
	case TransitionInvite:
		return "INVITE"
	case TransitionConfirm:
		return "CONFIRM"
	case TransitionRevoke:
		return "REVOKE"
	case TransitionPurge:
		return "PURGE"
	default:
		return "UNKNOWN"
	}
}

// TransitionEvent records a credential store transition attempt.
type TransitionEvent struct {
	Kind TransitionKind `cbor:"1,keyasint"`

	// Subject is the credential or invitation id the transition targets.
	Subject    string `cbor:"2,keyasint,omitempty"`
	Name       string `cbor:"3,keyasint,omitempty"`
	Permission string `cbor:"4,keyasint,omitempty"`

	// Error is empty when the transition succeeded.
	Error string `cbor:"5,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the link status code, if one was sent.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes the operation that failed.
	Context string `cbor:"4,keyasint,omitempty"`
}
