package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/auth"
)

// MessageID 0 is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// Request represents a link request from central to accessory.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, never 0
//	  2: operation,    // uint8: 1=Discover 2=Read 3=Write 4=Subscribe 5=Unsubscribe
//	  3: handle,       // uint16, absent for Discover
//	  4: value,        // bytes, Write only
//	  5: auth          // envelope, optional
//	}
type Request struct {
	MessageID uint32         `cbor:"1,keyasint"`
	Operation Operation      `cbor:"2,keyasint"`
	Handle    uint16         `cbor:"3,keyasint,omitempty"`
	Value     []byte         `cbor:"4,keyasint,omitempty"`
	Auth      *auth.Envelope `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation.NeedsHandle() && r.Handle == 0 {
		return fmt.Errorf("%s requires a handle", r.Operation)
	}
	return nil
}

// Response represents a link response from accessory to central.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  6: status,       // uint8: 0=success, or error code
//	  7: value,        // bytes, Read only
//	  8: services,     // Discover only
//	  9: message       // optional error detail
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"6,keyasint"`
	Value     []byte          `cbor:"7,keyasint,omitempty"`
	Services  []ServiceRecord `cbor:"8,keyasint,omitempty"`
	Message   string          `cbor:"9,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Notification carries a new value for a subscribed handle.
//
// CBOR encoding:
//
//	{
//	  1: 0,            // messageId 0 = notification
//	  3: handle,       // uint16
//	  4: value         // bytes
//	}
type Notification struct {
	Handle uint16 `cbor:"3,keyasint"`
	Value  []byte `cbor:"4,keyasint"`
}

// ServiceRecord describes a discovered service.
type ServiceRecord struct {
	Type       uuid.UUID         `cbor:"1,keyasint"`
	Primary    bool              `cbor:"2,keyasint,omitempty"`
	Handle     uint16            `cbor:"3,keyasint"`
	Attributes []AttributeRecord `cbor:"4,keyasint"`
}

// AttributeRecord describes a discovered attribute.
type AttributeRecord struct {
	Type       uuid.UUID `cbor:"1,keyasint"`
	Handle     uint16    `cbor:"2,keyasint"`
	Properties uint8     `cbor:"3,keyasint"`
	Format     uint8     `cbor:"4,keyasint"`
	Kind       uint8     `cbor:"5,keyasint,omitempty"`
}
