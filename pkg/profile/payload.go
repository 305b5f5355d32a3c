package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// ErrInvalidPayload is returned when a decrypted request cannot be decoded.
var ErrInvalidPayload = errors.New("invalid request payload")

// SetupRequest is the plaintext of an encrypted setup write, sealed with
// the accessory's setup secret as credential.SetupID.
type SetupRequest struct {
	ID     uuid.UUID  `cbor:"1,keyasint"`
	Name   string     `cbor:"2,keyasint"`
	Secret secure.Key `cbor:"3,keyasint"`
}

// InviteRequest is the plaintext of an encrypted invite write, sealed with
// the caller's credential secret.
type InviteRequest struct {
	ID         uuid.UUID             `cbor:"1,keyasint"`
	Name       string                `cbor:"2,keyasint"`
	Permission credential.Permission `cbor:"3,keyasint"`
	Secret     secure.Key            `cbor:"4,keyasint"`
	ExpiresAt  time.Time             `cbor:"5,keyasint"`
}

// ConfirmRequest is the plaintext of an encrypted confirm write, sealed with
// the invitation's pending secret under the invitation id.
type ConfirmRequest struct {
	Secret secure.Key `cbor:"1,keyasint"`
}

// RevokeRequest is the plaintext of an encrypted revoke write.
type RevokeRequest struct {
	ID uuid.UUID `cbor:"1,keyasint"`
}

// MarshalRequest encodes a request payload.
func MarshalRequest(v any) ([]byte, error) {
	return wire.Marshal(v)
}

// UnmarshalRequest decodes a request payload into v.
func UnmarshalRequest(data []byte, v any) error {
	if err := wire.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// RosterValue projects the roster into the value of the credentials list
// attribute. Each item is CBOR encoded.
func RosterValue(items []credential.Item) (attribute.Value, error) {
	values := make([]attribute.Value, 0, len(items))
	for _, it := range items {
		data, err := wire.Marshal(it)
		if err != nil {
			return attribute.Value{}, fmt.Errorf("encode roster item %s: %w", it.ID(), err)
		}
		values = append(values, attribute.Data(data))
	}
	return attribute.List(attribute.FormatData, values...)
}

// ParseRoster decodes the wire value of the credentials list attribute.
func ParseRoster(data []byte) ([]credential.Item, error) {
	list, err := attribute.DecodeList(attribute.FormatData, data)
	if err != nil {
		return nil, err
	}
	values, _ := list.Items()

	items := make([]credential.Item, 0, len(values))
	for _, v := range values {
		raw, _ := v.AsData()
		var it credential.Item
		if err := wire.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("%w: roster item: %v", ErrInvalidPayload, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// ChunkSize is the default maximum size of one command response chunk.
const ChunkSize = 180

// Chunks splits a response into notification-sized pieces. The final chunk
// is shorter than size, or empty when len(data) is a multiple of size, so
// the receiver can tell where the response ends.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = ChunkSize
	}
	out := make([][]byte, 0, len(data)/size+1)
	for len(data) >= size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}

// Assembler collects command response chunks back into a response.
type Assembler struct {
	size int
	buf  []byte
}

// NewAssembler returns an Assembler for chunks of at most size bytes.
func NewAssembler(size int) *Assembler {
	if size <= 0 {
		size = ChunkSize
	}
	return &Assembler{size: size}
}

// Add appends a chunk and returns the full response once the final chunk
// arrived.
func (a *Assembler) Add(chunk []byte) ([]byte, bool) {
	a.buf = append(a.buf, chunk...)
	if len(chunk) == a.size {
		return nil, false
	}
	out := a.buf
	a.buf = nil
	return out, true
}
