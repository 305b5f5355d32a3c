package auth

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

// messageLength is the size of the canonical message encoding:
// timestamp (8) | nonce (16) | id (16).
const messageLength = 8 + secure.NonceLength + 16

// Message is the signed message-of-the-moment. A new one is generated for
// every authenticated operation.
type Message struct {
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `cbor:"1,keyasint" json:"timestamp"`

	// Nonce is independently random per message.
	Nonce secure.Nonce `cbor:"2,keyasint" json:"nonce"`

	// ID is the credential the caller claims to act as.
	ID uuid.UUID `cbor:"3,keyasint" json:"id"`
}

// NewMessage returns a fresh message for the given credential id.
func NewMessage(id uuid.UUID) Message {
	return NewMessageAt(id, time.Now())
}

// NewMessageAt returns a message stamped with t and a random nonce.
func NewMessageAt(id uuid.UUID, t time.Time) Message {
	return Message{
		Timestamp: t.UnixMilli(),
		Nonce:     secure.NewNonce(),
		ID:        id,
	}
}

// Time returns the message timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// canonical returns the fixed-field little-endian encoding that is signed.
func (m Message) canonical() []byte {
	b := make([]byte, messageLength)
	binary.LittleEndian.PutUint64(b[0:8], uint64(m.Timestamp))
	copy(b[8:24], m.Nonce[:])
	copy(b[24:40], m.ID[:])
	return b
}
