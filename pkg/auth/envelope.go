package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

// Authentication errors.
var (
	ErrInvalidAuthentication = errors.New("invalid authentication")
	ErrDecryptionFailed      = errors.New("decryption failed")

	// ErrStaleMessage wraps ErrInvalidAuthentication.
	ErrStaleMessage = fmt.Errorf("%w: message outside freshness window", ErrInvalidAuthentication)
)

// DefaultFreshnessWindow is the accepted clock skew for message timestamps.
const DefaultFreshnessWindow = 30 * time.Second

// Sign computes the 16-byte authentication code for msg under secret.
func Sign(secret secure.Key, msg Message) secure.Signature {
	mac := hmac.New(sha512.New, secret[:])
	mac.Write(msg.canonical())
	sum := mac.Sum(nil)

	var sig secure.Signature
	copy(sig[:], sum[:secure.SignatureLength])
	return sig
}

// Verify recomputes the code for msg and compares it in constant time.
func Verify(secret secure.Key, msg Message, sig secure.Signature) bool {
	expected := Sign(secret, msg)
	return hmac.Equal(expected[:], sig[:])
}

// Envelope is a credential's signed claim of identity for one operation.
type Envelope struct {
	Message   Message          `cbor:"1,keyasint" json:"message"`
	Signature secure.Signature `cbor:"2,keyasint" json:"signature"`
}

// NewEnvelope signs a fresh message for id.
func NewEnvelope(secret secure.Key, id uuid.UUID) Envelope {
	return SignMessage(secret, NewMessage(id))
}

// SignMessage wraps msg with its signature.
func SignMessage(secret secure.Key, msg Message) Envelope {
	return Envelope{Message: msg, Signature: Sign(secret, msg)}
}

// ID returns the credential id the envelope claims.
func (e Envelope) ID() uuid.UUID {
	return e.Message.ID
}

// Verify reports whether the envelope was signed with secret.
func (e Envelope) Verify(secret secure.Key) bool {
	return Verify(secret, e.Message, e.Signature)
}

// Freshness bounds the accepted age of message timestamps.
// A zero Window disables the check.
type Freshness struct {
	Window time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Check returns ErrStaleMessage when msg was created outside the window
// around the current time.
func (f Freshness) Check(msg Message) error {
	if f.Window <= 0 {
		return nil
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	skew := now().Sub(msg.Time())
	if skew < 0 {
		skew = -skew
	}
	if skew > f.Window {
		return fmt.Errorf("%w (skew %s)", ErrStaleMessage, skew.Truncate(time.Millisecond))
	}
	return nil
}
