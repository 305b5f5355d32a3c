package auth

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

// EncryptedPayload is the confidentiality envelope for command bodies.
// Ciphertext is nonce | sealed data | tag.
type EncryptedPayload struct {
	Authentication Envelope `cbor:"1,keyasint" json:"authentication"`
	Ciphertext     []byte   `cbor:"2,keyasint" json:"ciphertext"`
}

// ID returns the credential id the payload claims.
func (p EncryptedPayload) ID() uuid.UUID {
	return p.Authentication.ID()
}

// Encrypt seals plaintext under secret and signs a fresh message for id.
func Encrypt(secret secure.Key, id uuid.UUID, plaintext []byte) (EncryptedPayload, error) {
	return EncryptWithMessage(secret, NewMessage(id), plaintext)
}

// EncryptWithMessage is Encrypt with a caller-supplied message.
func EncryptWithMessage(secret secure.Key, msg Message, plaintext []byte) (EncryptedPayload, error) {
	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedPayload{}, fmt.Errorf("generate nonce: %w", err)
	}

	env := SignMessage(secret, msg)
	sealed := aead.Seal(nonce, nonce, plaintext, msg.canonical())

	return EncryptedPayload{
		Authentication: env,
		Ciphertext:     sealed,
	}, nil
}

// Decrypt verifies the payload's envelope and then opens the ciphertext.
// The cipher is never touched for an unauthenticated payload.
func Decrypt(secret secure.Key, p EncryptedPayload) ([]byte, error) {
	if !p.Authentication.Verify(secret) {
		return nil, ErrInvalidAuthentication
	}

	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(p.Ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, sealed := p.Ciphertext[:aead.NonceSize()], p.Ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, p.Authentication.Message.canonical())
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
