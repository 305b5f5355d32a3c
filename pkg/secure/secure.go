// Package secure provides fixed-length containers for secret key material,
// nonces and signature codes.
//
// Each kind has an exact byte length. Construction from a buffer of any other
// length fails with ErrInvalidLength. The binary form is the raw byte sequence
// with no length prefix; the text form (used by JSON and YAML) is standard
// base64.
package secure

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Lengths of the fixed-size values.
const (
	KeyLength       = 32
	NonceLength     = 16
	SignatureLength = 16
)

// ErrInvalidLength is returned when a buffer does not match the declared length.
var ErrInvalidLength = errors.New("invalid length")

// Key is 32 bytes of symmetric secret material.
type Key [KeyLength]byte

// Nonce is a 16-byte random value.
type Nonce [NonceLength]byte

// Signature is a 16-byte authentication code.
type Signature [SignatureLength]byte

// NewKey returns a random key.
func NewKey() Key {
	var k Key
	mustRead(k[:])
	return k
}

// NewNonce returns a random nonce.
func NewNonce() Nonce {
	var n Nonce
	mustRead(n[:])
	return n
}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if err := fill(k[:], b, "key"); err != nil {
		return Key{}, err
	}
	return k, nil
}

// NonceFromBytes copies b into a Nonce.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if err := fill(n[:], b, "nonce"); err != nil {
		return Nonce{}, err
	}
	return n, nil
}

// SignatureFromBytes copies b into a Signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if err := fill(s[:], b, "signature"); err != nil {
		return Signature{}, err
	}
	return s, nil
}

// ParseKey decodes a base64 key.
func ParseKey(s string) (Key, error) {
	var k Key
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Bytes returns a copy of the key bytes.
func (k Key) Bytes() []byte { return bytes.Clone(k[:]) }

// Equal reports whether both keys hold the same bytes.
func (k Key) Equal(o Key) bool { return k == o }

// IsZero reports whether the key is all zeros.
func (k Key) IsZero() bool { return k == Key{} }

// String returns a redacted form so keys never end up in logs.
func (k Key) String() string { return "Key(redacted)" }

// MarshalBinary implements encoding.BinaryMarshaler.
func (k Key) MarshalBinary() ([]byte, error) { return k.Bytes(), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (k *Key) UnmarshalBinary(b []byte) error { return fill(k[:], b, "key") }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return encodeText(k[:]), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error { return decodeText(k[:], b, "key") }

// Bytes returns a copy of the nonce bytes.
func (n Nonce) Bytes() []byte { return bytes.Clone(n[:]) }

// Equal reports whether both nonces hold the same bytes.
func (n Nonce) Equal(o Nonce) bool { return n == o }

// String returns the hex form.
func (n Nonce) String() string { return fmt.Sprintf("%x", n[:]) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (n Nonce) MarshalBinary() ([]byte, error) { return n.Bytes(), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (n *Nonce) UnmarshalBinary(b []byte) error { return fill(n[:], b, "nonce") }

// MarshalText implements encoding.TextMarshaler.
func (n Nonce) MarshalText() ([]byte, error) { return encodeText(n[:]), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Nonce) UnmarshalText(b []byte) error { return decodeText(n[:], b, "nonce") }

// Bytes returns a copy of the signature bytes.
func (s Signature) Bytes() []byte { return bytes.Clone(s[:]) }

// Equal reports whether both signatures hold the same bytes.
// Use auth.Verify for authentication decisions; this is not constant time.
func (s Signature) Equal(o Signature) bool { return s == o }

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Signature) MarshalBinary() ([]byte, error) { return s.Bytes(), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Signature) UnmarshalBinary(b []byte) error { return fill(s[:], b, "signature") }

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) { return encodeText(s[:]), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(b []byte) error { return decodeText(s[:], b, "signature") }

func fill(dst, src []byte, kind string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidLength, kind, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func encodeText(b []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out
}

func decodeText(dst, text []byte, kind string) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(raw, text)
	if err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return fill(dst, raw[:n], kind)
}

func mustRead(b []byte) {
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("secure: random source failed: %v", err))
	}
}
