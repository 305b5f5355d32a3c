package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

// ErrEmptySetupCode is returned when deriving from an empty code.
var ErrEmptySetupCode = errors.New("empty setup code")

const setupKeyInfo = "solarlink setup key"

// DeriveSetupKey turns a printed setup code into the accessory's setup
// secret. The accessory id is the HKDF salt, so the same code yields
// different keys on different accessories.
func DeriveSetupKey(code string, accessoryID uuid.UUID) (secure.Key, error) {
	if code == "" {
		return secure.Key{}, ErrEmptySetupCode
	}

	r := hkdf.New(sha256.New, []byte(code), accessoryID[:], []byte(setupKeyInfo))

	var key secure.Key
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return secure.Key{}, fmt.Errorf("failed to derive setup key: %w", err)
	}
	return key, nil
}
