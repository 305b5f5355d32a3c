package auth

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

func TestEncryptRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("QPIGS"),
		bytes.Repeat([]byte{0x5A}, 4096),
	}

	for _, p := range payloads {
		key := secure.NewKey()
		id := uuid.New()

		enc, err := Encrypt(key, id, p)
		require.NoError(t, err)
		assert.Equal(t, id, enc.ID())

		out, err := Decrypt(key, enc)
		require.NoError(t, err)
		assert.Equal(t, len(p), len(out))
		assert.True(t, bytes.Equal(p, out))
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := secure.NewKey()
	id := uuid.New()

	a, err := Encrypt(key, id, []byte("same"))
	require.NoError(t, err)
	b, err := Encrypt(key, id, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.Authentication.Message.Nonce, b.Authentication.Message.Nonce)
}

func TestDecryptTamper(t *testing.T) {
	key := secure.NewKey()
	enc, err := Encrypt(key, uuid.New(), []byte("POP02"))
	require.NoError(t, err)

	t.Run("ciphertext byte", func(t *testing.T) {
		for i := range enc.Ciphertext {
			tampered := enc
			tampered.Ciphertext = bytes.Clone(enc.Ciphertext)
			tampered.Ciphertext[i] ^= 0x01

			_, err := Decrypt(key, tampered)
			assert.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", i)
		}
	})

	t.Run("signature byte", func(t *testing.T) {
		for i := range enc.Authentication.Signature {
			tampered := enc
			tampered.Authentication.Signature[i] ^= 0x01

			_, err := Decrypt(key, tampered)
			assert.ErrorIs(t, err, ErrInvalidAuthentication, "byte %d", i)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		tampered := enc
		tampered.Ciphertext = enc.Ciphertext[:4]
		_, err := Decrypt(key, tampered)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := Decrypt(secure.NewKey(), enc)
		assert.ErrorIs(t, err, ErrInvalidAuthentication)
	})
}

func TestDecryptRejectsSwappedEnvelope(t *testing.T) {
	key := secure.NewKey()
	id := uuid.New()

	a, err := Encrypt(key, id, []byte("first"))
	require.NoError(t, err)
	b, err := Encrypt(key, id, []byte("second"))
	require.NoError(t, err)

	// A valid envelope from another payload does not open this ciphertext.
	mixed := EncryptedPayload{Authentication: b.Authentication, Ciphertext: a.Ciphertext}
	_, err = Decrypt(key, mixed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
