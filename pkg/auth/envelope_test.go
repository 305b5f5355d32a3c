package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/secure"
)

func TestSignDeterministic(t *testing.T) {
	key := secure.NewKey()
	msg := NewMessage(uuid.New())

	assert.Equal(t, Sign(key, msg), Sign(key, msg))
	assert.True(t, Verify(key, msg, Sign(key, msg)))
}

func TestSignCoversEveryField(t *testing.T) {
	key := secure.NewKey()
	msg := NewMessage(uuid.New())
	sig := Sign(key, msg)

	tests := []struct {
		name   string
		mutate func(m *Message)
	}{
		{"timestamp", func(m *Message) { m.Timestamp++ }},
		{"nonce", func(m *Message) { m.Nonce[0] ^= 0x01 }},
		{"id", func(m *Message) { m.ID = uuid.New() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := msg
			tt.mutate(&m)
			assert.False(t, Verify(key, m, sig))
		})
	}
}

func TestVerifyWrongKey(t *testing.T) {
	env := NewEnvelope(secure.NewKey(), uuid.New())
	assert.False(t, env.Verify(secure.NewKey()))
}

func TestCanonicalLayout(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	msg := Message{Timestamp: 0x0102030405060708, ID: id}
	msg.Nonce[0] = 0xAA

	b := msg.canonical()
	require.Len(t, b, messageLength)
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b[:8])
	assert.Equal(t, byte(0xAA), b[8])
	assert.Equal(t, id[:], b[24:])
}

func TestFreshness(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := Freshness{Window: 30 * time.Second, Now: func() time.Time { return now }}
	id := uuid.New()

	assert.NoError(t, f.Check(NewMessageAt(id, now)))
	assert.NoError(t, f.Check(NewMessageAt(id, now.Add(-29*time.Second))))
	assert.NoError(t, f.Check(NewMessageAt(id, now.Add(29*time.Second))))

	err := f.Check(NewMessageAt(id, now.Add(-31*time.Second)))
	assert.ErrorIs(t, err, ErrStaleMessage)
	assert.ErrorIs(t, err, ErrInvalidAuthentication)

	assert.ErrorIs(t, f.Check(NewMessageAt(id, now.Add(time.Minute))), ErrInvalidAuthentication)

	disabled := Freshness{}
	assert.NoError(t, disabled.Check(NewMessageAt(id, now.Add(-time.Hour))))
}

func TestDeriveSetupKey(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	k1, err := DeriveSetupKey("123-45-678", a)
	require.NoError(t, err)
	k2, err := DeriveSetupKey("123-45-678", a)
	require.NoError(t, err)
	k3, err := DeriveSetupKey("123-45-678", b)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.False(t, k1.IsZero())

	_, err = DeriveSetupKey("", a)
	assert.ErrorIs(t, err, ErrEmptySetupCode)
}
