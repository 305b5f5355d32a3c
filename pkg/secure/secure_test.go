package secure

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFromBytesLength(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]byte) error
		size int
	}{
		{"key", func(b []byte) error { _, err := KeyFromBytes(b); return err }, KeyLength},
		{"nonce", func(b []byte) error { _, err := NonceFromBytes(b); return err }, NonceLength},
		{"signature", func(b []byte) error { _, err := SignatureFromBytes(b); return err }, SignatureLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(make([]byte, tt.size)); err != nil {
				t.Errorf("exact length: unexpected error %v", err)
			}
			for _, n := range []int{0, tt.size - 1, tt.size + 1} {
				if err := tt.fn(make([]byte, n)); !errors.Is(err, ErrInvalidLength) {
					t.Errorf("length %d: expected ErrInvalidLength, got %v", n, err)
				}
			}
		})
	}
}

func TestRandomValuesDiffer(t *testing.T) {
	if NewKey() == NewKey() {
		t.Error("two random keys are equal")
	}
	if NewNonce() == NewNonce() {
		t.Error("two random nonces are equal")
	}
}

func TestBinaryIsRaw(t *testing.T) {
	k := NewKey()
	b, err := k.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != KeyLength {
		t.Fatalf("expected %d raw bytes, got %d", KeyLength, len(b))
	}

	var back Key
	if err := back.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(k) {
		t.Error("binary round trip changed the key")
	}

	// Bytes returns a copy.
	b[0] ^= 0xFF
	if back != k {
		t.Error("mutating marshaled bytes changed the key")
	}
}

func TestTextForm(t *testing.T) {
	type doc struct {
		Secret Key   `json:"secret"`
		Nonce  Nonce `json:"nonce"`
	}
	in := doc{Secret: NewKey(), Nonce: NewNonce()}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Error("json round trip mismatch")
	}

	if _, err := ParseKey("AAAA"); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short key: expected ErrInvalidLength, got %v", err)
	}
	if _, err := ParseKey("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestKeyStringRedacted(t *testing.T) {
	if got := NewKey().String(); got != "Key(redacted)" {
		t.Errorf("String() = %q", got)
	}
}
