// Package auth implements the per-operation authentication and
// confidentiality envelope.
//
// Every sensitive operation carries an Envelope: a fresh Message (timestamp,
// random nonce, claimed credential id) and a 16-byte HMAC-SHA512 code over
// its canonical little-endian encoding. Command bodies are additionally
// sealed with ChaCha20-Poly1305 under the same credential secret
// (EncryptedPayload).
//
// Decrypt always verifies the envelope before touching the ciphertext, and
// reports the two failure classes separately:
//
//	ErrInvalidAuthentication  signature mismatch or stale message
//	ErrDecryptionFailed       AEAD open failed (wrong key, corrupted tag)
package auth
