package adaptive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealVersion byte = 1

// Header tags for sealed values.
const (
	tagAESGCM   byte = 1
	tagChaCha20 byte = 2
)

// ErrMalformed is returned by Open for values that were not produced by Seal.
var ErrMalformed = errors.New("adaptive: malformed sealed value")

// DeriveKey derives a KeySize key from an operator secret with HKDF-SHA256.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("adaptive: empty secret")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

// Sealer seals values with the preferred cipher and opens values sealed with
// either cipher under the same key. Safe for concurrent use.
type Sealer struct {
	local   byte
	ciphers map[byte]Cipher
}

// NewSealer creates a Sealer from a KeySize key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: sealer key must be %d bytes, got %d", KeySize, len(key))
	}
	gcm, err := NewWithType(key, CipherAESGCM)
	if err != nil {
		return nil, err
	}
	chacha, err := NewWithType(key, CipherChaCha20)
	if err != nil {
		return nil, err
	}
	s := &Sealer{
		local:   tagAESGCM,
		ciphers: map[byte]Cipher{tagAESGCM: gcm, tagChaCha20: chacha},
	}
	if Preferred() == CipherChaCha20 {
		s.local = tagChaCha20
	}
	return s, nil
}

// Type reports the cipher used for new values.
func (s *Sealer) Type() CipherType {
	return s.ciphers[s.local].Type()
}

// Seal encrypts plaintext bound to additionalData.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	ct, err := s.ciphers[s.local].Encrypt(plaintext, additionalData)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+len(ct))
	out = append(out, sealVersion, s.local)
	return append(out, ct...), nil
}

// Open reverses Seal. additionalData must match the value used to seal.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 2 || sealed[0] != sealVersion {
		return nil, ErrMalformed
	}
	c, ok := s.ciphers[sealed[1]]
	if !ok {
		return nil, ErrMalformed
	}
	plaintext, err := c.Decrypt(sealed[2:], additionalData)
	if err != nil {
		return nil, fmt.Errorf("adaptive: open: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether v carries a sealed-value header.
func IsSealed(v []byte) bool {
	return len(v) >= 2 && v[0] == sealVersion && (v[1] == tagAESGCM || v[1] == tagChaCha20)
}
