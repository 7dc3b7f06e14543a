package storage

import (
	"context"
	"fmt"

	"github.com/yndnr/ussal-go/pkg/crypto/adaptive"
)

// sealInfo is the HKDF info string for the store key.
const sealInfo = "ussal store v1"

// SealedStore wraps a KV and seals every value. The key of each record is
// the additional data of its ciphertext, so a value moved to another key
// fails to open.
type SealedStore struct {
	kv     KV
	sealer *adaptive.Sealer
}

// NewSealedStore derives the sealing key from secret and wraps kv.
func NewSealedStore(kv KV, secret []byte) (*SealedStore, error) {
	key, err := adaptive.DeriveKey(secret, nil, sealInfo)
	if err != nil {
		return nil, err
	}
	sealer, err := adaptive.NewSealer(key)
	if err != nil {
		return nil, err
	}
	return &SealedStore{kv: kv, sealer: sealer}, nil
}

// Get retrieves and opens a value.
func (s *SealedStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	sealed, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	value, err := s.sealer.Open(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return value, nil
}

// Set seals and stores a value.
func (s *SealedStore) Set(ctx context.Context, key, value []byte) error {
	sealed, err := s.sealer.Seal(value, key)
	if err != nil {
		return fmt.Errorf("seal %q: %w", key, err)
	}
	return s.kv.Set(ctx, key, sealed)
}

// Delete removes a key.
func (s *SealedStore) Delete(ctx context.Context, key []byte) error {
	return s.kv.Delete(ctx, key)
}

// Scan iterates over opened values. A record that fails to open stops the
// scan with an error.
func (s *SealedStore) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	var openErr error
	err := s.kv.Scan(ctx, prefix, func(key, sealed []byte) bool {
		value, err := s.sealer.Open(sealed, key)
		if err != nil {
			openErr = fmt.Errorf("open %q: %w", key, err)
			return false
		}
		return fn(key, value)
	})
	if err != nil {
		return err
	}
	return openErr
}

// Close closes the underlying KV.
func (s *SealedStore) Close() error {
	return s.kv.Close()
}
