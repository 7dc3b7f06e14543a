// Package adaptive provides authenticated encryption for values ussal keeps
// at rest, such as cached certificate private keys and the ACME account key.
//
// The cipher is chosen from the host's hardware capabilities:
//
//   - AES-256-GCM when the CPU has AES instructions
//   - ChaCha20-Poly1305 otherwise
//
// Sealed values carry a small header naming the cipher, so a store written
// on one host opens on any other. Keys are derived from an operator secret
// with HKDF-SHA256.
//
// Usage:
//
//	key, err := adaptive.DeriveKey(secret, nil, "ussal store v1")
//	s, err := adaptive.NewSealer(key)
//	sealed, err := s.Seal(plaintext, []byte("cert/example.com"))
//	plaintext, err := s.Open(sealed, []byte("cert/example.com"))
package adaptive
