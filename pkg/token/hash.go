// Package token provides auth token generation and verification utilities.
package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPrefix marks a hex SHA-256 digest in configuration.
const HashPrefix = "sha256:"

// Digest is a SHA-256 digest of a token.
type Digest [sha256.Size]byte

// Sum returns the digest of a token.
func Sum(token string) Digest {
	return sha256.Sum256([]byte(token))
}

// Hash computes the SHA-256 hash of a token.
//
// The returned hash is hex encoded for storage.
func Hash(token string) string {
	h := Sum(token)
	return hex.EncodeToString(h[:])
}

// ParseDigest parses "sha256:<hex>" (prefix optional) into a Digest.
func ParseDigest(s string) (Digest, bool) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(s, HashPrefix))
	if err != nil || len(raw) != len(d) {
		return d, false
	}
	copy(d[:], raw)
	return d, true
}

// Verify verifies a token against an expected hex hash.
//
// Uses constant-time comparison to prevent timing attacks.
func Verify(token, expectedHash string) bool {
	actualHash := Hash(token)
	return subtle.ConstantTimeCompare([]byte(actualHash), []byte(expectedHash)) == 1
}

// MatchAny reports whether the digest of token equals any entry of set.
//
// Every entry is compared, even after a match, so the running time depends
// only on len(set).
func MatchAny(token string, set []Digest) bool {
	sum := Sum(token)
	found := 0
	for i := range set {
		found |= subtle.ConstantTimeCompare(sum[:], set[i][:])
	}
	return found == 1
}
