// Package token provides auth token generation and verification utilities.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// AuthTokenPrefix marks values issued by GenerateAuthToken. The logger masks
// any string value carrying it.
const AuthTokenPrefix = "ussal_"

// Generate generates a cryptographically secure random token.
//
// The returned token is Base64 RawURL encoded for safe URL transmission.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates a token with the specified byte length.
func GenerateWithLength(length int) (string, error) {
	bytes, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateAuthToken generates a prefixed client auth token.
func GenerateAuthToken() (string, error) {
	body, err := Generate()
	if err != nil {
		return "", err
	}
	return AuthTokenPrefix + body, nil
}

// IsAuthToken reports whether s has the auth token shape.
func IsAuthToken(s string) bool {
	return strings.HasPrefix(s, AuthTokenPrefix) && len(s) > len(AuthTokenPrefix)
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}
