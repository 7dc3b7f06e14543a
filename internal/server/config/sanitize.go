package config

import (
	"slices"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	sanitized.Auth.Tokens = make([]string, len(cfg.Auth.Tokens))
	for i, tok := range cfg.Auth.Tokens {
		sanitized.Auth.Tokens[i] = maskSecret(tok)
	}
	// Hashes are not secret but are still trimmed to keep logs short.
	sanitized.Auth.TokenHashes = slices.Clone(cfg.Auth.TokenHashes)
	for i, h := range sanitized.Auth.TokenHashes {
		if len(h) > 24 {
			sanitized.Auth.TokenHashes[i] = h[:24] + "..."
		}
	}
	sanitized.TLS.Domains = slices.Clone(cfg.TLS.Domains)

	if sanitized.Storage.EncryptionKey != "" {
		sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
