// Package domain defines the core domain models for ussal.
package domain

import "log/slog"

// AuthToken is a client credential. It never appears in logs or error text.
type AuthToken string

const redactedToken = "[REDACTED]"

// String implements fmt.Stringer without revealing the token.
func (t AuthToken) String() string {
	if t == "" {
		return ""
	}
	return redactedToken
}

// LogValue implements slog.LogValuer.
func (t AuthToken) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

// Reveal returns the raw token for comparison.
func (t AuthToken) Reveal() string {
	return string(t)
}

// IsEmpty reports whether no token was presented.
func (t AuthToken) IsEmpty() bool {
	return t == ""
}

// AuthDecision is the outcome of validating an AuthToken.
type AuthDecision int

// Authentication outcomes.
const (
	AuthRejected AuthDecision = iota
	AuthAccepted
)

// String returns the decision name.
func (d AuthDecision) String() string {
	if d == AuthAccepted {
		return "accepted"
	}
	return "rejected"
}
