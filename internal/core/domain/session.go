// Package domain defines the core domain models for ussal.
package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix for job session IDs.
// Format: ussj-{ulid_lowercase}, 31 characters total.
const SessionIDPrefix = "ussj-"

// SessionState is a job session lifecycle state.
type SessionState int

// Session states. A session moves strictly forward; Closed is final.
const (
	SessionConnected SessionState = iota
	SessionAuthenticating
	SessionAuthenticated
	SessionJobReceived
	SessionExecuting
	SessionCompleted
	SessionFailed
	SessionClosed
)

var sessionStateNames = [...]string{
	SessionConnected:      "connected",
	SessionAuthenticating: "authenticating",
	SessionAuthenticated:  "authenticated",
	SessionJobReceived:    "job_received",
	SessionExecuting:      "executing",
	SessionCompleted:      "completed",
	SessionFailed:         "failed",
	SessionClosed:         "closed",
}

// String returns the state name.
func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return sessionStateNames[s]
}

// sessionTransitions lists the legal successors of each state.
// Every non-final state may fail, and every state may close.
var sessionTransitions = map[SessionState][]SessionState{
	SessionConnected:      {SessionAuthenticating, SessionFailed, SessionClosed},
	SessionAuthenticating: {SessionAuthenticated, SessionFailed, SessionClosed},
	SessionAuthenticated:  {SessionJobReceived, SessionFailed, SessionClosed},
	SessionJobReceived:    {SessionExecuting, SessionFailed, SessionClosed},
	SessionExecuting:      {SessionCompleted, SessionFailed, SessionClosed},
	SessionCompleted:      {SessionClosed},
	SessionFailed:         {SessionClosed},
	SessionClosed:         nil,
}

// CanTransition reports whether moving from s to next is legal.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or ErrInvalidTransition.
func (s SessionState) Transition(next SessionState) (SessionState, error) {
	if !s.CanTransition(next) {
		return s, ErrInvalidTransition.WithDetails(fmt.Sprintf("%s -> %s", s, next))
	}
	return next, nil
}

// IsTerminal reports whether the session has produced its outcome.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionClosed
}

// IsAuthenticated reports whether the session has passed authentication.
func (s SessionState) IsAuthenticated() bool {
	switch s {
	case SessionAuthenticated, SessionJobReceived, SessionExecuting, SessionCompleted:
		return true
	}
	return false
}

// GenerateSessionID generates a new session ID using ULID.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID checks if a string is a valid session ID format.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}

	// ussj- (5) + ULID (26) = 31 characters
	if len(id) != 31 {
		return false
	}

	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}
