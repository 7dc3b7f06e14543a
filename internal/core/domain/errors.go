// Package domain defines the core domain models for ussal.
package domain

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable failure reason carried on the wire.
type Reason string

// Wire reasons.
const (
	ReasonNone               Reason = ""
	ReasonInvalidToken       Reason = "invalid_token"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonProtocolViolation  Reason = "protocol_violation"
	ReasonInvalidJob         Reason = "invalid_job"
	ReasonSpawnFailed        Reason = "spawn_failed"
	ReasonPrivilegeUnavail   Reason = "privilege_unavailable"
	ReasonCapacity           Reason = "capacity"
	ReasonExitStatus         Reason = "exit_status"
	ReasonTimeout            Reason = "timeout"
	ReasonCancelled          Reason = "cancelled"
	ReasonOutputLimit        Reason = "output_limit"
	ReasonServiceUnavailable Reason = "service_unavailable"
)

// DomainError represents a business domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "USL-AUTH-4011")
	Reason  Reason // Wire reason, empty if the error never reaches a client
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

func newReasonError(code string, reason Reason, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Reason:  reason,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Reason:  e.Reason,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Reason:  e.Reason,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetReason extracts the wire reason from err, falling back to fallback
// when err carries none.
func GetReason(err error, fallback Reason) Reason {
	var de *DomainError
	if errors.As(err, &de) && de.Reason != ReasonNone {
		return de.Reason
	}
	return fallback
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrTokenMissing indicates no auth token was presented.
	ErrTokenMissing = newReasonError("USL-AUTH-4010", ReasonInvalidToken, "auth token not provided")

	// ErrTokenInvalid indicates the token is not in the trusted set.
	ErrTokenInvalid = newReasonError("USL-AUTH-4011", ReasonInvalidToken, "invalid auth token")

	// ErrAuthRateLimited indicates too many failed attempts from one client.
	ErrAuthRateLimited = newReasonError("USL-AUTH-4290", ReasonRateLimited, "too many failed authentication attempts")
)

// ============================================================================
// Session Protocol Errors (PROTO, JOB)
// ============================================================================

var (
	// ErrProtocolViolation indicates a message arrived out of order or was malformed.
	ErrProtocolViolation = newReasonError("USL-PROTO-4000", ReasonProtocolViolation, "protocol violation")

	// ErrInvalidJob indicates the submitted JobSpec failed validation.
	ErrInvalidJob = newReasonError("USL-JOB-4001", ReasonInvalidJob, "invalid job spec")

	// ErrInvalidTransition indicates an illegal session state transition.
	ErrInvalidTransition = newReasonError("USL-PROTO-4001", ReasonProtocolViolation, "invalid session state transition")
)

// ============================================================================
// Executor Errors (EXEC)
// ============================================================================

var (
	// ErrSpawnFailed indicates the workload process could not be started.
	ErrSpawnFailed = newReasonError("USL-EXEC-5001", ReasonSpawnFailed, "failed to spawn workload")

	// ErrPrivilegeUnavailable indicates the delegation to the sandbox identity is not usable.
	ErrPrivilegeUnavailable = newReasonError("USL-EXEC-5031", ReasonPrivilegeUnavail, "privilege delegation unavailable")

	// ErrCapacity indicates the executor is at its concurrency limit.
	ErrCapacity = newReasonError("USL-EXEC-5032", ReasonCapacity, "executor at capacity")

	// ErrTimeout indicates the workload exceeded its time limit.
	ErrTimeout = newReasonError("USL-EXEC-4080", ReasonTimeout, "workload timed out")

	// ErrCancelled indicates the workload was killed because its session closed.
	ErrCancelled = newReasonError("USL-EXEC-4990", ReasonCancelled, "workload cancelled")

	// ErrOutputLimit indicates the workload produced more output than allowed.
	ErrOutputLimit = newReasonError("USL-EXEC-4130", ReasonOutputLimit, "workload output limit exceeded")

	// ErrScopeViolation indicates a spawn was requested for an identity outside the delegation rule.
	ErrScopeViolation = newReasonError("USL-EXEC-4030", ReasonPrivilegeUnavail, "target identity outside delegation scope")
)

// ============================================================================
// Certificate and System Errors (CERT, SYS)
// ============================================================================

var (
	// ErrCertIssuance indicates certificate issuance or renewal failed.
	ErrCertIssuance = NewDomainError("USL-CERT-5000", "certificate issuance failed")

	// ErrNoCertificate indicates no certificate has been published yet.
	ErrNoCertificate = NewDomainError("USL-CERT-5030", "no certificate available")

	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("USL-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("USL-SYS-5001", "storage error")

	// ErrTooManySessions indicates the concurrent session cap is reached.
	ErrTooManySessions = newReasonError("USL-SYS-5030", ReasonServiceUnavailable, "too many sessions")

	// ErrNotReady indicates a dependency of job execution is not ready.
	ErrNotReady = newReasonError("USL-SYS-5031", ReasonServiceUnavailable, "service not ready")

	// ErrTooManyRequests indicates the per-client request rate was exceeded.
	ErrTooManyRequests = newReasonError("USL-SYS-4290", ReasonRateLimited, "too many requests")
)
