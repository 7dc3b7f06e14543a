package handler

import (
	"time"

	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
	"github.com/yndnr/ussal-go/internal/infra/tlscert"
	"github.com/yndnr/ussal-go/internal/server/jobsession"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Build         buildinfo.Info  `json:"build" yaml:"build"`
	Mode          string          `json:"mode" yaml:"mode"`
	StartedAt     time.Time       `json:"started_at" yaml:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds" yaml:"uptime_seconds"`
	Sessions      SessionStatus   `json:"sessions" yaml:"sessions"`
	Executor      *ExecutorStatus `json:"executor,omitempty" yaml:"executor,omitempty"`
	Certificate   *tlscert.Status `json:"certificate,omitempty" yaml:"certificate,omitempty"`
}

// SessionStatus summarises the live job sessions.
type SessionStatus struct {
	Active int               `json:"active" yaml:"active"`
	Max    int               `json:"max" yaml:"max"`
	Live   []jobsession.Info `json:"live,omitempty" yaml:"live,omitempty"`
}

// ExecutorStatus reports the local executor.
type ExecutorStatus struct {
	Running   int    `json:"running" yaml:"running"`
	Capacity  int    `json:"capacity" yaml:"capacity"`
	Available bool   `json:"available" yaml:"available"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// HealthResponse is the body of GET /health and GET /ready.
type HealthResponse struct {
	Status string   `json:"status"`
	Time   string   `json:"time"`
	Checks []string `json:"checks,omitempty"`
}
