package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

// MaxClientMessageSize bounds a single client frame.
const MaxClientMessageSize = 1 << 20

// MessageType selects the payload of a Message.
type MessageType string

// Message types.
const (
	TypeAuthenticate MessageType = "authenticate"
	TypeSubmitJob    MessageType = "submit_job"
	TypeOutputChunk  MessageType = "output_chunk"
	TypeJobResult    MessageType = "job_result"
	TypeRejected     MessageType = "rejected"
)

// Stream identifies a workload output stream.
type Stream string

// Output streams.
const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Message is the envelope of every frame. Only the fields of its Type are set.
type Message struct {
	Type MessageType `json:"type"`

	// authenticate
	Token string `json:"token,omitempty"`

	// submit_job
	Spec *domain.JobSpec `json:"spec,omitempty"`

	// output_chunk
	Stream Stream `json:"stream,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`

	// job_result
	Status     *int  `json:"status,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`

	// job_result, rejected
	Reason  domain.Reason `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Authenticate builds an authenticate message.
func Authenticate(tok domain.AuthToken) *Message {
	return &Message{Type: TypeAuthenticate, Token: tok.Reveal()}
}

// SubmitJob builds a submit_job message.
func SubmitJob(spec *domain.JobSpec) *Message {
	return &Message{Type: TypeSubmitJob, Spec: spec}
}

// OutputChunk builds an output_chunk message.
func OutputChunk(stream Stream, data []byte, seq uint64) *Message {
	return &Message{Type: TypeOutputChunk, Stream: stream, Data: data, Seq: seq}
}

// JobResult builds a job_result message from a result.
func JobResult(res domain.JobResult) *Message {
	status := res.ExitCode
	return &Message{
		Type:       TypeJobResult,
		Status:     &status,
		Reason:     res.Reason,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// Rejected builds a rejected message.
func Rejected(reason domain.Reason, message string) *Message {
	return &Message{Type: TypeRejected, Reason: reason, Message: message}
}

// RejectedFromError builds a rejected message from a domain error.
func RejectedFromError(err error, fallback domain.Reason) *Message {
	return Rejected(domain.GetReason(err, fallback), rejectionText(err))
}

// rejectionText returns a client-safe description of err.
func rejectionText(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		if de.Details != "" {
			return de.Message + ": " + de.Details
		}
		return de.Message
	}
	return ""
}

// Result converts a job_result message back into a domain result.
func (m *Message) Result() domain.JobResult {
	res := domain.JobResult{
		ExitCode: -1,
		Reason:   m.Reason,
		Duration: time.Duration(m.DurationMS) * time.Millisecond,
	}
	if m.Status != nil {
		res.ExitCode = *m.Status
	}
	return res
}

// Validate checks that the fields required by the message type are present.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeAuthenticate:
		return nil
	case TypeSubmitJob:
		if m.Spec == nil {
			return violation("submit_job without spec")
		}
	case TypeOutputChunk:
		if m.Stream != Stdout && m.Stream != Stderr {
			return violation(fmt.Sprintf("unknown stream %q", m.Stream))
		}
		if m.Seq == 0 {
			return violation("output_chunk without seq")
		}
	case TypeJobResult:
		if m.Status == nil {
			return violation("job_result without status")
		}
	case TypeRejected:
		if m.Reason == domain.ReasonNone {
			return violation("rejected without reason")
		}
	case "":
		return violation("missing message type")
	default:
		return violation(fmt.Sprintf("unknown message type %q", m.Type))
	}
	return nil
}

// Encode validates and serialises m.
func Encode(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses and validates a frame. Unknown fields are rejected.
func Decode(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Message
	if err := dec.Decode(&m); err != nil {
		return nil, domain.ErrProtocolViolation.WithDetails("malformed frame").WithCause(err)
	}
	if dec.More() {
		return nil, violation("trailing data after message")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func violation(details string) error {
	return domain.ErrProtocolViolation.WithDetails(details)
}
