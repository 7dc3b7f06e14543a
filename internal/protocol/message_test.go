package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

func TestEncodeDecode_OutputBytesRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello\n"),
		{0x00, 0xff, 0xfe, 0x80, '\n', 0x1b, '[', '0', 'm'},
		bytes.Repeat([]byte{0xc3}, 4096), // invalid UTF-8 on its own
		[]byte(strings.Repeat("é", 100)),
	}

	for i, p := range payloads {
		data, err := Encode(OutputChunk(Stderr, p, uint64(i+1)))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		m, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !bytes.Equal(m.Data, p) {
			t.Errorf("payload %d changed in transit", i)
		}
		if m.Stream != Stderr || m.Seq != uint64(i+1) {
			t.Errorf("payload %d: stream=%s seq=%d", i, m.Stream, m.Seq)
		}
	}
}

func TestJobResultRoundTrip(t *testing.T) {
	tests := []domain.JobResult{
		{ExitCode: 0, Duration: 1500 * time.Millisecond},
		{ExitCode: 3, Reason: domain.ReasonExitStatus, Duration: time.Second},
		{ExitCode: -1, Reason: domain.ReasonSpawnFailed},
	}

	for _, res := range tests {
		t.Run(fmt.Sprintf("%d/%s", res.ExitCode, res.Reason), func(t *testing.T) {
			data, err := Encode(JobResult(res))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Contains(data, []byte(`"status":`)) {
				t.Errorf("status missing from %s", data)
			}
			m, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := m.Result(); got != res {
				t.Errorf("Result() = %+v, want %+v", got, res)
			}
		})
	}
}

func TestSubmitJobRoundTrip(t *testing.T) {
	spec := &domain.JobSpec{Command: "cargo", Args: []string{"bench"}, Env: map[string]string{"A": "1"}, TimeoutSeconds: 60}

	data, err := Encode(SubmitJob(spec))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.Type != TypeSubmitJob || m.Spec.Command != "cargo" || m.Spec.Env["A"] != "1" || m.Spec.TimeoutSeconds != 60 {
		t.Errorf("Decode() = %+v", m.Spec)
	}
}

func TestDecode_Violations(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `hello`},
		{"missing type", `{"token":"x"}`},
		{"unknown type", `{"type":"shell"}`},
		{"unknown field", `{"type":"authenticate","token":"x","admin":true}`},
		{"submit without spec", `{"type":"submit_job"}`},
		{"bad stream", `{"type":"output_chunk","stream":"stdin","data":"","seq":1}`},
		{"chunk without seq", `{"type":"output_chunk","stream":"stdout","data":"aGk="}`},
		{"result without status", `{"type":"job_result"}`},
		{"rejected without reason", `{"type":"rejected"}`},
		{"trailing data", `{"type":"authenticate"} {"type":"authenticate"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if !errors.Is(err, domain.ErrProtocolViolation) {
				t.Errorf("Decode() error = %v, want ErrProtocolViolation", err)
			}
		})
	}
}

func TestDecode_AuthenticateEmptyTokenIsWellFormed(t *testing.T) {
	m, err := Decode([]byte(`{"type":"authenticate"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.Token != "" {
		t.Errorf("Token = %q", m.Token)
	}
}

func TestRejectedFromError(t *testing.T) {
	m := RejectedFromError(fmt.Errorf("wrap: %w", domain.ErrInvalidJob.WithDetails("command is required")), domain.ReasonProtocolViolation)
	if m.Reason != domain.ReasonInvalidJob {
		t.Errorf("Reason = %q", m.Reason)
	}
	if m.Message != "invalid job spec: command is required" {
		t.Errorf("Message = %q", m.Message)
	}

	m = RejectedFromError(errors.New("boom"), domain.ReasonProtocolViolation)
	if m.Reason != domain.ReasonProtocolViolation || m.Message != "" {
		t.Errorf("fallback = %+v", m)
	}
}

func TestAuthenticate_NoTokenInErrorText(t *testing.T) {
	m := RejectedFromError(domain.ErrTokenInvalid, domain.ReasonProtocolViolation)
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Contains(data, []byte(`"reason":"invalid_token"`)) {
		t.Errorf("frame = %s", data)
	}
}
