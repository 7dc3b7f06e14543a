package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
	"github.com/yndnr/ussal-go/internal/protocol"
)

// DefaultHandshakeTimeout bounds the TLS and websocket handshake.
const DefaultHandshakeTimeout = 15 * time.Second

// writeTimeout bounds each client frame.
const writeTimeout = 10 * time.Second

// OutputFunc receives workload output in order.
type OutputFunc func(stream protocol.Stream, data []byte) error

// RejectedError is returned when the server rejects the session.
type RejectedError struct {
	Reason  domain.Reason
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Message)
}

// JobClient runs jobs over the session protocol, one session per job.
type JobClient struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
}

// NewJobClient creates a client for the orchestrator at address. A nil
// tlsConfig uses the system roots.
func NewJobClient(address string, tlsConfig *tls.Config) (*JobClient, error) {
	u, err := JobURL(address)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("User-Agent", buildinfo.UserAgent("ussal-cli"))
	return &JobClient{
		url: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
			TLSClientConfig:  tlsConfig,
		},
		header: header,
	}, nil
}

// URL returns the session endpoint.
func (c *JobClient) URL() string {
	return c.url
}

// Run opens a session, authenticates, submits spec and streams output to
// out until the job result arrives. Cancelling ctx closes the session,
// which makes the server kill the workload.
func (c *JobClient) Run(ctx context.Context, tok domain.AuthToken, spec *domain.JobSpec, out OutputFunc) (domain.JobResult, error) {
	failed := domain.JobResult{ExitCode: -1}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return failed, fmt.Errorf("connect %s: %w (HTTP %d)", c.url, err, resp.StatusCode)
		}
		return failed, fmt.Errorf("connect %s: %w", c.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// There is no authentication ack; the server processes frames in order.
	if err := protocol.WriteMessage(conn, protocol.Authenticate(tok), time.Now().Add(writeTimeout)); err != nil {
		return failed, c.wrap(ctx, fmt.Errorf("send authenticate: %w", err))
	}
	if err := protocol.WriteMessage(conn, protocol.SubmitJob(spec), time.Now().Add(writeTimeout)); err != nil {
		// A rejected token closes the session before the job is read; the
		// rejection is still queued for reading.
		if m, rerr := protocol.ReadMessage(conn); rerr == nil && m.Type == protocol.TypeRejected {
			return failed, &RejectedError{Reason: m.Reason, Message: m.Message}
		}
		return failed, c.wrap(ctx, fmt.Errorf("send submit_job: %w", err))
	}

	var lastSeq uint64
	for {
		m, err := protocol.ReadMessage(conn)
		if err != nil {
			return failed, c.wrap(ctx, fmt.Errorf("session ended before job result: %w", err))
		}

		switch m.Type {
		case protocol.TypeOutputChunk:
			if m.Seq != lastSeq+1 {
				return failed, domain.ErrProtocolViolation.WithDetails(fmt.Sprintf("output seq %d after %d", m.Seq, lastSeq))
			}
			lastSeq = m.Seq
			if out != nil {
				if err := out(m.Stream, m.Data); err != nil {
					return failed, fmt.Errorf("write output: %w", err)
				}
			}
		case protocol.TypeJobResult:
			c.closeNormal(conn)
			return m.Result(), nil
		case protocol.TypeRejected:
			return failed, &RejectedError{Reason: m.Reason, Message: m.Message}
		default:
			return failed, domain.ErrProtocolViolation.WithDetails(fmt.Sprintf("unexpected %s from server", m.Type))
		}
	}
}

// wrap reports cancellation instead of the resulting connection error.
func (c *JobClient) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

func (c *JobClient) closeNormal(conn *websocket.Conn) {
	_ = protocol.CloseNormal(conn, websocket.CloseNormalClosure, "", time.Now().Add(time.Second))
}
