package jobsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/executor"
	"github.com/yndnr/ussal-go/internal/protocol"
)

const (
	// outQueue is the number of frames queued for the writer.
	outQueue = 16

	// closeGrace is how long a finished session waits for the client to
	// answer the close frame before dropping the connection.
	closeGrace = time.Second
)

// Session outcomes, used as metric labels.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeCancelled = "cancelled"
)

var (
	errSessionClosed = errors.New("session closed")
	errClientGone    = errors.New("client disconnected")
)

// inbound is one decoded client frame, or the protocol error that ended
// reading.
type inbound struct {
	msg *protocol.Message
	err error
}

type jobOutcome struct {
	result domain.JobResult
	err    error
}

type session struct {
	id        string
	ip        string
	remote    string
	startedAt time.Time

	conn   *websocket.Conn
	h      *Handler
	log    *slog.Logger
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	state   domain.SessionState
	command string

	in  chan inbound
	out chan *protocol.Message

	// Written before out is closed, read by the writer after.
	closeCode int
	closeText string
}

func newSession(id string, conn *websocket.Conn, ip string, h *Handler, log *slog.Logger, cancel context.CancelCauseFunc) *session {
	return &session{
		id:        id,
		ip:        ip,
		remote:    conn.RemoteAddr().String(),
		startedAt: time.Now(),
		conn:      conn,
		h:         h,
		log:       log,
		cancel:    cancel,
		state:     domain.SessionConnected,
		in:        make(chan inbound, 1),
		out:       make(chan *protocol.Message, outQueue),
		closeCode: websocket.CloseNormalClosure,
	}
}

// run drives the session to completion and returns its outcome.
func (s *session) run(ctx context.Context) string {
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})
	go s.writeLoop(writerDone)
	go s.readLoop(ctx, readerDone)

	s.log.Debug("session opened")
	outcome := s.serve(ctx)

	if errors.Is(context.Cause(ctx), errShuttingDown) && s.closeCode == websocket.CloseNormalClosure {
		s.closeCode = websocket.CloseGoingAway
		s.closeText = errShuttingDown.Error()
	}
	close(s.out)
	select {
	case <-writerDone:
	case <-time.After(s.h.cfg.WriteTimeout):
	}

	s.cancel(errSessionClosed)
	select {
	case <-readerDone:
	case <-time.After(closeGrace):
	}
	s.conn.Close()
	<-readerDone

	s.setState(domain.SessionClosed)
	s.log.Info("session closed", "outcome", outcome, "duration", time.Since(s.startedAt))
	return outcome
}

// serve runs the protocol state machine.
func (s *session) serve(ctx context.Context) string {
	s.setState(domain.SessionAuthenticating)

	msg, outcome, ok := s.await(ctx, protocol.TypeAuthenticate, "authentication")
	if !ok {
		return outcome
	}
	if _, err := s.h.auth.Validate(ctx, domain.AuthToken(msg.Token), s.ip); err != nil {
		return s.reject(ctx, err)
	}
	s.setState(domain.SessionAuthenticated)
	s.log.Info("session authenticated")

	msg, outcome, ok = s.await(ctx, protocol.TypeSubmitJob, "job submission")
	if !ok {
		return outcome
	}
	spec := msg.Spec.Clone()
	if err := spec.Validate(); err != nil {
		return s.reject(ctx, err)
	}
	s.mu.Lock()
	s.command = spec.Command
	s.mu.Unlock()
	s.setState(domain.SessionJobReceived)

	return s.execute(ctx, spec)
}

// await waits for a message of type want within the authentication
// timeout. When it returns false the session is over with the given outcome.
func (s *session) await(ctx context.Context, want protocol.MessageType, phase string) (*protocol.Message, string, bool) {
	timer := time.NewTimer(s.h.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case in, open := <-s.in:
		if !open {
			s.setState(domain.SessionFailed)
			s.log.Info("client disconnected", "phase", phase)
			return nil, outcomeCancelled, false
		}
		if in.err != nil {
			return nil, s.reject(ctx, in.err), false
		}
		if in.msg.Type != want {
			err := domain.ErrProtocolViolation.WithDetails(fmt.Sprintf("expected %s, got %s", want, in.msg.Type))
			return nil, s.reject(ctx, err), false
		}
		return in.msg, "", true
	case <-timer.C:
		err := domain.ErrProtocolViolation.WithDetails(phase + " timeout")
		return nil, s.reject(ctx, err), false
	case <-ctx.Done():
		s.setState(domain.SessionFailed)
		return nil, outcomeCancelled, false
	}
}

// execute runs the job and forwards its output. Any client message while
// the job runs is a protocol violation that kills the workload.
func (s *session) execute(ctx context.Context, spec *domain.JobSpec) string {
	jobCtx, jobCancel := context.WithCancelCause(ctx)
	defer jobCancel(nil)

	hd, err := s.h.runner.Execute(jobCtx, spec)
	if err != nil {
		res := domain.JobResult{ExitCode: -1, Reason: domain.GetReason(err, domain.ReasonSpawnFailed)}
		s.setState(domain.SessionFailed)
		s.log.Warn("job not started", "command", spec.Command, "reason", res.Reason, "error", err)
		m := protocol.JobResult(res)
		m.Message = clientMessage(err)
		s.send(ctx, m)
		return outcomeFailed
	}
	s.setState(domain.SessionExecuting)
	s.log.Info("job started", "command", spec.Command, "pgid", hd.Pid())

	done := make(chan jobOutcome, 1)
	go func() {
		res, err := hd.Drain(func(c executor.Chunk) error {
			return s.send(jobCtx, protocol.OutputChunk(c.Stream, c.Data, 0))
		})
		if err != nil {
			jobCancel(err)
			res = hd.Wait()
		}
		done <- jobOutcome{result: res, err: err}
	}()

	for {
		select {
		case o := <-done:
			return s.finish(ctx, o)

		case in, open := <-s.in:
			if !open {
				jobCancel(errClientGone)
				o := <-done
				s.setState(domain.SessionFailed)
				s.log.Warn("job cancelled", "cause", errClientGone, "reason", o.result.Reason, "duration", o.result.Duration)
				return outcomeCancelled
			}
			violation := in.err
			if violation == nil {
				violation = domain.ErrProtocolViolation.WithDetails(fmt.Sprintf("unexpected %s while job is running", in.msg.Type))
			}
			jobCancel(violation)
			o := <-done
			s.log.Warn("job cancelled", "cause", violation, "reason", o.result.Reason, "duration", o.result.Duration)
			return s.reject(ctx, violation)

		case <-ctx.Done():
			o := <-done
			s.setState(domain.SessionFailed)
			s.log.Warn("job cancelled", "cause", context.Cause(ctx), "reason", o.result.Reason, "duration", o.result.Duration)
			return outcomeCancelled
		}
	}
}

// finish reports the terminal result of a job that ran to its end.
func (s *session) finish(ctx context.Context, o jobOutcome) string {
	res := o.result
	if o.err != nil || res.Reason == domain.ReasonCancelled {
		s.setState(domain.SessionFailed)
		s.log.Warn("job cancelled", "cause", context.Cause(ctx), "error", o.err, "duration", res.Duration)
		return outcomeCancelled
	}

	outcome := outcomeCompleted
	if res.Succeeded() {
		s.setState(domain.SessionCompleted)
	} else {
		outcome = outcomeFailed
		s.setState(domain.SessionFailed)
	}
	if err := s.send(ctx, protocol.JobResult(res)); err != nil {
		s.log.Warn("job result not delivered", "error", err)
	}
	s.log.Info("job finished", "status", res.ExitCode, "reason", res.Reason, "duration", res.Duration)
	return outcome
}

// reject sends a terminal rejected frame and fails the session.
func (s *session) reject(ctx context.Context, err error) string {
	m := protocol.RejectedFromError(err, domain.ReasonProtocolViolation)
	s.setState(domain.SessionFailed)
	s.closeCode = websocket.ClosePolicyViolation
	s.closeText = string(m.Reason)
	s.send(ctx, m)
	s.log.Warn("session rejected", "reason", m.Reason, "code", domain.GetErrorCode(err), "error", err)
	return outcomeRejected
}

// send queues m for the writer.
func (s *session) send(ctx context.Context, m *protocol.Message) error {
	select {
	case s.out <- m:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// writeLoop is the only writer of data frames. It numbers output chunks,
// sends keepalive pings and ends with a close frame once out is closed.
func (s *session) writeLoop(done chan<- struct{}) {
	defer close(done)

	var ping <-chan time.Time
	if s.h.cfg.PingInterval > 0 {
		t := time.NewTicker(s.h.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	var seq uint64
	for {
		select {
		case m, ok := <-s.out:
			if !ok {
				protocol.CloseNormal(s.conn, s.closeCode, s.closeText, s.writeDeadline())
				return
			}
			if m.Type == protocol.TypeOutputChunk {
				seq++
				m.Seq = seq
			}
			if err := protocol.WriteMessage(s.conn, m, s.writeDeadline()); err != nil {
				s.log.Warn("write failed", "type", m.Type, "error", err)
				s.cancel(fmt.Errorf("write %s: %w", m.Type, err))
				return
			}
		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline()); err != nil {
				s.cancel(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// readLoop decodes client frames into in. It closes in when the
// connection ends; a protocol error is delivered before closing.
func (s *session) readLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer close(s.in)

	s.conn.SetReadLimit(protocol.MaxClientMessageSize)
	pongWait := 2 * s.h.cfg.PingInterval
	extend := func() {
		if pongWait > 0 {
			s.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		m, err := protocol.ReadMessage(s.conn)
		if err != nil {
			var de *domain.DomainError
			if errors.As(err, &de) {
				select {
				case s.in <- inbound{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if ctx.Err() == nil {
				s.log.Debug("read ended", "error", err)
			}
			return
		}
		extend()
		select {
		case s.in <- inbound{msg: m}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) writeDeadline() time.Time {
	return time.Now().Add(s.h.cfg.WriteTimeout)
}

func (s *session) setState(next domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return
	}
	st, err := s.state.Transition(next)
	if err != nil {
		s.log.Error("illegal session transition", "error", err)
		return
	}
	s.state = st
}

func (s *session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		RemoteAddr: s.remote,
		State:      s.state.String(),
		Command:    s.command,
		StartedAt:  s.startedAt,
	}
}

// clientMessage returns the client-safe text of a domain error.
func clientMessage(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return ""
	}
	if de.Details != "" {
		return de.Message + ": " + de.Details
	}
	return de.Message
}
