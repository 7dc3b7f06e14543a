package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/protocol"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

// outputBuffer is the number of chunks buffered between the workload and
// the consumer. A consumer that falls further behind stalls the workload.
const outputBuffer = 64

var errOutputLimit = errors.New("output limit exceeded")

// Chunk is a piece of workload output.
type Chunk struct {
	Stream protocol.Stream
	Data   []byte
}

// Handle is a running workload: an ordered stream of output chunks and
// exactly one result.
//
// Chunks of one stream arrive in production order. The result becomes
// available only after every chunk has been handed to the output channel.
type Handle struct {
	pid       int
	startedAt time.Time

	ctx       context.Context
	chunkSize int
	maxOutput int64
	total     atomic.Int64

	exceeded  atomic.Bool
	limitHit  chan struct{}
	limitOnce sync.Once

	output chan Chunk
	done   chan struct{}
	result domain.JobResult

	metrics *metric.Registry
}

func newHandle(ctx context.Context, chunkSize int, maxOutput int64, metrics *metric.Registry) *Handle {
	return &Handle{
		startedAt: time.Now(),
		ctx:       ctx,
		chunkSize: chunkSize,
		maxOutput: maxOutput,
		limitHit:  make(chan struct{}),
		output:    make(chan Chunk, outputBuffer),
		done:      make(chan struct{}),
		metrics:   metrics,
	}
}

// Pid returns the workload process group id.
func (h *Handle) Pid() int {
	return h.pid
}

// StartedAt returns the spawn time.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Output returns the chunk channel. It is never closed; use Done or Drain
// to detect the end of output.
func (h *Handle) Output() <-chan Chunk {
	return h.output
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the workload has finished and returns its result.
func (h *Handle) Wait() domain.JobResult {
	<-h.done
	return h.result
}

// Drain passes every chunk to fn in order and returns the result once the
// workload has finished. If fn fails, Drain stops and returns its error;
// the caller is expected to cancel the workload.
func (h *Handle) Drain(fn func(Chunk) error) (domain.JobResult, error) {
	for {
		select {
		case c := <-h.output:
			if err := fn(c); err != nil {
				return domain.JobResult{}, err
			}
		case <-h.done:
			for {
				select {
				case c := <-h.output:
					if err := fn(c); err != nil {
						return domain.JobResult{}, err
					}
				default:
					return h.result, nil
				}
			}
		}
	}
}

func (h *Handle) finish(res domain.JobResult) {
	h.result = res
	close(h.done)
}

func (h *Handle) limitExceeded() bool {
	return h.exceeded.Load()
}

func (h *Handle) hitLimit() {
	h.exceeded.Store(true)
	h.limitOnce.Do(func() { close(h.limitHit) })
}

// reserve claims up to n bytes of the output budget and returns the amount
// granted.
func (h *Handle) reserve(n int) int {
	if h.maxOutput <= 0 {
		h.total.Add(int64(n))
		return n
	}
	for {
		cur := h.total.Load()
		room := h.maxOutput - cur
		if room <= 0 {
			return 0
		}
		take := int64(n)
		if take > room {
			take = room
		}
		if h.total.CompareAndSwap(cur, cur+take) {
			return int(take)
		}
	}
}

func (h *Handle) emit(stream protocol.Stream, p []byte) error {
	data := make([]byte, len(p))
	copy(data, p)

	select {
	case h.output <- Chunk{Stream: stream, Data: data}:
		h.metrics.AddJobOutput(len(data))
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Handle) writer(stream protocol.Stream) io.Writer {
	return &streamWriter{h: h, stream: stream}
}

// streamWriter splits workload output into chunks and enforces the output
// budget. exec copies each stream from a single goroutine, so writes to one
// streamWriter never overlap.
type streamWriter struct {
	h      *Handle
	stream protocol.Stream
}

func (w *streamWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		size := min(len(p), w.h.chunkSize)
		allowed := w.h.reserve(size)
		if allowed > 0 {
			if err := w.h.emit(w.stream, p[:allowed]); err != nil {
				return written, err
			}
			written += allowed
		}
		if allowed < size {
			w.h.hitLimit()
			return written, errOutputLimit
		}
		p = p[size:]
	}
	return written, nil
}
