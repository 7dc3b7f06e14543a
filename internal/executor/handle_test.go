package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/protocol"
)

func TestStreamWriter_SplitsAndLimits(t *testing.T) {
	h := newHandle(context.Background(), 3, 7, nil)
	w := h.writer(protocol.Stdout)

	n, err := w.Write([]byte("abcdefghij"))
	if !errors.Is(err, errOutputLimit) {
		t.Fatalf("Write() error = %v, want errOutputLimit", err)
	}
	if n != 7 {
		t.Errorf("Write() n = %d, want 7", n)
	}
	if !h.limitExceeded() {
		t.Error("limit not recorded")
	}

	var got []string
	for len(h.output) > 0 {
		got = append(got, string((<-h.output).Data))
	}
	want := []string{"abc", "def", "g"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamWriter_CopiesBuffer(t *testing.T) {
	h := newHandle(context.Background(), 16, 0, nil)
	w := h.writer(protocol.Stderr)

	buf := []byte("first")
	w.Write(buf)
	copy(buf, "XXXXX")

	c := <-h.output
	if string(c.Data) != "first" || c.Stream != protocol.Stderr {
		t.Errorf("chunk = %+v", c)
	}
}

func TestStreamWriter_CancelledConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHandle(ctx, 1, 0, nil)
	w := h.writer(protocol.Stdout)

	// Fill the buffer, then a cancelled context must unblock the writer.
	for i := 0; i < outputBuffer; i++ {
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	cancel()
	if _, err := w.Write([]byte("y")); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
}

func TestHandle_DrainReturnsResultAfterOutput(t *testing.T) {
	h := newHandle(context.Background(), 16, 0, nil)
	w := h.writer(protocol.Stdout)
	w.Write([]byte("one"))
	w.Write([]byte("two"))
	h.finish(domain.JobResult{ExitCode: 0})

	var got string
	res, err := h.Drain(func(c Chunk) error {
		got += string(c.Data)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got != "onetwo" {
		t.Errorf("drained %q", got)
	}
	if !res.Succeeded() {
		t.Errorf("result = %+v", res)
	}
}

func TestHandle_DrainStopsOnConsumerError(t *testing.T) {
	h := newHandle(context.Background(), 16, 0, nil)
	h.writer(protocol.Stdout).Write([]byte("x"))

	boom := errors.New("client gone")
	if _, err := h.Drain(func(Chunk) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Drain() error = %v, want %v", err, boom)
	}
}
