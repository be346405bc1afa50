package gateway

import (
	"context"
	"sync"
)

// execStream is the per-execution sandbox.Sink: it relays output as
// OUTP frames and solicits input as INPT/INPR, single-flighted per
// execution.
type execStream struct {
	writeFrame func(Frame) error

	mu            sync.Mutex
	awaitingInput bool
	inputCh       chan string
}

func newExecStream(writeFrame func(Frame) error) *execStream {
	return &execStream{writeFrame: writeFrame, inputCh: make(chan string, 1)}
}

// Output implements sandbox.Sink.
func (e *execStream) Output(chunk []byte) error {
	return e.writeFrame(NewFrame("OUTP", encodeB64(chunk)))
}

// RequestInput implements sandbox.Sink: emits INPT, then blocks for
// exactly one line delivered via deliverInput or until ctx ends.
func (e *execStream) RequestInput(ctx context.Context) (string, error) {
	e.mu.Lock()
	e.awaitingInput = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.awaitingInput = false
		e.mu.Unlock()
	}()

	if err := e.writeFrame(NewFrame("INPT")); err != nil {
		return "", err
	}

	select {
	case line := <-e.inputCh:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// deliverInput forwards a decoded INPR payload to a pending
// RequestInput call. It reports false if no input is currently being
// awaited, or a line is already queued — either way the caller must
// treat the INPR as illegal in this window.
func (e *execStream) deliverInput(line string) bool {
	e.mu.Lock()
	awaiting := e.awaitingInput
	e.mu.Unlock()
	if !awaiting {
		return false
	}
	select {
	case e.inputCh <- line:
		return true
	default:
		return false
	}
}
