package gateway

import (
	"context"
	"io"
	"sync"

	"github.com/boxrun/boxd/internal/sandbox"
)

// fakeContainer is a minimal sandbox.Container double: immediate exit
// with a preset code, a canned stdout stream, no PID resolution (Exec
// always answers empty so the supervisor's detector finds no PID and
// skips the input-block watch entirely, which is fine for these tests
// since none of them exercise runtime input prompts).
type fakeContainer struct {
	mu sync.Mutex

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	exitCode int
	waitCh   chan struct{}
	finished bool
	killed   bool
}

func newFakeContainer(stdout string, exitCode int) *fakeContainer {
	r, w := io.Pipe()
	c := &fakeContainer{stdoutR: r, stdoutW: w, exitCode: exitCode, waitCh: make(chan struct{})}
	go func() {
		io.WriteString(w, stdout)
		c.finish()
	}()
	return c
}

// newHangingContainer never exits on its own; Kill is the only way its
// Wait() call unblocks, used to exercise the outer-watchdog timeout
// path.
func newHangingContainer() *fakeContainer {
	r, w := io.Pipe()
	return &fakeContainer{stdoutR: r, stdoutW: w, waitCh: make(chan struct{})}
}

func (c *fakeContainer) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.stdoutW.Close()
	close(c.waitCh)
}

func (c *fakeContainer) Stdout() io.Reader { return c.stdoutR }

func (c *fakeContainer) Wait() (int, error) {
	<-c.waitCh
	return c.exitCode, nil
}

func (c *fakeContainer) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.finish()
	return nil
}

func (c *fakeContainer) Exec(ctx context.Context, args ...string) ([]byte, error) {
	return nil, nil
}

func (c *fakeContainer) WriteStdin(ctx context.Context, pid int, data []byte) error {
	return nil
}

type fakeRunner struct {
	container *fakeContainer
	err       error
}

func (r *fakeRunner) Run(ctx context.Context, spec sandbox.ContainerSpec) (sandbox.Container, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.container, nil
}
