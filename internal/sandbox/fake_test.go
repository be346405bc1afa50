package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// fakeContainer is a Container double driven entirely in-process, so
// tests exercise the supervisor/detector/PID-resolution logic without
// a real docker binary.
type fakeContainer struct {
	mu sync.Mutex

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	exitCode int
	exitErr  error
	waitCh   chan struct{}
	finished bool
	killed   bool

	// execFunc answers Exec calls; args[0] is the docker-exec subcommand
	// (e.g. "pgrep", "ps").
	execFunc func(args []string) ([]byte, error)

	stdinWrites [][]byte
}

func newFakeContainer() *fakeContainer {
	r, w := io.Pipe()
	return &fakeContainer{stdoutR: r, stdoutW: w, waitCh: make(chan struct{})}
}

func (c *fakeContainer) Stdout() io.Reader { return c.stdoutR }

func (c *fakeContainer) Wait() (int, error) {
	<-c.waitCh
	return c.exitCode, c.exitErr
}

func (c *fakeContainer) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.finish(137, nil)
	return nil
}

// finish closes the stdout stream and unblocks Wait, exactly once.
func (c *fakeContainer) finish(code int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.exitCode = code
	c.exitErr = err
	c.stdoutW.Close()
	close(c.waitCh)
}

func (c *fakeContainer) Exec(ctx context.Context, args ...string) ([]byte, error) {
	c.mu.Lock()
	fn := c.execFunc
	c.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(args)
}

func (c *fakeContainer) WriteStdin(ctx context.Context, pid int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.stdinWrites = append(c.stdinWrites, cp)
	return nil
}

func (c *fakeContainer) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.stdinWrites...)
}

func (c *fakeContainer) wasKilled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// fakeRunner hands out a single preconfigured container and records the
// spec it was started with.
type fakeRunner struct {
	container *fakeContainer
	err       error

	mu       sync.Mutex
	lastSpec ContainerSpec
}

func (r *fakeRunner) Run(ctx context.Context, spec ContainerSpec) (Container, error) {
	r.mu.Lock()
	r.lastSpec = spec
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.container, nil
}

// fakeSink records output chunks and answers input requests from a
// canned queue.
type fakeSink struct {
	mu     sync.Mutex
	output bytes.Buffer
	inputs []string

	requestInputCalls int
}

func (s *fakeSink) Output(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.Write(chunk)
	return nil
}

func (s *fakeSink) RequestInput(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestInputCalls++
	if len(s.inputs) == 0 {
		return "", fmt.Errorf("fakeSink: no more canned input")
	}
	line := s.inputs[0]
	s.inputs = s.inputs[1:]
	return line, nil
}

func (s *fakeSink) collected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.String()
}

func (s *fakeSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestInputCalls
}
