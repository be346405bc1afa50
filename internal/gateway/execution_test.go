package gateway

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxrun/boxd/internal/config"
	"github.com/boxrun/boxd/internal/sandbox"
)

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		Image:             "python_runner",
		InnerTimeout:      "2s",
		OuterTimeout:      "300ms",
		InputPollInterval: "5ms",
		PIDPollInterval:   "5ms",
		CPUs:              "0.5",
		MemoryLimit:       "128m",
		PIDsLimit:         64,
	}
}

// recordingWriter collects every frame written by the gateway so tests
// can assert both content and ordering.
type recordingWriter struct {
	mu     sync.Mutex
	frames []Frame
	done   chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{done: make(chan struct{})}
}

func (w *recordingWriter) write(f Frame) error {
	w.mu.Lock()
	w.frames = append(w.frames, f)
	isDone := f.Code == "DONE"
	w.mu.Unlock()
	if isDone {
		close(w.done)
	}
	return nil
}

func (w *recordingWriter) snapshot() []Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Frame(nil), w.frames...)
}

func (w *recordingWriter) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DONE frame")
	}
}

func testGateway(t *testing.T, runner sandbox.ContainerRunner) *Gateway {
	t.Helper()
	sup := sandbox.NewSupervisor(runner, testSandboxConfig(), nil, nil)
	cfg := config.Default()
	cfg.StorageBase = t.TempDir()
	return New(cfg, nil, sup, nil, nil)
}

func TestRunExecutionInlineOutputThenDone(t *testing.T) {
	container := newFakeContainer("hello from sandbox", 0)
	g := testGateway(t, &fakeRunner{container: container})
	sess := newSession()
	sess.authenticate(1, "a@example.com", nil)

	w := newRecordingWriter()
	frame := NewFrame("EXEC", encodeB64([]byte("print('hi')")))

	var doneCalled bool
	var mu sync.Mutex
	g.runExecution(context.Background(), sess, frame, newExecStream(w.write), w.write, func() {
		mu.Lock()
		doneCalled = true
		mu.Unlock()
	})

	w.waitDone(t)
	frames := w.snapshot()
	if len(frames) == 0 {
		t.Fatal("expected at least one frame")
	}
	last := frames[len(frames)-1]
	if last.Code != "DONE" {
		t.Fatalf("last frame = %s, want DONE", last.Code)
	}
	if last.Args[0] != "0" {
		t.Fatalf("DONE arg = %s, want 0", last.Args[0])
	}

	var sawOutput bool
	for _, f := range frames[:len(frames)-1] {
		if f.Code != "OUTP" {
			t.Fatalf("unexpected frame before DONE: %s", f.Code)
		}
		sawOutput = true
	}
	if !sawOutput {
		t.Fatal("expected at least one OUTP frame before DONE")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !doneCalled {
		t.Fatal("onDone callback was never invoked")
	}
}

func TestRunExecutionNonZeroExit(t *testing.T) {
	container := newFakeContainer("", 1)
	g := testGateway(t, &fakeRunner{container: container})
	sess := newSession()
	sess.authenticate(1, "a@example.com", nil)

	w := newRecordingWriter()
	frame := NewFrame("EXEC", encodeB64([]byte("raise Exception()")))
	g.runExecution(context.Background(), sess, frame, newExecStream(w.write), w.write, func() {})

	w.waitDone(t)
	frames := w.snapshot()
	last := frames[len(frames)-1]
	if last.Code != "DONE" || last.Args[0] != "1" {
		t.Fatalf("got %v, want DONE~1", last)
	}
}

func TestRunExecutionEXECRejectsMalformedArg(t *testing.T) {
	container := newFakeContainer("", 0)
	g := testGateway(t, &fakeRunner{container: container})
	sess := newSession()
	sess.authenticate(1, "a@example.com", nil)

	w := newRecordingWriter()
	badFrame := NewFrame("EXEC", "not-base64!!!")

	var onDoneCalled bool
	g.runExecution(context.Background(), sess, badFrame, newExecStream(w.write), w.write, func() { onDoneCalled = true })

	if !onDoneCalled {
		t.Fatal("onDone must be called synchronously on a validation failure")
	}
	frames := w.snapshot()
	if len(frames) != 1 || frames[0].Code != "ERRR" {
		t.Fatalf("got %v, want a single ERRR frame", frames)
	}
}

func TestExecStreamSingleFlightInput(t *testing.T) {
	var frames []Frame
	var mu sync.Mutex
	write := func(f Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	}
	stream := newExecStream(write)

	if stream.deliverInput("too early") {
		t.Fatal("deliverInput must fail before RequestInput is awaiting")
	}

	resultCh := make(chan string, 1)
	go func() {
		line, err := stream.RequestInput(context.Background())
		if err == nil {
			resultCh <- line
		}
	}()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for INPT frame")
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	if frames[0].Code != "INPT" {
		t.Fatalf("expected INPT frame, got %s", frames[0].Code)
	}
	mu.Unlock()

	if !stream.deliverInput("line one") {
		t.Fatal("expected deliverInput to succeed while awaiting")
	}
	select {
	case got := <-resultCh:
		if got != "line one" {
			t.Fatalf("RequestInput returned %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestInput never returned")
	}

	if stream.deliverInput("stray") {
		t.Fatal("deliverInput must fail once no RequestInput is pending")
	}
}

func TestRunExecutionOuterTimeoutSentinel(t *testing.T) {
	container := newHangingContainer()
	g := testGateway(t, &fakeRunner{container: container})
	sess := newSession()
	sess.authenticate(1, "a@example.com", nil)

	w := newRecordingWriter()
	frame := NewFrame("EXEC", encodeB64([]byte("while True: pass")))
	g.runExecution(context.Background(), sess, frame, newExecStream(w.write), w.write, func() {})

	w.waitDone(t)
	frames := w.snapshot()
	last := frames[len(frames)-1]
	if last.Code != "DONE" || last.Args[0] != "3" {
		t.Fatalf("got %v, want DONE~3 (ExitTimeout sentinel)", last)
	}
}

func TestRunExecutionRUNFRejectsMissingPath(t *testing.T) {
	g := testGateway(t, &fakeRunner{container: newFakeContainer("", 0)})
	sess := newSession()
	fs, err := newTestUserFS(t)
	if err != nil {
		t.Fatal(err)
	}
	sess.authenticate(1, "a@example.com", fs)

	w := newRecordingWriter()
	frame := NewFrame("RUNF", "scripts/missing.py")

	var onDoneCalled bool
	g.runExecution(context.Background(), sess, frame, newExecStream(w.write), w.write, func() { onDoneCalled = true })

	if !onDoneCalled {
		t.Fatal("onDone must run synchronously when RUNF targets a missing path")
	}
	frames := w.snapshot()
	if len(frames) != 1 || frames[0].Code != "ERRR" || !strings.Contains(frames[0].String(), codeNotFound) {
		t.Fatalf("got %v, want a single ERRR~%s frame", frames, codeNotFound)
	}
}
