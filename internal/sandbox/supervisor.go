package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/boxrun/boxd/internal/config"
	"github.com/boxrun/boxd/internal/metrics"
)

// Mode selects how an execution's payload is sourced.
type Mode int

const (
	// ModeInline runs a snippet staged into the container as
	// ScriptFilename (via `docker cp`); the snippet is not sent over the
	// container's stdin.
	ModeInline Mode = iota
	// ModeStored runs a file from the user's read-only bind-mounted tree.
	ModeStored
)

func (m Mode) String() string {
	if m == ModeStored {
		return "stored"
	}
	return "inline"
}

// storedMountPoint is the fixed path the user's directory is bind
// mounted at for stored-mode executions.
const storedMountPoint = "/mnt/user"

// outputChunkSize bounds each OUTP relay.
const outputChunkSize = 1024

// Sink receives an execution's output and answers its input requests.
// The gateway (component A) implements Sink per session, translating
// calls into OUTP/INPT/INPR wire frames.
type Sink interface {
	// Output is called with each ≤1KiB chunk of combined stdout/stderr.
	Output(chunk []byte) error

	// RequestInput is called when the payload is blocked on stdin. It
	// must emit INPT and block for exactly one INPR, returning the
	// submitted line. Returning an error (e.g. the client disconnected)
	// aborts the wait silently.
	RequestInput(ctx context.Context) (string, error)
}

// StartOptions describes one execution request.
type StartOptions struct {
	Mode Mode

	// InlineCode is the snippet body for ModeInline.
	InlineCode []byte

	// StoredPath is the user-relative path to execute for ModeStored.
	// Must not escape the user's tree (checked here independently of
	// whatever the gateway's own path validation already did).
	StoredPath string

	// UserDir is the host directory bind-mounted read-only at
	// storedMountPoint for ModeStored.
	UserDir string

	Sink Sink
}

// Supervisor runs sandbox executions (components B and C together:
// the container supervisor owns the input-block detector's lifetime).
type Supervisor struct {
	runner  ContainerRunner
	cfg     config.SandboxConfig
	logger  *slog.Logger
	metrics metrics.Collector
}

// NewSupervisor creates a Supervisor. A nil collector installs
// metrics.NoopCollector.
func NewSupervisor(runner ContainerRunner, cfg config.SandboxConfig, logger *slog.Logger, collector metrics.Collector) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Supervisor{runner: runner, cfg: cfg, logger: logger, metrics: collector}
}

// Execute runs one execution to completion and returns the exit code
// surfaced to the client as DONE~<code>. It blocks for
// the lifetime of the execution; callers run it in its own goroutine
// per session and cancel ctx on client disconnect.
func (s *Supervisor) Execute(ctx context.Context, opts StartOptions) (int, error) {
	spec, scriptPathForPID, err := s.buildSpec(opts)
	if err != nil {
		return 0, err
	}

	container, err := s.runner.Run(ctx, spec)
	if err != nil {
		return 0, fmt.Errorf("sandbox: starting container: %w", err)
	}
	s.metrics.SandboxSpawned()
	s.metrics.ExecutionStarted(opts.Mode.String())
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.OuterTimeoutDuration())
	defer cancel()

	running := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			if err := container.Kill(); err != nil {
				s.logger.Warn("sandbox: kill on deadline/cancel failed", slog.String("container", spec.Name), slog.String("error", err.Error()))
			}
			s.metrics.SandboxKilled()
		case <-running:
		}
	}()

	go s.runDetector(execCtx, container, scriptPathForPID, opts.Sink)

	streamErr := s.streamOutput(container, opts.Sink)
	exitCode, waitErr := container.Wait()
	close(running)

	timedOut := execCtx.Err() == context.DeadlineExceeded || exitCode == 124
	if timedOut {
		exitCode = ExitTimeout
	}

	s.metrics.ExecutionFinished(opts.Mode.String(), time.Since(start), timedOut)

	if waitErr != nil {
		return exitCode, fmt.Errorf("sandbox: container wait: %w", waitErr)
	}
	if streamErr != nil && !errors.Is(streamErr, io.EOF) {
		return exitCode, fmt.Errorf("sandbox: streaming output: %w", streamErr)
	}
	return exitCode, nil
}

func (s *Supervisor) buildSpec(opts StartOptions) (ContainerSpec, string, error) {
	spec := ContainerSpec{
		Name:         nextContainerName(),
		Image:        s.cfg.Image,
		CPUs:         s.cfg.CPUs,
		MemoryLimit:  s.cfg.MemoryLimit,
		PIDsLimit:    s.cfg.PIDsLimit,
		InnerTimeout: s.cfg.InnerTimeoutDuration(),
	}

	switch opts.Mode {
	case ModeInline:
		spec.Script = opts.InlineCode
		return spec, ScriptFilename, nil
	case ModeStored:
		if err := validateStoredPath(opts.StoredPath); err != nil {
			return ContainerSpec{}, "", err
		}
		containerPath := path.Join(storedMountPoint, opts.StoredPath)
		spec.ScriptPath = containerPath
		spec.BindMount = &BindMount{HostPath: opts.UserDir, ContainerPath: storedMountPoint}
		return spec, containerPath, nil
	default:
		return ContainerSpec{}, "", fmt.Errorf("sandbox: unknown mode %v", opts.Mode)
	}
}

// validateStoredPath rejects any path that could escape the user's
// bind-mounted tree.
func validateStoredPath(p string) error {
	if p == "" || path.IsAbs(p) {
		return ErrPathEscape
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrPathEscape
		}
	}
	return nil
}

func (s *Supervisor) streamOutput(c Container, sink Sink) error {
	buf := make([]byte, outputChunkSize)
	for {
		n, err := c.Stdout().Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sErr := sink.Output(chunk); sErr != nil {
				return sErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *Supervisor) runDetector(ctx context.Context, c Container, scriptPath string, sink Sink) {
	pid, err := resolvePID(ctx, c, scriptPath, s.cfg.PIDPollIntervalDuration(), func() bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	if err != nil || pid == 0 {
		// No PID means the payload already exited, or discovery was
		// cancelled; the detector idles for this execution.
		return
	}

	d := &detector{container: c, pid: pid, pollInterval: s.cfg.InputPollIntervalDuration()}
	_ = d.run(ctx, func() bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}, sink.RequestInput)
}
