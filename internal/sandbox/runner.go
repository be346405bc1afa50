package sandbox

import (
	"context"
	"io"
	"time"
)

// BindMount describes a read-only bind mount used for stored-mode
// executions.
type BindMount struct {
	HostPath      string
	ContainerPath string
}

// ContainerSpec describes one container invocation. Exactly one of
// Script or ScriptPath is set: Script for inline snippets (staged into
// the container via `docker cp` before it starts), ScriptPath for a
// stored file already visible under BindMount.ContainerPath.
type ContainerSpec struct {
	Name         string
	Image        string
	CPUs         string
	MemoryLimit  string
	PIDsLimit    int
	InnerTimeout time.Duration

	Script     []byte
	ScriptPath string
	BindMount  *BindMount
}

// ScriptFilename is the inline-mode payload's fixed name inside the
// container.
const ScriptFilename = "script.py"

// RuntimeCommand is the interpreter invoked on the payload. The
// reference image is python_runner (config.Default().Sandbox.Image),
// so the runtime is fixed at python3; a multi-language sandbox would
// make this part of ContainerSpec instead.
var RuntimeCommand = "python3"

// Container is a running (or exited) sandbox container.
type Container interface {
	// Stdout returns the combined stdout+stderr stream.
	Stdout() io.Reader

	// Wait blocks until the container's wrapper process exits and
	// returns its exit code.
	Wait() (int, error)

	// Kill forcibly terminates the container (outer watchdog path).
	Kill() error

	// Exec runs `docker exec <name> <args...>` inside the running
	// container and returns its standard output.
	Exec(ctx context.Context, args ...string) ([]byte, error)

	// WriteStdin delivers data to pid's standard input from inside the
	// container via /proc/<pid>/fd/0 — the portable way
	// to inject a line into a running program without restarting it or
	// contending with the run -i stdin channel.
	WriteStdin(ctx context.Context, pid int, data []byte) error
}

// ContainerRunner starts sandbox containers. The production
// implementation shells out to the docker CLI (docker.go); tests
// substitute a fake.
type ContainerRunner interface {
	Run(ctx context.Context, spec ContainerSpec) (Container, error)
}
