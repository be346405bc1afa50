package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boxrun/boxd/internal/config"
)

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		Image:             "python_runner",
		InnerTimeout:      "2s",
		OuterTimeout:      "2s",
		InputPollInterval: "5ms",
		PIDPollInterval:   "5ms",
		CPUs:              "0.5",
		MemoryLimit:       "128m",
		PIDsLimit:         64,
	}
}

func TestSupervisorExecuteInlineSuccess(t *testing.T) {
	c := newFakeContainer()
	runner := &fakeRunner{container: c}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)

	sink := &fakeSink{}
	go func() {
		c.stdoutW.Write([]byte("hello "))
		c.stdoutW.Write([]byte("world"))
		c.finish(0, nil)
	}()

	code, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeInline,
		InlineCode: []byte("print('hi')"),
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if got := sink.collected(); got != "hello world" {
		t.Fatalf("expected streamed output %q, got %q", "hello world", got)
	}
	if runner.lastSpec.Script == nil || string(runner.lastSpec.Script) != "print('hi')" {
		t.Fatalf("expected inline script forwarded to spec, got %q", runner.lastSpec.Script)
	}
}

func TestSupervisorExecuteNonZeroExit(t *testing.T) {
	c := newFakeContainer()
	runner := &fakeRunner{container: c}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)

	go c.finish(7, nil)

	code, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeInline,
		InlineCode: []byte("raise SystemExit(7)"),
		Sink:       &fakeSink{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestSupervisorExecuteOuterTimeoutKillsAndSentinels(t *testing.T) {
	c := newFakeContainer()
	runner := &fakeRunner{container: c}
	cfg := testSandboxConfig()
	cfg.OuterTimeout = "20ms"
	sup := NewSupervisor(runner, cfg, nil, nil)

	// stdout is never written to and never closed until Kill fires, so
	// the process looks permanently hung until the watchdog acts.

	code, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeInline,
		InlineCode: []byte("while True: pass"),
		Sink:       &fakeSink{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != ExitTimeout {
		t.Fatalf("expected sentinel exit code %d, got %d", ExitTimeout, code)
	}
	if !c.wasKilled() {
		t.Fatal("expected the outer watchdog to kill the container")
	}
}

func TestSupervisorExecuteStoredModeBuildsBindMount(t *testing.T) {
	c := newFakeContainer()
	runner := &fakeRunner{container: c}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)

	go c.finish(0, nil)

	_, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeStored,
		StoredPath: "scripts/hello.py",
		UserDir:    "/srv/boxd/users/user_001",
		Sink:       &fakeSink{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.lastSpec.ScriptPath != "/mnt/user/scripts/hello.py" {
		t.Fatalf("unexpected script path: %q", runner.lastSpec.ScriptPath)
	}
	if runner.lastSpec.BindMount == nil || runner.lastSpec.BindMount.HostPath != "/srv/boxd/users/user_001" {
		t.Fatalf("expected bind mount to user dir, got %+v", runner.lastSpec.BindMount)
	}
	if runner.lastSpec.BindMount.ContainerPath != storedMountPoint {
		t.Fatalf("expected bind mount container path %q, got %q", storedMountPoint, runner.lastSpec.BindMount.ContainerPath)
	}
}

func TestSupervisorExecuteStoredModeRejectsEscapingPath(t *testing.T) {
	c := newFakeContainer()
	runner := &fakeRunner{container: c}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)

	_, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeStored,
		StoredPath: "../../etc/passwd",
		UserDir:    "/srv/boxd/users/user_001",
		Sink:       &fakeSink{},
	})
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
}

func TestValidateStoredPath(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"script.py", true},
		{"nested/dir/script.py", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.py", false},
		{"nested/../../escape.py", false},
		{"./script.py", false},
	}
	for _, tc := range cases {
		err := validateStoredPath(tc.path)
		if tc.ok && err != nil {
			t.Errorf("validateStoredPath(%q): expected nil, got %v", tc.path, err)
		}
		if !tc.ok && !errors.Is(err, ErrPathEscape) {
			t.Errorf("validateStoredPath(%q): expected ErrPathEscape, got %v", tc.path, err)
		}
	}
}

func TestSupervisorInputBlockDetectorSingleFlight(t *testing.T) {
	c := newFakeContainer()
	var psCalls int
	c.execFunc = func(args []string) ([]byte, error) {
		switch args[0] {
		case "pgrep":
			return []byte("4242\n"), nil
		case "ps":
			psCalls++
			if psCalls == 3 {
				return []byte("D\n"), nil
			}
			return []byte("R\n"), nil
		}
		return nil, nil
	}

	runner := &fakeRunner{container: c}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)
	sink := &fakeSink{inputs: []string{"42"}}

	go func() {
		// Give the detector time to observe the blocked state and write
		// input before the process "finishes".
		time.Sleep(100 * time.Millisecond)
		c.stdoutW.Write([]byte("42\n"))
		c.finish(0, nil)
	}()

	code, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeInline,
		InlineCode: []byte("print(input())"),
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if sink.calls() != 1 {
		t.Fatalf("expected exactly one RequestInput call, got %d", sink.calls())
	}
	writes := c.writes()
	if len(writes) != 1 || string(writes[0]) != "42\n" {
		t.Fatalf("expected a single stdin write of %q, got %v", "42\n", writes)
	}
}

func TestSupervisorRunnerErrorPropagates(t *testing.T) {
	runner := &fakeRunner{err: errors.New("docker daemon unreachable")}
	sup := NewSupervisor(runner, testSandboxConfig(), nil, nil)

	_, err := sup.Execute(context.Background(), StartOptions{
		Mode:       ModeInline,
		InlineCode: []byte("print(1)"),
		Sink:       &fakeSink{},
	})
	if err == nil {
		t.Fatal("expected an error when the runner fails to start a container")
	}
}

func TestModeString(t *testing.T) {
	if ModeInline.String() != "inline" {
		t.Fatalf("expected %q, got %q", "inline", ModeInline.String())
	}
	if ModeStored.String() != "stored" {
		t.Fatalf("expected %q, got %q", "stored", ModeStored.String())
	}
}
