package sandbox

import (
	"bytes"
	"context"
	"strconv"
	"time"
)

// resolvePID repeatedly greps the container for path's running process
// until a numeric PID is found, the container exits, or ctx is done.
// The payload may not yet be scheduled when the run command returns,
// so discovery retries at pollInterval.
func resolvePID(ctx context.Context, c Container, path string, pollInterval time.Duration, alive func() bool) (int, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.Exec(ctx, "pgrep", "-f", path)
		if err == nil {
			if pid, ok := parsePID(out); ok {
				return pid, nil
			}
		}

		if !alive() {
			return 0, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parsePID(out []byte) (int, bool) {
	line := bytes.TrimSpace(out)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(string(line))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
