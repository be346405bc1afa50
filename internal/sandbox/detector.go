package sandbox

import (
	"bytes"
	"context"
	"strconv"
	"time"
)

// detector implements component C: it polls the payload's scheduler
// state and, when the process is blocked on input, asks the caller
// for exactly one line and writes it to the payload's stdin. It is
// single-flighted by construction — the poll loop does not resume
// until onBlocked has returned.
type detector struct {
	container    Container
	pid          int
	pollInterval time.Duration
}

// onBlocked is called once per detected block; it must return the
// line to inject, or an error if the execution ended while waiting.
type onBlockedFunc func(ctx context.Context) (string, error)

func (d *detector) run(ctx context.Context, alive func() bool, onBlocked onBlockedFunc) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !alive() {
			return nil
		}

		blocked, err := d.queryBlocked(ctx)
		if err != nil || !blocked {
			continue
		}

		line, err := onBlocked(ctx)
		if err != nil {
			return nil
		}

		if !bytes.HasSuffix([]byte(line), []byte("\n")) {
			line += "\n"
		}
		if err := d.container.WriteStdin(ctx, d.pid, []byte(line)); err != nil {
			return err
		}
	}
}

// queryBlocked reports whether the payload is currently in
// uninterruptible sleep — the scheduler state `ps` reports as "D",
// used here as the portable proxy for "blocked reading stdin".
func (d *detector) queryBlocked(ctx context.Context) (bool, error) {
	out, err := d.container.Exec(ctx, "ps", "-o", "state=", "-p", strconv.Itoa(d.pid))
	if err != nil {
		return false, err
	}
	state := bytes.TrimSpace(out)
	return bytes.Equal(state, []byte("D")), nil
}
