// Package sandbox implements the container supervisor and the
// input-block detector: it spawns one Docker container per execution,
// streams combined stdout/stderr back in chunks, discovers the
// payload's PID, and polls for an uninterruptible-wait state to relay
// typed input.
package sandbox

import "errors"

var (
	// ErrPathEscape is returned when a stored-mode execution path would
	// leave the user's bind-mounted tree.
	ErrPathEscape = errors.New("sandbox: path escapes user tree")

	// ErrAlreadyRunning names a second execution attempted while one is
	// still running. Supervisor keeps no in-flight state and does not
	// return it.
	ErrAlreadyRunning = errors.New("sandbox: execution already running")

	// ErrNotRunning names input submitted for an execution that has
	// already finished. Supervisor does not return it.
	ErrNotRunning = errors.New("sandbox: no execution running")

	// ExitTimeout is the distinguished exit code sentinel surfaced to the
	// client when the outer watchdog kills the container.
	ExitTimeout = 3
)
