// Package pool implements the fixed-size backend connection pool: a
// bounded set of handshake-complete transport.Conn sessions leased out
// to callers with guaranteed release.
package pool

import "errors"

var (
	// ErrClosed is returned by Acquire once the pool has been Closed.
	ErrClosed = errors.New("pool: closed")

	// ErrAcquireTimeout is returned when an acquire deadline or a
	// caller's context expires before a connection becomes free.
	ErrAcquireTimeout = errors.New("pool: acquire timed out")
)
