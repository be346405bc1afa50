// Package metrics provides interfaces and implementations for collecting
// gateway, pool, and sandbox metrics. This package defines the Collector
// interface for recording metrics and the Server interface for exposing
// them.
package metrics

import (
	"context"
	"time"
)

// Collector defines the interface for recording server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Authentication metrics
	AuthAttempt(success bool)

	// Command metrics
	CommandProcessed(code string)

	// Execution metrics
	ExecutionStarted(mode string)
	ExecutionFinished(mode string, duration time.Duration, timedOut bool)

	// Backend connection pool metrics
	PoolAcquireWait(d time.Duration)
	PoolConnectionPoisoned()

	// Sandbox lifecycle metrics
	SandboxSpawned()
	SandboxKilled()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
