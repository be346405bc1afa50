package metrics

import "time"

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

func (n *NoopCollector) ConnectionOpened() {}
func (n *NoopCollector) ConnectionClosed() {}

func (n *NoopCollector) AuthAttempt(success bool) {}

func (n *NoopCollector) CommandProcessed(code string) {}

func (n *NoopCollector) ExecutionStarted(mode string) {}
func (n *NoopCollector) ExecutionFinished(mode string, duration time.Duration, timedOut bool) {
}

func (n *NoopCollector) PoolAcquireWait(d time.Duration) {}
func (n *NoopCollector) PoolConnectionPoisoned()         {}

func (n *NoopCollector) SandboxSpawned() {}
func (n *NoopCollector) SandboxKilled()  {}
