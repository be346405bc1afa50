package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	authAttemptsTotal *prometheus.CounterVec

	commandsTotal *prometheus.CounterVec

	executionsStartedTotal  *prometheus.CounterVec
	executionsFinishedTotal *prometheus.CounterVec
	executionDurationSecs   *prometheus.HistogramVec

	poolAcquireWaitSecs     prometheus.Histogram
	poolConnectionsPoisoned prometheus.Counter

	sandboxesSpawnedTotal prometheus.Counter
	sandboxesKilledTotal  prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxd_connections_total",
			Help: "Total number of gateway connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boxd_connections_active",
			Help: "Number of currently active gateway connections.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxd_auth_attempts_total",
			Help: "Total number of login attempts.",
		}, []string{"result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxd_commands_total",
			Help: "Total number of gateway commands processed, by wire code.",
		}, []string{"code"}),

		executionsStartedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxd_executions_started_total",
			Help: "Total number of sandbox executions started.",
		}, []string{"mode"}),
		executionsFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxd_executions_finished_total",
			Help: "Total number of sandbox executions finished, by mode and timeout status.",
		}, []string{"mode", "timed_out"}),
		executionDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxd_execution_duration_seconds",
			Help:    "Sandbox execution wall-clock duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"mode"}),

		poolAcquireWaitSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boxd_pool_acquire_wait_seconds",
			Help:    "Time spent blocked waiting to acquire a backend pool connection.",
			Buckets: prometheus.DefBuckets,
		}),
		poolConnectionsPoisoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxd_pool_connections_poisoned_total",
			Help: "Total number of backend pool connections re-dialed after a failed call.",
		}),

		sandboxesSpawnedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxd_sandboxes_spawned_total",
			Help: "Total number of sandbox containers spawned.",
		}),
		sandboxesKilledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxd_sandboxes_killed_total",
			Help: "Total number of sandbox containers forcibly killed.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.executionsStartedTotal,
		c.executionsFinishedTotal,
		c.executionDurationSecs,
		c.poolAcquireWaitSecs,
		c.poolConnectionsPoisoned,
		c.sandboxesSpawnedTotal,
		c.sandboxesKilledTotal,
	)

	return c
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) CommandProcessed(code string) {
	c.commandsTotal.WithLabelValues(code).Inc()
}

func (c *PrometheusCollector) ExecutionStarted(mode string) {
	c.executionsStartedTotal.WithLabelValues(mode).Inc()
}

func (c *PrometheusCollector) ExecutionFinished(mode string, duration time.Duration, timedOut bool) {
	timedOutLabel := "false"
	if timedOut {
		timedOutLabel = "true"
	}
	c.executionsFinishedTotal.WithLabelValues(mode, timedOutLabel).Inc()
	c.executionDurationSecs.WithLabelValues(mode).Observe(duration.Seconds())
}

func (c *PrometheusCollector) PoolAcquireWait(d time.Duration) {
	c.poolAcquireWaitSecs.Observe(d.Seconds())
}

func (c *PrometheusCollector) PoolConnectionPoisoned() {
	c.poolConnectionsPoisoned.Inc()
}

func (c *PrometheusCollector) SandboxSpawned() {
	c.sandboxesSpawnedTotal.Inc()
}

func (c *PrometheusCollector) SandboxKilled() {
	c.sandboxesKilledTotal.Inc()
}
