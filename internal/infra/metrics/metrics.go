package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var poolCapacity = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "governor_pool_capacity",
		Help: "Configured worker pool size.",
	},
)

var poolLiveWorkers = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "governor_pool_live_workers",
		Help: "Workers currently in a non-terminated state.",
	},
)

var poolDegradedSlots = promauto.With(prometheus.DefaultRegisterer).NewGauge(
	prometheus.GaugeOpts{
		Name: "governor_pool_degraded_slots",
		Help: "Pool slots without a live worker after spawn retries were exhausted.",
	},
)

var workerMemoryBytes = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "governor_worker_memory_bytes",
		Help: "Last sampled resident memory per worker.",
	},
	[]string{"worker"},
)

var recyclesTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "governor_worker_recycles_total",
		Help: "Total worker recycles by reason (soft_limit, hard_limit, scheduled, sample_failures).",
	},
	[]string{"reason"},
)

var spawnRetriesTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "governor_spawn_retries_total",
		Help: "Total failed spawn attempts that were retried with backoff.",
	},
)

var spawnFailuresTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "governor_spawn_failures_total",
		Help: "Total spawns abandoned after the retry ceiling, degrading the pool.",
	},
)

var sampleErrorsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "governor_sample_errors_total",
		Help: "Total memory sampling failures (process-gone samples excluded).",
	},
)

var unitsCompletedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "governor_units_completed_total",
		Help: "Total units of work completed across all workers.",
	},
)

var terminationEscalationsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
	prometheus.CounterOpts{
		Name: "governor_termination_escalations_total",
		Help: "Total terminations escalated to SIGKILL after the grace period.",
	},
)

var hostMemoryBytes = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "governor_host_memory_bytes",
		Help: "Host memory accounting (kind: total, used).",
	},
	[]string{"kind"},
)

// SetPoolCapacity records the configured pool size.
func SetPoolCapacity(n int) {
	poolCapacity.Set(float64(n))
}

// SetLiveWorkers records the current number of non-terminated workers.
func SetLiveWorkers(n int) {
	poolLiveWorkers.Set(float64(n))
}

// SetDegradedSlots records the current number of degraded pool slots.
func SetDegradedSlots(n int) {
	poolDegradedSlots.Set(float64(n))
}

// SetWorkerMemory records the last resident memory sample for a worker.
func SetWorkerMemory(workerID string, bytes uint64) {
	workerMemoryBytes.WithLabelValues(workerID).Set(float64(bytes))
}

// ForgetWorker drops the per-worker memory series once a worker terminates.
func ForgetWorker(workerID string) {
	workerMemoryBytes.DeleteLabelValues(workerID)
}

// RecordRecycle increments the recycle counter for the given reason.
func RecordRecycle(reason string) {
	recyclesTotal.WithLabelValues(reason).Inc()
}

// RecordSpawnRetry increments the spawn retry counter.
func RecordSpawnRetry() {
	spawnRetriesTotal.Inc()
}

// RecordSpawnFailure increments the abandoned-spawn counter.
func RecordSpawnFailure() {
	spawnFailuresTotal.Inc()
}

// RecordSampleError increments the sampling failure counter.
func RecordSampleError() {
	sampleErrorsTotal.Inc()
}

// RecordUnitCompleted increments the completed units counter.
func RecordUnitCompleted() {
	unitsCompletedTotal.Inc()
}

// RecordTerminationEscalated increments the SIGKILL escalation counter.
func RecordTerminationEscalated() {
	terminationEscalationsTotal.Inc()
}

// SetHostMemory records the host memory totals from the last snapshot.
func SetHostMemory(totalBytes, usedBytes uint64) {
	hostMemoryBytes.WithLabelValues("total").Set(float64(totalBytes))
	hostMemoryBytes.WithLabelValues("used").Set(float64(usedBytes))
}
