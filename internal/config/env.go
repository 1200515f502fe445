package config

import "time"

// Env key constants. All governor configuration env vars use GOVERNOR_ prefix;
// duration values require explicit units (e.g. 5m, 40s, 2h).

// Worker command line to fork, split on whitespace (no shell quoting).
// Required; the governor refuses to start without it.
const envKeyWorkerCmd = "GOVERNOR_WORKER_CMD"

// Number of worker processes to keep alive.
const (
	envKeyPoolSize     = "GOVERNOR_POOL_SIZE"
	envMinPoolSize     = 1
	envDefaultPoolSize = 4
)

// Soft memory limit per worker. Byte sizes accept humanize syntax
// (e.g. 200MB, 512MiB). A worker above this is drained and replaced.
const envKeyMemorySoftLimit = "GOVERNOR_MEMORY_SOFT_LIMIT"

// Hard memory limit per worker. A worker at or above this is terminated
// immediately. Must be strictly greater than the soft limit.
const envKeyMemoryHardLimit = "GOVERNOR_MEMORY_HARD_LIMIT"

// Max spawn attempts per slot before the pool degrades.
const (
	envKeySpawnRetryLimit     = "GOVERNOR_SPAWN_RETRY_LIMIT"
	envDefaultSpawnRetryLimit = 3
)

// How long a draining worker may keep finishing in-flight work before
// termination is forced. Units: s, m, h (e.g. 30s).
const (
	envKeyDrainGrace     = "GOVERNOR_DRAIN_GRACE"
	envMinDrainGrace     = time.Second
	envDefaultDrainGrace = 30 * time.Second
)

// How long to wait after the quit signal before escalating to SIGKILL.
const (
	envKeyTerminationGrace     = "GOVERNOR_TERMINATION_GRACE"
	envMinTerminationGrace     = 100 * time.Millisecond
	envDefaultTerminationGrace = 5 * time.Second
)

// How long a freshly forked worker may take to print its ready line.
const (
	envKeyReadyTimeout     = "GOVERNOR_READY_TIMEOUT"
	envMinReadyTimeout     = time.Second
	envDefaultReadyTimeout = 10 * time.Second
)

// Interval of the periodic pool sweep (samples idle workers, respawns
// degraded slots). Units: s, m, h (e.g. 30s, 5m).
const (
	envKeySweepInterval     = "GOVERNOR_SWEEP_INTERVAL"
	envMinSweepInterval     = time.Second
	envDefaultSweepInterval = 30 * time.Second
)

// What to do when memory sampling keeps failing for a live worker:
// "ignore" leaves the worker as-is, "recycle" drains it after
// GOVERNOR_SAMPLE_FAILURE_LIMIT consecutive failures.
const (
	envKeySampleFailurePolicy     = "GOVERNOR_SAMPLE_FAILURE_POLICY"
	envDefaultSampleFailurePolicy = "ignore"
)

// Consecutive sampling failures tolerated before the recycle policy kicks in.
const (
	envKeySampleFailureLimit     = "GOVERNOR_SAMPLE_FAILURE_LIMIT"
	envDefaultSampleFailureLimit = 5
)

// Optional cron expression for rolling worker restarts (e.g. "0 4 * * *").
// Empty disables scheduled restarts.
const envKeyRestartSchedule = "GOVERNOR_RESTART_SCHEDULE"

// Timezone for the restart schedule (IANA, e.g. America/New_York).
const envKeyRestartTZ = "GOVERNOR_RESTART_TZ"

// Max jitter added to each scheduled restart. Units: s, m, h (e.g. 30s).
const (
	envKeyRestartJitterMax     = "GOVERNOR_RESTART_JITTER_MAX"
	envMinRestartJitterMax     = time.Second
	envDefaultRestartJitterMax = 30 * time.Second
)

// Minimum worker age before a scheduled restart may recycle it;
// 0 disables the check. Units: s, m, h (e.g. 30m).
const (
	envKeyMinWorkerAge = "GOVERNOR_MIN_WORKER_AGE"
	envMinMinWorkerAge = time.Minute
)

// Log level: debug, info, warn, error.
const envKeyLogLevel = "GOVERNOR_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "GOVERNOR_LOG_FORMAT"

// Port for health/readiness HTTP server.
const envKeyHTTPPort = "GOVERNOR_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "GOVERNOR_METRICS_PORT"

// Pinger check interval. Units: s, m, h (e.g. 10s, 1m).
const (
	envKeyPingerInterval     = "GOVERNOR_PINGER_INTERVAL"
	envMinPingerInterval     = time.Second
	envDefaultPingerInterval = 10 * time.Second
)
