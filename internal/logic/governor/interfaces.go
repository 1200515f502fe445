package governor

import "context"

// StartedProcess describes a worker process that completed its readiness
// handshake. Exited is closed by the runner once the process is gone.
type StartedProcess struct {
	PID    int
	Exited <-chan struct{}
}

// ProcessRunner is the port for forking and signalling worker processes.
// Implementations are provided by adapters in the outbound layer.
type ProcessRunner interface {
	// SpawnCommand forks one worker and blocks until it is ready to serve.
	SpawnCommand(ctx context.Context) (*StartedProcess, error)

	// SignalQuitCommand asks a worker to exit on its own (SIGTERM or
	// equivalent).
	SignalQuitCommand(ctx context.Context, pid int) error

	// KillCommand terminates a worker unconditionally.
	KillCommand(ctx context.Context, pid int) error
}

// MemorySampler is the port for reading a worker's resident memory.
// A failed read must be surfaced as an error, never reported as zero.
type MemorySampler interface {
	SampleMemoryQuery(ctx context.Context, pid int) (uint64, error)
}

// notFound is a private interface for checking "process gone" errors
// without importing the adapter package.
type notFound interface {
	IsNotFound()
}
