package governor

import "errors"

var (
	ErrInvalidLimits   = errors.New("invalid memory limits")
	ErrInvalidPoolSize = errors.New("invalid pool size")
	ErrNoServingWorker = errors.New("no serving worker available")
	ErrPoolClosed      = errors.New("pool is shutting down")
	ErrSpawnWorker     = errors.New("spawn worker")
	ErrWorkerKilled    = errors.New("worker terminated while unit in flight")
	ErrWorkerExited    = errors.New("worker process exited")
)
