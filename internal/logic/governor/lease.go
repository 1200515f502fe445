package governor

import (
	"context"
	"sync"
)

// Lease is a claim on one Serving worker for a single unit of work.
// It is handed out by Checkout and closed out by Done.
type Lease struct {
	svc  *Service
	w    *worker
	once sync.Once
}

// WorkerID returns the id of the leased worker.
func (l *Lease) WorkerID() string {
	return l.w.id
}

// PID returns the process id of the leased worker.
func (l *Lease) PID() int {
	return l.w.pid
}

// Released is closed when the leased worker terminates. A unit running on
// a forcibly recycled worker must observe this and fail, not wait for a
// completion that will never come.
func (l *Lease) Released() <-chan struct{} {
	return l.w.dead
}

// Err reports why the worker went away. Meaningful once Released is closed.
func (l *Lease) Err() error {
	l.svc.mu.Lock()
	defer l.svc.mu.Unlock()

	return l.w.deadErr
}

// Done is the post-work hook: it records the completed unit, samples the
// worker's memory and applies the limit policy. Calling it more than once
// is a no-op.
func (l *Lease) Done(ctx context.Context) {
	l.once.Do(func() {
		l.svc.completeUnit(ctx, l.w)
	})
}
