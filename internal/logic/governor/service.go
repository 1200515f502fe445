package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skillcoder/workermem-governor/internal/infra/cronparser"
	"github.com/skillcoder/workermem-governor/internal/infra/metrics"
)

// Sample failure policies (spec'd per worker, applied on consecutive failures).
const (
	SampleFailureIgnore  = "ignore"
	SampleFailureRecycle = "recycle"
)

const (
	spawnBackoffBase = 250 * time.Millisecond
	spawnBackoffMax  = 8 * time.Second
)

// Config is the immutable supervisor configuration.
type Config struct {
	PoolSize        int
	Limits          Limits
	SpawnRetryLimit int

	DrainGrace       time.Duration
	TerminationGrace time.Duration
	SweepInterval    time.Duration

	SampleFailurePolicy string
	SampleFailureLimit  int

	RestartSchedule  string
	RestartTZ        string
	RestartJitterMax time.Duration
	MinWorkerAge     time.Duration
}

// worker is the supervisor-owned handle for one managed process.
// All fields except the channels are guarded by Service.mu.
type worker struct {
	id        string
	pid       int
	state     WorkerState
	startedAt time.Time

	units           uint64
	inFlight        int
	lastSampleBytes uint64
	lastSampleAt    time.Time
	sampleFailures  int

	// quitSent means the supervisor initiated this worker's termination;
	// killing additionally means the termination is forced.
	quitSent bool
	killing  bool
	deadErr  error

	exited  <-chan struct{}
	drained chan struct{}
	dead    chan struct{}
}

// Service supervises a fixed pool of worker processes: it forks them,
// dispatches units of work to Serving workers, samples resident memory
// after each completed unit (and periodically), and recycles workers that
// cross the configured limits while keeping pool capacity.
//
// All pool-state mutations are serialized under one mutex; sampling runs
// concurrently because it is read-only.
type Service struct {
	logger  *slog.Logger
	runner  ProcessRunner
	sampler MemorySampler
	cron    *cronparser.Parser
	cfg     Config

	mu        sync.Mutex
	workers   map[string]*worker
	degraded  int
	closed    bool
	lastSweep time.Time

	events     chan Event
	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
	bg         sync.WaitGroup
}

// New creates a new governor service.
func New(
	logger *slog.Logger,
	runner ProcessRunner,
	sampler MemorySampler,
	cfg Config,
) (*Service, error) {
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, cfg.PoolSize)
	}

	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}

	if cfg.SpawnRetryLimit < 1 {
		cfg.SpawnRetryLimit = 1
	}

	if cfg.SampleFailurePolicy == "" {
		cfg.SampleFailurePolicy = SampleFailureIgnore
	}

	return &Service{
		logger:  logger,
		runner:  runner,
		sampler: sampler,
		cron:    cronparser.New(),
		cfg:     cfg,
		workers: make(map[string]*worker, cfg.PoolSize),
		events:  make(chan Event, eventBufferSize),
		ready:   make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Name returns the name of the governor component.
func (s *Service) Name() string {
	return "workermem-governor"
}

// Start launches the supervisor control loop.
func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "governor service is shutting down, skipping start")

		return nil
	}

	go s.run(ctx)

	return nil
}

// Ready returns a channel that is closed once the initial pool is up.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Ping reports pool health: not ready, degraded capacity, or a stalled
// sweep loop all count as unhealthy.
func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	default:
		return fmt.Errorf("governor service is not ready")
	}

	s.mu.Lock()
	degraded := s.degraded
	lastSweep := s.lastSweep
	s.mu.Unlock()

	if degraded > 0 {
		return fmt.Errorf("pool degraded: %d of %d slots empty", degraded, s.cfg.PoolSize)
	}

	if age := time.Since(lastSweep); age > 2*s.cfg.SweepInterval {
		return fmt.Errorf("last sweep was too long ago: %s", age.Round(time.Second))
	}

	return nil
}

// Capacity returns the number of slots currently backed by a live worker.
func (s *Service) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg.PoolSize - s.degraded
}

// DegradedSlots returns the number of slots without a live worker.
func (s *Service) DegradedSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.degraded
}

// Snapshot returns a copy of the current pool state, oldest worker first.
func (s *Service) Snapshot() []WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, WorkerInfo{
			ID:              w.id,
			PID:             w.pid,
			State:           w.state,
			StartedAt:       w.startedAt,
			UnitsCompleted:  w.units,
			InFlight:        w.inFlight,
			LastSampleBytes: w.lastSampleBytes,
			LastSampleAt:    w.lastSampleAt,
		})
	}

	slices.SortFunc(out, func(a, b WorkerInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	return out
}

// Checkout leases the least-loaded Serving worker for one unit of work.
// Draining and Terminated workers are never eligible.
func (s *Service) Checkout(ctx context.Context) (*Lease, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrPoolClosed
	}

	var best *worker

	for _, w := range s.workers {
		if w.state != StateServing {
			continue
		}

		if best == nil || w.inFlight < best.inFlight {
			best = w
		}
	}

	if best == nil {
		return nil, ErrNoServingWorker
	}

	best.inFlight++

	return &Lease{svc: s, w: best}, nil
}

// run is the supervisor control loop: initial pool, periodic sweep,
// scheduled rolling restarts.
func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("governor", "run")

	metrics.SetPoolCapacity(s.cfg.PoolSize)

	for range s.cfg.PoolSize {
		s.spawnSlot(ctx, false)
	}

	close(s.ready)
	s.setLastSweep()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	var restartC <-chan time.Time

	var restartTimer *time.Timer

	if s.cfg.RestartSchedule != "" {
		next, err := s.cron.NextAfterWithJitter(
			s.cfg.RestartSchedule, s.cfg.RestartTZ, time.Now(), s.cfg.RestartJitterMax)
		if err != nil {
			logger.ErrorContext(ctx, "invalid restart schedule, scheduled restarts disabled",
				"schedule", s.cfg.RestartSchedule,
				"reason", err,
			)
		} else {
			restartTimer = time.NewTimer(time.Until(next))
			defer restartTimer.Stop()

			restartC = restartTimer.C

			logger.InfoContext(ctx, "scheduled restarts enabled", "next", next)
		}
	}

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx, logger)
			s.setLastSweep()
		case <-restartC:
			s.rollingRestart(ctx, logger)

			next, err := s.cron.NextAfterWithJitter(
				s.cfg.RestartSchedule, s.cfg.RestartTZ, time.Now(), s.cfg.RestartJitterMax)
			if err == nil {
				restartTimer.Reset(time.Until(next))
				logger.InfoContext(ctx, "next scheduled restart", "next", next)
			}
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating governor loop")

			return
		}
	}
}

// spawnSlot fills one pool slot, degrading the pool if the retry ceiling
// is exhausted. When restoring a previously degraded slot, success is
// announced as a capacity restoration.
func (s *Service) spawnSlot(ctx context.Context, restoring bool) {
	err := s.spawnWorker(ctx)
	if err == nil {
		if restoring {
			s.mu.Lock()
			capacity := s.cfg.PoolSize - s.degraded
			s.mu.Unlock()

			s.publish(Event{Type: EventPoolRestored, Capacity: capacity})
			s.logger.Info("pool capacity restored", "capacity", capacity)
		}

		return
	}

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.degraded++
	degraded := s.degraded
	capacity := s.cfg.PoolSize - s.degraded
	s.mu.Unlock()

	metrics.RecordSpawnFailure()
	metrics.SetDegradedSlots(degraded)
	s.publish(Event{Type: EventPoolDegraded, Capacity: capacity, Err: err})
	s.logger.Error("pool degraded: worker slot left empty",
		"reason", err,
		"capacity", capacity,
		"poolSize", s.cfg.PoolSize,
	)
}

// spawnWorker forks one worker with bounded exponential backoff between
// attempts. This is the only place in the governor where retries occur.
func (s *Service) spawnWorker(ctx context.Context) error {
	id := uuid.NewString()
	s.publish(Event{Type: EventWorkerStarting, WorkerID: id, State: StateStarting})

	backoff := spawnBackoffBase

	var lastErr error

	for attempt := 1; attempt <= s.cfg.SpawnRetryLimit; attempt++ {
		if attempt > 1 {
			metrics.RecordSpawnRetry()
			s.publish(Event{Type: EventSpawnRetried, WorkerID: id, Err: lastErr})

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrSpawnWorker, ctx.Err())
			case <-time.After(backoff):
			}

			backoff = min(backoff*2, spawnBackoffMax)
		}

		proc, err := s.runner.SpawnCommand(ctx)
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "worker spawn attempt failed",
				"worker", id,
				"attempt", attempt,
				"reason", err,
			)

			continue
		}

		w := &worker{
			id:        id,
			pid:       proc.PID,
			state:     StateServing,
			startedAt: time.Now(),
			exited:    proc.Exited,
			drained:   make(chan struct{}),
			dead:      make(chan struct{}),
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()

			_ = s.runner.KillCommand(ctx, w.pid)

			return fmt.Errorf("%w: %w", ErrSpawnWorker, ErrPoolClosed)
		}

		s.workers[w.id] = w
		live := len(s.workers)
		s.mu.Unlock()

		metrics.SetLiveWorkers(live)
		s.publish(Event{Type: EventWorkerReady, WorkerID: id, PID: w.pid, State: StateServing})
		s.logger.InfoContext(ctx, "worker ready", "worker", id, "pid", w.pid)

		go s.watchExit(ctx, w)

		return nil
	}

	return fmt.Errorf("%w: %w", ErrSpawnWorker, lastErr)
}

// watchExit replaces a worker that died without the supervisor asking.
func (s *Service) watchExit(ctx context.Context, w *worker) {
	select {
	case <-ctx.Done():
		return
	case <-w.exited:
	}

	s.mu.Lock()
	quitSent := w.quitSent
	replace := !s.closed && !quitSent && w.state == StateServing
	s.mu.Unlock()

	// An exit the supervisor asked for is not a failure cause.
	cause := ErrWorkerExited
	if quitSent {
		cause = nil
	}

	s.finishTermination(ctx, w, cause)

	if replace {
		s.logger.WarnContext(ctx, "worker exited unexpectedly, replacing",
			"worker", w.id,
			"pid", w.pid,
		)

		s.bg.Add(1)

		go func() {
			defer s.bg.Done()
			s.spawnSlot(ctx, false)
		}()
	}
}

// completeUnit is the post-work hook behind Lease.Done.
func (s *Service) completeUnit(ctx context.Context, w *worker) {
	s.mu.Lock()
	w.units++

	if w.inFlight > 0 {
		w.inFlight--
	}

	if w.state == StateDraining && w.inFlight == 0 {
		select {
		case <-w.drained:
		default:
			close(w.drained)
		}
	}

	state := w.state
	s.mu.Unlock()

	metrics.RecordUnitCompleted()

	if state == StateServing {
		s.checkWorker(ctx, w)
	}
}

// checkWorker samples one worker's memory and executes the policy verdict.
func (s *Service) checkWorker(ctx context.Context, w *worker) {
	memBytes, err := s.sampler.SampleMemoryQuery(ctx, w.pid)
	if err != nil {
		s.handleSampleFailure(ctx, w, err)

		return
	}

	sample := Sample{
		WorkerID:    w.id,
		PID:         w.pid,
		MemoryBytes: memBytes,
		TakenAt:     time.Now(),
	}

	s.mu.Lock()
	if w.state == StateTerminated {
		s.mu.Unlock()

		return
	}

	w.sampleFailures = 0
	w.lastSampleBytes = memBytes
	w.lastSampleAt = sample.TakenAt
	s.mu.Unlock()

	metrics.SetWorkerMemory(w.id, memBytes)
	s.publish(Event{Type: EventSampleTaken, WorkerID: w.id, PID: w.pid, MemoryBytes: memBytes})

	switch Evaluate(sample, s.cfg.Limits) {
	case ActionRecycleForced:
		s.logger.WarnContext(ctx, "worker over hard memory limit, terminating",
			"worker", w.id,
			"pid", w.pid,
			"memory", memBytes,
			"hardLimit", s.cfg.Limits.HardBytes,
		)
		s.recycleForced(ctx, w, ReasonHardLimit)
	case ActionRecycleGraceful:
		s.logger.InfoContext(ctx, "worker over soft memory limit, draining",
			"worker", w.id,
			"pid", w.pid,
			"memory", memBytes,
			"softLimit", s.cfg.Limits.SoftBytes,
		)
		s.recycleGraceful(ctx, w, ReasonSoftLimit)
	case ActionContinue:
	}
}

// handleSampleFailure applies the configured sampling-failure policy.
// The worker's state is never changed on a failed sample alone: an
// unreadable metric is neither "safe" nor "over limit".
func (s *Service) handleSampleFailure(ctx context.Context, w *worker, err error) {
	var target notFound
	if errors.As(err, &target) {
		// Process already gone; the exit watcher handles replacement.
		s.logger.DebugContext(ctx, "sampled worker is gone", "worker", w.id, "pid", w.pid)

		return
	}

	metrics.RecordSampleError()
	s.publish(Event{Type: EventSampleFailed, WorkerID: w.id, PID: w.pid, Err: err})
	s.logger.WarnContext(ctx, "memory sample failed, worker state unchanged",
		"worker", w.id,
		"pid", w.pid,
		"reason", err,
	)

	s.mu.Lock()
	w.sampleFailures++
	failures := w.sampleFailures
	s.mu.Unlock()

	if s.cfg.SampleFailurePolicy == SampleFailureRecycle && failures >= s.cfg.SampleFailureLimit {
		s.logger.WarnContext(ctx, "recycling worker after repeated sample failures",
			"worker", w.id,
			"failures", failures,
		)
		s.recycleGraceful(ctx, w, ReasonSampleFailures)
	}
}

// recycleGraceful drains the worker and replaces it. The replacement is
// pre-spawned at drain start so capacity is not lost while the old worker
// finishes in-flight work.
func (s *Service) recycleGraceful(ctx context.Context, w *worker, reason string) {
	s.mu.Lock()
	if w.state != StateServing {
		s.mu.Unlock()

		return
	}

	w.state = StateDraining

	if w.inFlight == 0 {
		close(w.drained)
	}
	s.mu.Unlock()

	metrics.RecordRecycle(reason)
	s.publish(Event{
		Type:     EventWorkerDraining,
		WorkerID: w.id,
		PID:      w.pid,
		State:    StateDraining,
		Reason:   reason,
	})

	s.bg.Add(2)

	go func() {
		defer s.bg.Done()
		s.spawnSlot(ctx, false)
	}()

	go func() {
		defer s.bg.Done()

		select {
		case <-w.drained:
		case <-w.exited:
			s.finishTermination(ctx, w, ErrWorkerExited)

			return
		case <-time.After(s.cfg.DrainGrace):
			s.logger.WarnContext(ctx, "drain grace expired, forcing termination",
				"worker", w.id,
				"pid", w.pid,
			)
			s.markKilling(w)
			s.forceKill(ctx, w)
			s.finishTermination(ctx, w, ErrWorkerKilled)

			return
		case <-ctx.Done():
			return
		}

		s.mu.Lock()
		w.quitSent = true
		s.mu.Unlock()

		s.forceKill(ctx, w)
		s.finishTermination(ctx, w, nil)
	}()
}

// recycleForced terminates the worker immediately, bypassing Draining.
// In-flight work on this worker fails; the supervisor does not wait.
func (s *Service) recycleForced(ctx context.Context, w *worker, reason string) {
	s.mu.Lock()
	if w.state == StateTerminated || w.killing {
		s.mu.Unlock()

		return
	}

	// A worker already draining has its replacement in flight.
	spawnReplacement := w.state == StateServing

	w.killing = true
	w.quitSent = true

	if w.deadErr == nil {
		w.deadErr = ErrWorkerKilled
	}
	s.mu.Unlock()

	metrics.RecordRecycle(reason)

	if spawnReplacement {
		s.bg.Add(1)

		go func() {
			defer s.bg.Done()
			s.spawnSlot(ctx, false)
		}()
	}

	s.bg.Add(1)

	go func() {
		defer s.bg.Done()
		s.forceKill(ctx, w)
		s.finishTermination(ctx, w, ErrWorkerKilled)
	}()
}

func (s *Service) markKilling(w *worker) {
	s.mu.Lock()
	w.quitSent = true
	w.killing = true

	if w.deadErr == nil {
		w.deadErr = ErrWorkerKilled
	}
	s.mu.Unlock()
}

// forceKill signals quit, escalates to kill after the termination grace,
// and raises a pool-health alert if the process survives even that.
func (s *Service) forceKill(ctx context.Context, w *worker) {
	if err := s.runner.SignalQuitCommand(ctx, w.pid); err != nil {
		s.logger.DebugContext(ctx, "quit signal failed", "worker", w.id, "reason", err)
	}

	select {
	case <-w.exited:
		return
	case <-time.After(s.cfg.TerminationGrace):
	}

	metrics.RecordTerminationEscalated()
	s.publish(Event{Type: EventTerminationEscalated, WorkerID: w.id, PID: w.pid})
	s.logger.WarnContext(ctx, "worker ignored quit signal, killing",
		"worker", w.id,
		"pid", w.pid,
	)

	if err := s.runner.KillCommand(ctx, w.pid); err != nil {
		s.logger.DebugContext(ctx, "kill failed", "worker", w.id, "reason", err)
	}

	select {
	case <-w.exited:
	case <-time.After(s.cfg.TerminationGrace):
		s.publish(Event{Type: EventPoolUnhealthy, WorkerID: w.id, PID: w.pid})
		s.logger.ErrorContext(ctx, "worker survived kill within grace period, pool health degraded",
			"worker", w.id,
			"pid", w.pid,
		)
	}
}

// finishTermination moves the worker into the absorbing Terminated state
// exactly once and drops it from the pool.
func (s *Service) finishTermination(ctx context.Context, w *worker, cause error) {
	s.mu.Lock()
	if w.state == StateTerminated {
		s.mu.Unlock()

		return
	}

	w.state = StateTerminated

	if w.deadErr == nil {
		w.deadErr = cause
	}

	delete(s.workers, w.id)
	live := len(s.workers)
	units := w.units
	close(w.dead)
	s.mu.Unlock()

	metrics.SetLiveWorkers(live)
	metrics.ForgetWorker(w.id)
	s.publish(Event{Type: EventWorkerTerminated, WorkerID: w.id, PID: w.pid, State: StateTerminated})
	s.logger.InfoContext(ctx, "worker terminated", "worker", w.id, "pid", w.pid, "units", units)
}

// sweep samples all Serving workers and re-attempts degraded slots.
// Sampling is read-only and runs concurrently across workers.
func (s *Service) sweep(ctx context.Context, logger *slog.Logger) {
	s.mu.Lock()
	serving := make([]*worker, 0, len(s.workers))

	for _, w := range s.workers {
		if w.state == StateServing {
			serving = append(serving, w)
		}
	}

	degraded := s.degraded
	s.degraded = 0
	s.mu.Unlock()

	if degraded > 0 {
		metrics.SetDegradedSlots(0)
		logger.InfoContext(ctx, "retrying degraded slots", "count", degraded)

		for range degraded {
			s.bg.Add(1)

			go func() {
				defer s.bg.Done()
				s.spawnSlot(ctx, true)
			}()
		}
	}

	var wg sync.WaitGroup

	for _, w := range serving {
		wg.Add(1)

		go func(w *worker) {
			defer wg.Done()
			s.checkWorker(ctx, w)
		}(w)
	}

	wg.Wait()

	logger.DebugContext(ctx, "pool sweep complete", "sampled", len(serving))
}

// rollingRestart recycles aged workers one at a time so a scheduled
// restart never costs more than one worker of capacity.
func (s *Service) rollingRestart(ctx context.Context, logger *slog.Logger) {
	s.mu.Lock()
	candidates := make([]*worker, 0, len(s.workers))

	for _, w := range s.workers {
		if w.state == StateServing {
			candidates = append(candidates, w)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(candidates, func(a, b *worker) int {
		return a.startedAt.Compare(b.startedAt)
	})

	recycled := 0

	for _, w := range candidates {
		if ctx.Err() != nil {
			return
		}

		if s.cfg.MinWorkerAge > 0 && time.Since(w.startedAt) < s.cfg.MinWorkerAge {
			continue
		}

		logger.InfoContext(ctx, "scheduled restart: recycling worker",
			"worker", w.id,
			"pid", w.pid,
			"age", time.Since(w.startedAt).Round(time.Second),
		)
		s.recycleGraceful(ctx, w, ReasonScheduled)

		select {
		case <-w.dead:
		case <-ctx.Done():
			return
		}

		recycled++
	}

	logger.InfoContext(ctx, "scheduled restart complete", "recycled", recycled)
}

// Shutdown stops the control loop and terminates all workers.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "governor service is already shutting down, skipping shutdown")

		return nil
	}

	s.logger.InfoContext(ctx, "shutting down governor service")

	s.mu.Lock()
	s.closed = true
	workers := make([]*worker, 0, len(s.workers))

	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	// The control loop exits on context cancellation driven by the caller.
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before governor loop exited: %w", ctx.Err())
	case <-s.doneCh:
	}

	var wg sync.WaitGroup

	for _, w := range workers {
		wg.Add(1)

		go func(w *worker) {
			defer wg.Done()

			s.mu.Lock()
			if w.state == StateTerminated {
				s.mu.Unlock()

				return
			}

			w.quitSent = true
			w.killing = true

			if w.deadErr == nil {
				w.deadErr = ErrPoolClosed
			}
			s.mu.Unlock()

			s.forceKill(ctx, w)
			s.finishTermination(ctx, w, ErrPoolClosed)
		}(w)
	}

	done := make(chan struct{})

	go func() {
		wg.Wait()
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before workers exited: %w", ctx.Err())
	case <-done:
	}

	s.logger.InfoContext(ctx, "governor service shut down")

	return nil
}

func (s *Service) setLastSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSweep = time.Now()
}
