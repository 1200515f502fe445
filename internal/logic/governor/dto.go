package governor

import (
	"fmt"
	"time"
)

// Action is the policy verdict for one memory sample. Derived, never stored.
type Action int

const (
	// ActionContinue leaves the worker serving.
	ActionContinue Action = iota

	// ActionRecycleGraceful drains the worker and replaces it once
	// in-flight work has finished.
	ActionRecycleGraceful

	// ActionRecycleForced terminates the worker immediately, without
	// waiting for in-flight work.
	ActionRecycleForced
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionRecycleGraceful:
		return "recycle_graceful"
	case ActionRecycleForced:
		return "recycle_forced"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// WorkerState is the lifecycle state of a managed worker process.
type WorkerState string

const (
	// StateStarting covers fork through the readiness handshake.
	StateStarting WorkerState = "starting"

	// StateServing means the worker accepts dispatched units of work.
	StateServing WorkerState = "serving"

	// StateDraining means the worker finishes in-flight work but accepts
	// no new units.
	StateDraining WorkerState = "draining"

	// StateTerminated is absorbing; terminated workers are never sampled.
	StateTerminated WorkerState = "terminated"
)

// Limits holds the per-worker memory thresholds. Immutable after validation.
type Limits struct {
	SoftBytes uint64
	HardBytes uint64
}

// Validate enforces 0 < soft < hard.
func (l Limits) Validate() error {
	if l.SoftBytes == 0 || l.HardBytes == 0 {
		return fmt.Errorf("%w: limits must be positive", ErrInvalidLimits)
	}

	if l.SoftBytes >= l.HardBytes {
		return fmt.Errorf("%w: soft %d must be below hard %d",
			ErrInvalidLimits, l.SoftBytes, l.HardBytes)
	}

	return nil
}

// Sample is a point-in-time resident memory reading for one worker.
type Sample struct {
	WorkerID    string
	PID         int
	MemoryBytes uint64
	TakenAt     time.Time
}

// Recycle reasons, used for events and the recycle counter metric.
const (
	ReasonSoftLimit      = "soft_limit"
	ReasonHardLimit      = "hard_limit"
	ReasonScheduled      = "scheduled"
	ReasonSampleFailures = "sample_failures"
)

// WorkerInfo is a read-only snapshot of one managed worker.
type WorkerInfo struct {
	ID              string      `json:"id"`
	PID             int         `json:"pid"`
	State           WorkerState `json:"state"`
	StartedAt       time.Time   `json:"startedAt"`
	UnitsCompleted  uint64      `json:"unitsCompleted"`
	InFlight        int         `json:"inFlight"`
	LastSampleBytes uint64      `json:"lastSampleBytes"`
	LastSampleAt    time.Time   `json:"lastSampleAt,omitzero"`
}
