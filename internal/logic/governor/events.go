package governor

import "time"

// EventType enumerates the observable pool events.
type EventType string

const (
	EventWorkerStarting       EventType = "worker_starting"
	EventWorkerReady          EventType = "worker_ready"
	EventWorkerDraining       EventType = "worker_draining"
	EventWorkerTerminated     EventType = "worker_terminated"
	EventSampleTaken          EventType = "sample_taken"
	EventSampleFailed         EventType = "sample_failed"
	EventSpawnRetried         EventType = "spawn_retried"
	EventPoolDegraded         EventType = "pool_degraded"
	EventPoolRestored         EventType = "pool_restored"
	EventTerminationEscalated EventType = "termination_escalated"
	EventPoolUnhealthy        EventType = "pool_unhealthy"
)

// Event is one entry of the pool's observability stream. Worker creation,
// termination, state transitions and memory samples all surface here.
type Event struct {
	Type        EventType
	WorkerID    string
	PID         int
	State       WorkerState
	Reason      string
	MemoryBytes uint64
	Capacity    int
	Err         error
	At          time.Time
}

const eventBufferSize = 256

// publish delivers an event without ever blocking the control path.
// When the buffer is full the oldest event is dropped.
func (s *Service) publish(ev Event) {
	ev.At = time.Now()

	for {
		select {
		case s.events <- ev:
			return
		default:
		}

		select {
		case <-s.events:
		default:
		}
	}
}

// Events returns the pool event stream. The channel is buffered; slow
// consumers lose the oldest events, never stall the supervisor.
func (s *Service) Events() <-chan Event {
	return s.events
}
