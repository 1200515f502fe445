package pinger

import (
	"slices"
	"sync"
	"time"
)

const (
	// successLatencyBufferSize is the number of successful ping latencies to track
	successLatencyBufferSize = 100

	// errorLatencyBufferSize is the number of error ping latencies to track
	errorLatencyBufferSize = 10
)

// ErrorSnapshot records the most recent ping failure.
type ErrorSnapshot struct {
	Timestamp time.Time
	Latency   time.Duration
	Error     error
}

// latencyBuffer is a fixed-capacity ring of observed durations.
type latencyBuffer struct {
	buffer   []time.Duration
	capacity int
	index    int
	count    int
}

func newLatencyBuffer(capacity int) *latencyBuffer {
	return &latencyBuffer{
		buffer:   make([]time.Duration, 0, capacity),
		capacity: capacity,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	if lb.count < lb.capacity {
		lb.buffer = append(lb.buffer, d)
		lb.count++

		return
	}

	lb.buffer[lb.index] = d
	lb.index = (lb.index + 1) % lb.capacity
}

func (lb *latencyBuffer) all() []time.Duration {
	if lb.count == 0 {
		return nil
	}

	result := make([]time.Duration, lb.count)
	if lb.count < lb.capacity {
		copy(result, lb.buffer)
	} else {
		copy(result, lb.buffer[lb.index:])
		copy(result[lb.capacity-lb.index:], lb.buffer[:lb.index])
	}

	return result
}

// Stats tracks raw observations for a single pinger.
type Stats struct {
	Name              string
	LastRun           time.Time
	LastError         error
	LastErrorSnapshot *ErrorSnapshot
	successLatencies  *latencyBuffer
	errorLatencies    *latencyBuffer
	mu                sync.RWMutex
}

func newStats(name string) *Stats {
	return &Stats{
		Name:             name,
		successLatencies: newLatencyBuffer(successLatencyBufferSize),
		errorLatencies:   newLatencyBuffer(errorLatencyBufferSize),
	}
}

// LatencyMetrics contains calculated latency statistics.
type LatencyMetrics struct {
	Count   int
	Median  time.Duration
	Average time.Duration
	P99     time.Duration
}

// Statistics is the computed, copyable view of a pinger's health.
type Statistics struct {
	IsHealthy         bool
	LastRun           time.Time
	LastError         error
	LastErrorSnapshot *ErrorSnapshot
	SuccessLatencies  LatencyMetrics
	ErrorLatencies    LatencyMetrics
}

func calculateLatencyMetrics(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	mid := len(sorted) / 2
	median := sorted[mid]

	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return LatencyMetrics{
		Count:   len(sorted),
		Median:  median,
		Average: sum / time.Duration(len(sorted)),
		P99:     sorted[len(sorted)-1],
	}
}

// snapshot computes the exported statistics from raw observations.
func (s *Stats) snapshot() *Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastErrorSnapshot *ErrorSnapshot
	if s.LastErrorSnapshot != nil {
		copied := *s.LastErrorSnapshot
		lastErrorSnapshot = &copied
	}

	return &Statistics{
		IsHealthy:         s.LastError == nil,
		LastRun:           s.LastRun,
		LastError:         s.LastError,
		LastErrorSnapshot: lastErrorSnapshot,
		SuccessLatencies:  calculateLatencyMetrics(s.successLatencies.all()),
		ErrorLatencies:    calculateLatencyMetrics(s.errorLatencies.all()),
	}
}

func (s *Stats) record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.LastRun = now

	if err != nil {
		s.LastError = err
		s.LastErrorSnapshot = &ErrorSnapshot{
			Timestamp: now,
			Latency:   latency,
			Error:     err,
		}
		s.errorLatencies.add(latency)

		return
	}

	s.LastError = nil
	s.successLatencies.add(latency)
}
