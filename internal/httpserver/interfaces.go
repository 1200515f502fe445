package httpserver

import (
	"context"
	"time"

	"github.com/skillcoder/workermem-governor/internal/adapters/outbound/proc"
	"github.com/skillcoder/workermem-governor/internal/infra/appstate"
	"github.com/skillcoder/workermem-governor/internal/infra/pinger"
	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

// appstater is an internal interface for application state management.
type appstater interface {
	GetState() appstate.State
	IsHealthy() bool
	IsReady() bool
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetAllStats() map[string]*pinger.Statistics
}

// poolStatser exposes the governor's pool view for the /-/pool endpoint.
type poolStatser interface {
	Snapshot() []governor.WorkerInfo
	Capacity() int
	DegradedSlots() int
}

// hostSampler reads host memory totals for the pool snapshot.
type hostSampler interface {
	HostMemoryQuery(ctx context.Context) (proc.HostMemory, error)
}
