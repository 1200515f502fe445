package appstate

import (
	"context"

	"github.com/skillcoder/workermem-governor/internal/infra/pinger"
	"github.com/skillcoder/workermem-governor/internal/infra/shutdown"
)

// pingerServer is an internal interface for pinger management.
type pingerServer interface {
	Start(ctx context.Context) error
	Ready() <-chan struct{}
	shutdown.Shutdowner
	Register(p pinger.Pinger) error
	GetAllStats() map[string]*pinger.Statistics
}
