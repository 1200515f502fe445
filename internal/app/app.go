package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillcoder/workermem-governor/internal/adapters/outbound/proc"
	"github.com/skillcoder/workermem-governor/internal/config"
	"github.com/skillcoder/workermem-governor/internal/httpserver"
	"github.com/skillcoder/workermem-governor/internal/infra/pinger"
	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

const startupTimeout = 30 * time.Second

// App owns the wired component graph of the governor process.
type App struct {
	logger   *slog.Logger
	appState appstater
	pingers  *pinger.Service
	governor *governor.Service
	servers  []appServer
}

// New creates a new application instance with all dependencies wired.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	appState appstater,
	pingers *pinger.Service,
) (*App, error) {
	// Secondary adapter: local worker processes
	procAdapter, err := proc.New(logger, cfg.WorkerCmd, cfg.ReadyTimeout)
	if err != nil {
		return nil, fmt.Errorf("new proc adapter: %w", err)
	}

	// Logic service (inject runner + sampler adapter)
	governorService, err := governor.New(
		logger,
		procAdapter,
		procAdapter,
		governor.Config{
			PoolSize: cfg.PoolSize,
			Limits: governor.Limits{
				SoftBytes: cfg.MemorySoftLimit,
				HardBytes: cfg.MemoryHardLimit,
			},
			SpawnRetryLimit:     cfg.SpawnRetryLimit,
			DrainGrace:          cfg.DrainGrace,
			TerminationGrace:    cfg.TerminationGrace,
			SweepInterval:       cfg.SweepInterval,
			SampleFailurePolicy: cfg.SampleFailurePolicy,
			SampleFailureLimit:  cfg.SampleFailureLimit,
			RestartSchedule:     cfg.RestartSchedule,
			RestartTZ:           cfg.RestartTZ,
			RestartJitterMax:    cfg.RestartJitterMax,
			MinWorkerAge:        cfg.MinWorkerAge,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("new governor service: %w", err)
	}

	httpServer := httpserver.New(logger, appState, governorService, procAdapter, cfg.HTTPPort)
	metricsServer := httpserver.NewMetricsServer(logger, cfg.MetricsPort)

	app := &App{
		logger:   logger,
		appState: appState,
		pingers:  pingers,
		governor: governorService,
		servers:  []appServer{governorService, httpServer, metricsServer},
	}

	if err := appState.RegisterShutdowner(pingers); err != nil {
		return nil, fmt.Errorf("register pinger shutdowner: %w", err)
	}

	for _, server := range app.servers {
		if err := appState.RegisterPinger(server); err != nil {
			return nil, fmt.Errorf("register pinger %s: %w", server.Name(), err)
		}

		if err := appState.RegisterShutdowner(server); err != nil {
			return nil, fmt.Errorf("register shutdowner %s: %w", server.Name(), err)
		}
	}

	return app, nil
}

// Run starts all components and blocks until a termination signal or
// context cancellation, then shuts everything down in reverse order.
func (a *App) Run(originCtx context.Context) error {
	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	if err := a.appState.SetStarting(ctx); err != nil {
		return fmt.Errorf("set starting state: %w", err)
	}

	if err := a.pingers.Start(ctx); err != nil {
		return fmt.Errorf("start pinger service: %w", err)
	}

	for _, server := range a.servers {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", server.Name(), err)
		}
	}

	for _, server := range a.servers {
		select {
		case <-server.Ready():
		case <-time.After(startupTimeout):
			return fmt.Errorf("component %s not ready within %s", server.Name(), startupTimeout)
		case <-ctx.Done():
			return fmt.Errorf("startup interrupted: %w", ctx.Err())
		}
	}

	if err := a.appState.SetRunning(ctx); err != nil {
		return fmt.Errorf("set running state: %w", err)
	}

	go a.consumeEvents(ctx)

	a.logger.InfoContext(ctx, "governor running")

	select {
	case sig := <-a.appState.Quit():
		a.logger.InfoContext(ctx, "received termination signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "run context cancelled")
	}

	// Stop control loops before shutting components down.
	cancel()

	return a.appState.Shutdown(originCtx)
}

// consumeEvents drains the governor's event stream into the log. Metrics
// for these events are recorded at the source.
func (a *App) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.governor.Events():
			logAttrs := []any{
				"type", string(ev.Type),
				"worker", ev.WorkerID,
				"pid", ev.PID,
			}

			if ev.Reason != "" {
				logAttrs = append(logAttrs, "recycleReason", ev.Reason)
			}

			if ev.MemoryBytes > 0 {
				logAttrs = append(logAttrs, "memory", ev.MemoryBytes)
			}

			if ev.Err != nil {
				logAttrs = append(logAttrs, "reason", ev.Err)
			}

			switch ev.Type {
			case governor.EventPoolDegraded, governor.EventPoolUnhealthy:
				a.logger.ErrorContext(ctx, "pool event", logAttrs...)
			case governor.EventSampleFailed, governor.EventSpawnRetried,
				governor.EventTerminationEscalated:
				a.logger.WarnContext(ctx, "pool event", logAttrs...)
			default:
				a.logger.DebugContext(ctx, "pool event", logAttrs...)
			}
		}
	}
}
