package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/workermem-governor/internal/adapters/outbound/proc"
	"github.com/skillcoder/workermem-governor/internal/infra/appstate"
	"github.com/skillcoder/workermem-governor/internal/infra/pinger"
	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAppState struct {
	state   appstate.State
	healthy bool
	ready   bool
	started time.Time
	stats   map[string]*pinger.Statistics
}

func (f *fakeAppState) GetState() appstate.State { return f.state }
func (f *fakeAppState) IsHealthy() bool          { return f.healthy }
func (f *fakeAppState) IsReady() bool            { return f.ready }
func (f *fakeAppState) GetUptime() time.Duration { return time.Since(f.started) }
func (f *fakeAppState) GetStartTime() time.Time  { return f.started }

func (f *fakeAppState) GetAllStats() map[string]*pinger.Statistics { return f.stats }

type fakePool struct {
	capacity int
	degraded int
	workers  []governor.WorkerInfo
}

func (f *fakePool) Snapshot() []governor.WorkerInfo { return f.workers }
func (f *fakePool) Capacity() int                   { return f.capacity }
func (f *fakePool) DegradedSlots() int              { return f.degraded }

type fakeHost struct {
	mem proc.HostMemory
	err error
}

func (f *fakeHost) HostMemoryQuery(_ context.Context) (proc.HostMemory, error) {
	return f.mem, f.err
}

func newTestServer(state *fakeAppState, pool *fakePool, host hostSampler) *Server {
	return New(discardLogger(), state, pool, host, "")
}

func TestServer_HandleHealthz(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(&fakeAppState{healthy: true}, &fakePool{}, nil)
		rec := httptest.NewRecorder()
		server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(&fakeAppState{healthy: false}, &fakePool{}, nil)
		rec := httptest.NewRecorder()
		server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_HandleReadyz(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(&fakeAppState{ready: true}, &fakePool{}, nil)
		rec := httptest.NewRecorder()
		server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(&fakeAppState{ready: false}, &fakePool{}, nil)
		rec := httptest.NewRecorder()
		server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_HandleStatus(t *testing.T) {
	t.Parallel()

	state := &fakeAppState{
		state:   appstate.StateRunning,
		healthy: true,
		ready:   true,
		started: time.Now().Add(-time.Hour),
		stats: map[string]*pinger.Statistics{
			"workermem-governor": {IsHealthy: true},
			"http-server":        {IsHealthy: false},
		},
	}

	server := newTestServer(state, &fakePool{}, nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, string(appstate.StateRunning), got.State)
	require.GreaterOrEqual(t, got.UptimeSec, 3600.0)
	require.Equal(t, map[string]bool{
		"workermem-governor": true,
		"http-server":        false,
	}, got.Pingers)
}

func TestServer_HandlePool(t *testing.T) {
	t.Parallel()

	workers := []governor.WorkerInfo{
		{ID: "w-1", PID: 101, State: governor.StateServing, LastSampleBytes: 42 << 20},
		{ID: "w-2", PID: 102, State: governor.StateDraining},
	}

	t.Run("with host memory", func(t *testing.T) {
		t.Parallel()

		pool := &fakePool{capacity: 2, degraded: 1, workers: workers}
		host := &fakeHost{mem: proc.HostMemory{TotalBytes: 16 << 30, UsedBytes: 8 << 30, FreeBytes: 8 << 30}}

		server := newTestServer(&fakeAppState{}, pool, host)
		rec := httptest.NewRecorder()
		server.handlePool(rec, httptest.NewRequest(http.MethodGet, "/-/pool", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, 2, got.Capacity)
		require.Equal(t, 1, got.DegradedSlots)
		require.Len(t, got.Workers, 2)
		require.Equal(t, "w-1", got.Workers[0].ID)
		require.NotNil(t, got.HostMemory)
		require.Equal(t, uint64(16<<30), got.HostMemory.TotalBytes)
	})

	t.Run("host memory failure is omitted, not fatal", func(t *testing.T) {
		t.Parallel()

		pool := &fakePool{capacity: 2, workers: workers}
		host := &fakeHost{err: errors.New("sigar: no access")}

		server := newTestServer(&fakeAppState{}, pool, host)
		rec := httptest.NewRecorder()
		server.handlePool(rec, httptest.NewRequest(http.MethodGet, "/-/pool", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Nil(t, got.HostMemory)
		require.Len(t, got.Workers, 2)
	})

	t.Run("without host sampler", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(&fakeAppState{}, &fakePool{capacity: 4}, nil)
		rec := httptest.NewRecorder()
		server.handlePool(rec, httptest.NewRequest(http.MethodGet, "/-/pool", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, 4, got.Capacity)
		require.Nil(t, got.HostMemory)
	})
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeAppState{}, &fakePool{}, nil)

	require.Equal(t, "http-server", server.Name())
	require.Error(t, server.Ping(context.Background()), "ping must fail before start")

	// Shutdown before start is a clean no-op.
	require.NoError(t, server.Shutdown(context.Background()))
}
