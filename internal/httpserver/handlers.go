package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/skillcoder/workermem-governor/internal/adapters/outbound/proc"
	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

type statusResponse struct {
	State     string          `json:"state"`
	Uptime    string          `json:"uptime"`
	StartTime time.Time       `json:"startTime"`
	UptimeSec float64         `json:"uptimeSeconds"`
	Pingers   map[string]bool `json:"pingers"`
}

type poolResponse struct {
	Capacity      int                   `json:"capacity"`
	DegradedSlots int                   `json:"degradedSlots"`
	Workers       []governor.WorkerInfo `json:"workers"`
	HostMemory    *proc.HostMemory      `json:"hostMemory,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := s.appState.GetUptime()

	pingers := make(map[string]bool)
	for name, stats := range s.appState.GetAllStats() {
		pingers[name] = stats.IsHealthy
	}

	response := statusResponse{
		State:     string(s.appState.GetState()),
		Uptime:    uptime.String(),
		StartTime: s.appState.GetStartTime(),
		UptimeSec: uptime.Seconds(),
		Pingers:   pingers,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode status response", "reason", err)
	}
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := poolResponse{
		Capacity:      s.pool.Capacity(),
		DegradedSlots: s.pool.DegradedSlots(),
		Workers:       s.pool.Snapshot(),
	}

	if s.host != nil {
		hostMem, err := s.host.HostMemoryQuery(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "host memory snapshot failed", "reason", err)
		} else {
			response.HostMemory = &hostMem
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode pool response", "reason", err)
	}
}
