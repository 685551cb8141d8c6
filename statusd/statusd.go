// Package statusd runs the diagnostics-only HTTP listener the command
// layer optionally starts for long-running invocations (rebuild,
// deconstruct): /healthz and /metrics. It exposes no repository content,
// only process and rebuild health.
//
// Router wiring follows mux.NewRouter() with HandleFunc("/healthz", ...)
// and HandleFunc("/metrics", ...), plus a graceful
// http.Server.Shutdown(ctx) lifecycle.
package statusd

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repocore/logger"
)

// Status is the liveness snapshot served at /healthz.
type Status struct {
	Status  string `json:"status"`
	Started time.Time `json:"started"`
	Uptime  string `json:"uptime"`
}

// Server is the diagnostics HTTP listener.
type Server struct {
	addr    string
	http    *http.Server
	started time.Time

	mu      sync.RWMutex
	healthy bool
}

// New constructs a Server bound to addr (e.g. ":8181"), not yet listening.
func New(addr string) *Server {
	s := &Server{addr: addr, started: time.Now(), healthy: true}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.http = &http.Server{Addr: addr, Handler: router, ErrorLog: logger.SetHTTPServerErrorLog()}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()

	status := Status{Status: "ok", Started: s.started, Uptime: time.Since(s.started).String()}
	code := http.StatusOK
	if !healthy {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// SetHealthy flips the /healthz verdict, for a long-running command
// (rebuild, deconstruct) to report trouble mid-run.
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	s.healthy = healthy
	s.mu.Unlock()
}

// Start runs the listener in a background goroutine. Start does not block;
// bind errors are logged, not returned, since diagnostics are best-effort
// and must never abort the command they're attached to.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("statusd: listener on %s exited: %v", s.addr, err)
		}
	}()
}

// Stop gracefully shuts the listener down within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
