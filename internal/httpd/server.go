// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package httpd exposes the daemon's operator-facing surface: Prometheus
// metrics and a liveness probe. Everything else (the firewall, the event
// store) is driven internally by the policy engine, never over HTTP.
package httpd

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/dumpster/internal/logging"
)

// HealthChecker reports whether the daemon considers itself healthy. The
// policy engine implements it by checking that every tailer goroutine is
// still running.
type HealthChecker interface {
	Healthy() bool
}

// Server is the operator-facing HTTP server.
type Server struct {
	router *mux.Router
	logger *logging.Logger

	mu     sync.Mutex
	server *http.Server
}

// New builds a Server that serves reg's metrics on /metrics and health
// consults checker on /healthz.
func New(addr string, reg *prometheus.Registry, checker HealthChecker, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}

	router := mux.NewRouter()
	s := &Server{router: router, logger: logger}

	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealthz(checker)).Methods("GET")

	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return s
}

func (s *Server) handleHealthz(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil || checker.Healthy() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy"))
	}
}

// Start begins serving in a background goroutine. Listen errors other than
// a clean shutdown are logged, never panicked.
func (s *Server) Start() {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	go func() {
		s.logger.Info("starting http server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, waiting up to 5 seconds for
// in-flight requests to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
