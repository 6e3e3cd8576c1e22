// Package httpapi serves pgmock's HTTP monitoring endpoint: Prometheus
// metrics, a liveness probe, and a non-sensitive dump of the live
// connection table.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgmock/pgmock/internal/metrics"
	"github.com/pgmock/pgmock/internal/server"
)

// ConnectionLister is satisfied by *server.Manager; accepting the
// interface rather than the concrete type keeps this package testable
// without spinning up a real listener.
type ConnectionLister interface {
	Snapshots() []server.Snapshot
}

// Server serves pgmock's monitoring endpoints over HTTP.
type Server struct {
	manager    ConnectionLister
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer constructs a monitoring Server bound to addr. Call Start to
// begin listening.
func NewServer(addr string, manager ConnectionLister, collector *metrics.Collector) *Server {
	s := &Server{
		manager:   manager,
		metrics:   collector,
		startTime: time.Now(),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/debug/connections", s.connectionsHandler).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged by the caller via the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Stop gracefully shuts down the monitoring HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.manager.Snapshots()) //nolint:errcheck
}
