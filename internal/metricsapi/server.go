// Package metricsapi exposes the ingestion service's /healthz and
// /metrics endpoints — the only HTTP surface this service carries, since
// the pipeline itself has no public API (see Non-goals).
package metricsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Server hosts the health and metrics HTTP handlers.
type Server struct {
	httpSrv *http.Server
	pool    *pgxpool.Pool
}

// New builds the HTTP server bound to addr. It does not start listening —
// call Serve in a goroutine.
func New(addr string, pool *pgxpool.Pool) *Server {
	s := &Server{pool: pool}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Serve blocks until the server stops; pair with Shutdown from another
// goroutine.
func (s *Server) Serve() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	status := http.StatusOK

	if err := s.pool.Ping(ctx); err != nil {
		result["status"] = "degraded"
		result["database"] = "unreachable: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		result["database"] = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
