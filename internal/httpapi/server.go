// Package httpapi serves the latest computed composite table read-only:
// JSON for dashboards, a reweight endpoint that re-aggregates the cached
// normalized pillars without re-normalizing, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/aibps/aibps/internal/composite"
	"github.com/aibps/aibps/internal/pipeline"
	"github.com/aibps/aibps/internal/telemetry"
	"github.com/aibps/aibps/internal/timeseries"
)

// ServerConfig holds the listen address and timeouts.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds locally with conservative timeouts.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes one Result at a time. SetResult swaps in a fresh run;
// readers always see a consistent snapshot.
type Server struct {
	router  *mux.Router
	server  *http.Server
	metrics *telemetry.Metrics

	mu     sync.RWMutex
	result *pipeline.Result
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig, metrics *telemetry.Metrics) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		metrics: metrics,
	}
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/composite", s.handleComposite).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/reweight", s.handleReweight).Methods(http.MethodPost)
	if metrics != nil {
		s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.router }

// SetResult publishes a freshly computed run.
func (s *Server) SetResult(res *pipeline.Result) {
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) snapshot() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{"status": "ok", "has_result": s.snapshot() != nil}
	writeJSON(w, http.StatusOK, status)
}

// tableResponse is the JSON form of a composite table. Missing values are
// nulls; they are never coerced to zero.
type tableResponse struct {
	RunID   string             `json:"run_id"`
	Weights map[string]float64 `json:"weights"`
	Pillars []string           `json:"pillars"`
	Skipped []string           `json:"skipped,omitempty"`
	Rows    []tableRow         `json:"rows"`
}

type tableRow struct {
	Date        string              `json:"date"`
	Scores      map[string]*float64 `json:"scores"`
	Composite   *float64            `json:"composite"`
	CompositeRA *float64            `json:"composite_ra"`
}

func (s *Server) handleComposite(w http.ResponseWriter, _ *http.Request) {
	res := s.snapshot()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, "no composite computed yet")
		return
	}
	writeJSON(w, http.StatusOK, buildTable(res))
}

// reweightRequest carries the presentation-time weight vector.
type reweightRequest struct {
	Weights map[string]float64 `json:"weights"`
}

func (s *Server) handleReweight(w http.ResponseWriter, r *http.Request) {
	res := s.snapshot()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, "no composite computed yet")
		return
	}

	var req reweightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	tilted, err := pipeline.Reaggregate(res, composite.WeightVector(req.Weights))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, buildTable(tilted))
}

func buildTable(res *pipeline.Result) tableResponse {
	pillars := make([]string, 0, len(res.Pillars))
	for pillar := range res.Pillars {
		pillars = append(pillars, pillar)
	}
	sort.Strings(pillars)

	out := tableResponse{
		RunID:   res.RunID,
		Weights: res.Weights,
		Pillars: pillars,
		Skipped: res.Skipped,
		Rows:    make([]tableRow, 0, len(res.Grid)),
	}
	for i, ts := range res.Grid {
		_, comp := res.Composite.At(i)
		if timeseries.IsMissing(comp) {
			continue
		}
		row := tableRow{
			Date:      ts.Format("2006-01-02"),
			Scores:    make(map[string]*float64, len(pillars)),
			Composite: optional(comp),
		}
		for _, pillar := range pillars {
			v, _ := res.Pillars[pillar].Value(ts)
			row.Scores[pillar] = optional(v)
		}
		_, smoothed := res.Smoothed.At(i)
		row.CompositeRA = optional(smoothed)
		out.Rows = append(out.Rows, row)
	}
	return out
}

func optional(v float64) *float64 {
	if timeseries.IsMissing(v) {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		started := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(started)).
			Msg("Request handled")
	})
}
