// Package server exposes the read-only query surface consumed by the
// dashboard, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gigawatch/internal/scheduler"
	"gigawatch/internal/storage"
	"gigawatch/internal/usage"
)

// ObservationReader is the store as the query surface consumes it.
type ObservationReader interface {
	LatestDataStatus(ctx context.Context) (*storage.Observation, error)
	DataStatusSince(ctx context.Context, since time.Time) ([]storage.Observation, error)
}

// StatusProvider yields the scheduler snapshot and derived task liveness.
type StatusProvider interface {
	Status() (scheduler.Status, bool)
}

// Options configure the query surface.
type Options struct {
	Addr       string
	Metrics    bool
	WindowDays int
}

// Server is the HTTP query surface.
type Server struct {
	srv    *http.Server
	store  ObservationReader
	status StatusProvider
	window int
	logger zerolog.Logger
}

// New wires the routes and returns an unstarted server.
func New(opts Options, store ObservationReader, status StatusProvider, logger zerolog.Logger) *Server {
	s := &Server{
		store:  store,
		status: status,
		window: opts.WindowDays,
		logger: logger.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data-status/latest", s.handleLatest)
	mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("GET /api/usage/daily", s.handleDailyUsage)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.srv = &http.Server{Addr: opts.Addr, Handler: mux}
	return s
}

// Start blocks serving requests until Shutdown or failure.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type dataStatusDTO struct {
	RemainingPercentage int    `json:"remainingPercentage"`
	RemainingDataMB     int    `json:"remainingDataMB"`
	DateTime            string `json:"dateTime"`
}

type schedulerStatusDTO struct {
	Started         bool    `json:"started"`
	Running         bool    `json:"running"`
	DBURL           string  `json:"db_url"`
	LastLoopAt      *string `json:"last_loop_at"`
	LastEvent       *string `json:"last_event"`
	LastError       *string `json:"last_error"`
	NextIterationAt *string `json:"next_iteration_at"`
}

// handleLatest serves the newest observation, or JSON null when the store is
// empty or unavailable. Query failures degrade to null by design.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	obs, err := s.store.LatestDataStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("latest data status query failed")
		s.writeJSON(w, nil)
		return
	}
	if obs == nil {
		s.writeJSON(w, nil)
		return
	}
	s.writeJSON(w, dataStatusDTO{
		RemainingPercentage: obs.RemainingPercentage,
		RemainingDataMB:     obs.RemainingDataMB,
		DateTime:            obs.DateTime.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	st, running := s.status.Status()
	s.writeJSON(w, schedulerStatusDTO{
		Started:         st.Started,
		Running:         running,
		DBURL:           st.DBLocation,
		LastLoopAt:      optTime(st.LastLoopAt),
		LastEvent:       optString(st.LastEvent),
		LastError:       optString(st.LastError),
		NextIterationAt: optTime(st.NextIterationAt),
	})
}

// handleDailyUsage serves the projection over the configured window. Query
// failures degrade to an empty array.
func (s *Server) handleDailyUsage(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	rows, err := s.store.DataStatusSince(r.Context(), now.AddDate(0, 0, -s.window))
	if err != nil {
		s.logger.Error().Err(err).Msg("daily usage query failed")
		s.writeJSON(w, []usage.Point{})
		return
	}
	s.writeJSON(w, usage.Daily(rows, now, s.window))
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response failed")
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
