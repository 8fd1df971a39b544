// Package api exposes the setup optimizer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/recovery"
	"github.com/okian/pitwall/internal/domain/session"
)

// Dependencies required by HTTP handlers. Each handler depends on the
// narrow slice it needs.
type Dependencies interface {
	OptimizeDependencies
	SessionDependencies
	JobDependencies
	ReportDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	optimizeHandler *OptimizeHandler
	sessionsHandler *SessionsHandler
	jobsHandler     *JobsHandler
	reportsHandler  *ReportsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		optimizeHandler: NewOptimizeHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		jobsHandler:     NewJobsHandler(deps),
		reportsHandler:  NewReportsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/optimize", MetricsMiddleware(s.optimizeHandler.HandleOptimize, "optimize"))
	mux.HandleFunc("POST /v1/sessions/{id}/optimize", MetricsMiddleware(s.optimizeHandler.HandleOptimizeSession, "session_optimize"))

	mux.HandleFunc("POST /v1/sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /v1/sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("GET /v1/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("POST /v1/sessions/{id}/preferences", MetricsMiddleware(s.sessionsHandler.HandlePreferences, "session_preferences"))

	mux.HandleFunc("POST /v1/jobs", MetricsMiddleware(s.jobsHandler.HandleSubmit, "jobs"))
	mux.HandleFunc("GET /v1/jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleGet, "job"))

	mux.HandleFunc("POST /v1/reports/recovery", MetricsMiddleware(s.reportsHandler.HandleRecovery, "recovery_report"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, session.ErrSchema):
		return http.StatusBadRequest, "schema_error"
	case errors.Is(err, session.ErrMalformedTurn):
		return http.StatusBadRequest, "malformed_turn"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, preferences.ErrInvalidSubmission),
		errors.Is(err, recovery.ErrInvalidRaceData):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// readBody reads the whole request body. Size limits are enforced by
// BodyLimitMiddleware.
func readBody(op string, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, Wrap(op, err)
		}
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("read body: %w", err))
	}
	if len(raw) == 0 {
		return nil, WrapKind(op, ErrBadRequest, errors.New("empty body"))
	}
	return raw, nil
}
