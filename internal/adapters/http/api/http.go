// Package api exposes estimation runs and their catalogues over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/minocc/internal/app"
	"github.com/okian/minocc/internal/adapters/repository"
	"github.com/okian/minocc/internal/adapters/source"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	// Run estimates the contexts selected by req and stores the result.
	Run(ctx context.Context, req types.RunRequest) (model.Run, error)

	// Read operations over stored runs.
	LatestRun(ctx context.Context) (model.Run, error)
	RunByID(ctx context.Context, id string) (model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	SessionCatalogue(ctx context.Context, session string) (map[string]map[int]model.JobRecord, error)
	ContextJobs(ctx context.Context, session, context string) ([]model.JobRecord, error)
}

// Server wires HTTP routes for the estimation API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	runsHandler      *RunsHandler
	catalogueHandler *CatalogueHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		runsHandler:      NewRunsHandler(deps),
		catalogueHandler: NewCatalogueHandler(deps),
	}
}

// Router returns a chi router with every route registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.runsHandler.HandleList, "runs"))
		r.Post("/", MetricsMiddleware(s.runsHandler.HandleCreate, "runs"))
		r.Get("/latest", MetricsMiddleware(s.runsHandler.HandleLatest, "runs_latest"))
		r.Get("/{id}", MetricsMiddleware(s.runsHandler.HandleGet, "runs_id"))
	})

	r.Get("/catalogue/{session}", MetricsMiddleware(s.catalogueHandler.HandleSession, "catalogue_session"))
	r.Get("/catalogue/{session}/{context}", MetricsMiddleware(s.catalogueHandler.HandleContext, "catalogue_context"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
	})
	return r
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

// writeServiceError maps upstream sentinel errors to a status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, source.ErrNotFound), errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNoContexts),
		errors.Is(err, model.ErrInvalidConfiguration),
		errors.Is(err, model.ErrInvalidRateDistribution):
		writeError(w, http.StatusUnprocessableEntity, "unprocessable", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrStopped),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
