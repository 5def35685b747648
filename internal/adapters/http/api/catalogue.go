package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CatalogueHandler serves slices of the latest run's catalogue.
type CatalogueHandler struct {
	deps Dependencies
}

// NewCatalogueHandler creates a new catalogue handler.
func NewCatalogueHandler(deps Dependencies) *CatalogueHandler {
	return &CatalogueHandler{deps: deps}
}

// HandleSession handles GET /catalogue/{session}.
func (h *CatalogueHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	table, err := h.deps.SessionCatalogue(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// HandleContext handles GET /catalogue/{session}/{context}.
func (h *CatalogueHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.deps.ContextJobs(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "context"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
