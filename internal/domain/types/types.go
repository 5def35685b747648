// Package types contains request and response shapes shared by the service
// and its HTTP API.
package types

import (
	"time"

	"github.com/okian/minocc/internal/domain/model"
)

// RunRequest selects the contexts of a run. Empty lists fall back to the
// configured ones.
type RunRequest struct {
	Sessions   []string `json:"sessions,omitempty"`
	Epochs     []string `json:"epochs,omitempty"`
	TrialTypes []string `json:"trial_types,omitempty"`
}

// FailureView reports a context that could not be estimated.
type FailureView struct {
	Session string `json:"session"`
	Context string `json:"context"`
	Error   string `json:"error"`
}

// RunView summarizes a run together with its catalogue.
type RunView struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Params     model.Params    `json:"params"`
	Contexts   int             `json:"contexts"`
	Jobs       int             `json:"jobs"`
	Failures   []FailureView   `json:"failures"`
	Catalogue  model.Catalogue `json:"catalogue"`
}

// NewRunView builds the view of run.
func NewRunView(run model.Run) RunView {
	failures := make([]FailureView, 0, len(run.Failures))
	for _, f := range run.Failures {
		failures = append(failures, FailureView{Session: f.Key.Session, Context: f.Key.Context(), Error: f.Error})
	}
	return RunView{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Params:     run.Params,
		Contexts:   run.Catalogue.ContextCount(),
		Jobs:       run.Catalogue.Len(),
		Failures:   failures,
		Catalogue:  run.Catalogue,
	}
}

// RunSummary is the catalogue-free listing shape of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Contexts   int       `json:"contexts"`
	Jobs       int       `json:"jobs"`
	Failures   int       `json:"failures"`
}

// NewRunSummary builds the listing entry of run.
func NewRunSummary(run model.Run) RunSummary {
	return RunSummary{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Contexts:   run.Catalogue.ContextCount(),
		Jobs:       run.Catalogue.Len(),
		Failures:   len(run.Failures),
	}
}
