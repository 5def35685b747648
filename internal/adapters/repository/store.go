// Package repository persists estimation runs and their catalogues.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/minocc/internal/domain/model"
)

// Store provides read/write access to finished runs.
type Store interface {
	// Save persists a finished run. Saving an ID twice is ErrDuplicateRun.
	Save(ctx context.Context, run model.Run) error

	// Get returns the run with id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Run, error)

	// Latest returns the most recently finished run, or ErrNotFound when
	// nothing was saved yet.
	Latest(ctx context.Context) (model.Run, error)

	// List returns up to limit runs, newest first. A limit of 0 means all.
	List(ctx context.Context, limit int) ([]model.Run, error)

	// Count returns the number of stored runs.
	Count(ctx context.Context) int

	Close() error
}

// newer orders runs by finish time, then start time.
func newer(a, b model.Run) bool {
	if !a.FinishedAt.Equal(b.FinishedAt) {
		return a.FinishedAt.After(b.FinishedAt)
	}
	return a.StartedAt.After(b.StartedAt)
}

// Store kinds accepted by Open.
const (
	KindMemory = "memory"
	KindSQL    = "sql"
)

// Spec describes which store Open builds.
type Spec struct {
	Kind    string
	Driver  string // sql: sqlite or postgres
	DSN     string // sql: connection string
	MaxRuns int    // memory: retained runs
}

// Open builds the store described by spec.
func Open(ctx context.Context, spec Spec) (Store, error) {
	switch spec.Kind {
	case KindMemory, "":
		var opts []Option
		if spec.MaxRuns != 0 {
			opts = append(opts, WithMaxRuns(spec.MaxRuns))
		}
		return NewMemoryStore(opts...), nil
	case KindSQL:
		return OpenSQL(ctx, spec.Driver, spec.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}
