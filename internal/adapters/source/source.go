// Package source provides spike counts per context from memory, a directory
// of YAML files or a SQL table.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/minocc/internal/adapters/sqldb"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/pkg/metrics"
)

// Source kinds accepted by Open.
const (
	KindMemory = "memory"
	KindDir    = "dir"
	KindSQL    = "sql"
)

// Sentinel errors.
var (
	ErrNotFound    = errors.New("spike counts not found")
	ErrUnknownKind = errors.New("unknown source kind")

	ErrNotDiscoverable = errors.New("source cannot list its contexts")
	ErrUnnamableKey    = errors.New("key cannot be stored as a counts file")
)

// Source provides the spike counts of one context.
type Source interface {
	Counts(ctx context.Context, key model.Key) (model.Counts, error)
	Close() error
}

// Discoverer is implemented by sources that can list the contexts they
// hold.
type Discoverer interface {
	Discover(ctx context.Context) ([]model.Key, error)
}

// Discover lists the contexts of src, or fails with ErrNotDiscoverable.
func Discover(ctx context.Context, src Source) ([]model.Key, error) {
	d, ok := src.(Discoverer)
	if !ok {
		return nil, ErrNotDiscoverable
	}
	return d.Discover(ctx)
}

// Spec selects and configures a source.
type Spec struct {
	Kind   string
	Path   string // dir: root directory
	Driver string // sql: sqldb driver name
	DSN    string // sql: connection string
}

// Open builds the source described by spec, instrumented with read latency
// metrics.
func Open(ctx context.Context, spec Spec) (Source, error) {
	var (
		src Source
		err error
	)
	switch spec.Kind {
	case KindMemory:
		src = NewMemory()
	case KindDir:
		src, err = NewDir(spec.Path)
	case KindSQL:
		db, oerr := sqldb.Open(ctx, spec.Driver, spec.DSN)
		if oerr != nil {
			return nil, oerr
		}
		src = NewSQL(db, WithOwnedDB())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(src, spec.Kind), nil
}

type instrumented struct {
	Source
	kind string
}

// Instrument records the latency of every Counts call under kind.
func Instrument(src Source, kind string) Source {
	return &instrumented{Source: src, kind: kind}
}

func (s *instrumented) Counts(ctx context.Context, key model.Key) (model.Counts, error) {
	start := time.Now()
	c, err := s.Source.Counts(ctx, key)
	metrics.RecordSourceReadLatency(s.kind, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordErrorByComponent("source", s.kind)
	}
	return c, err
}

func (s *instrumented) Discover(ctx context.Context) ([]model.Key, error) {
	return Discover(ctx, s.Source)
}

func sortKeys(keys []model.Key) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		return a.TrialType < b.TrialType
	})
}
