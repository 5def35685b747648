package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/pkg/metrics"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]model.Run
	order   []string // newest first
	maxRuns int
}

// NewMemoryStore returns an empty store keeping the 100 newest runs by default.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{runs: make(map[string]model.Run), maxRuns: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Save(ctx context.Context, run model.Run) error {
	start := time.Now()
	defer func() { metrics.RecordRepositorySaveLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}
	run.Failures = append([]model.Failure(nil), run.Failures...)
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	sort.SliceStable(s.order, func(i, j int) bool { return newer(s.runs[s.order[i]], s.runs[s.order[j]]) })

	if s.maxRuns > 0 {
		for len(s.order) > s.maxRuns {
			oldest := s.order[len(s.order)-1]
			s.order = s.order[:len(s.order)-1]
			delete(s.runs, oldest)
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.Run, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, nil
}

func (s *MemoryStore) Latest(ctx context.Context) (model.Run, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return model.Run{}, ErrNotFound
	}
	return s.runs[s.order[0]], nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Run, n)
	for i := 0; i < n; i++ {
		out[i] = s.runs[s.order[i]]
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *MemoryStore) Close() error { return nil }

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}
