package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/minocc/internal/domain/model"
)

// Memory is a source backed by a map, filled with Put.
type Memory struct {
	mu     sync.RWMutex
	counts map[model.Key]model.Counts
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{counts: make(map[model.Key]model.Counts)}
}

// Put stores a copy of c under key, replacing any previous counts.
func (m *Memory) Put(key model.Key, c model.Counts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.PerNeuron = append([]int(nil), c.PerNeuron...)
	m.counts[key] = c
}

func (m *Memory) Counts(ctx context.Context, key model.Key) (model.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counts[key]
	if !ok {
		return model.Counts{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	c.PerNeuron = append([]int(nil), c.PerNeuron...)
	return c, nil
}

// Discover lists the stored contexts in session, epoch, trial type order.
func (m *Memory) Discover(ctx context.Context) ([]model.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]model.Key, 0, len(m.counts))
	for k := range m.counts {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }
