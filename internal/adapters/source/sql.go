package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/minocc/internal/domain/model"
)

// SQL reads the spike_counts table, one row per neuron.
type SQL struct {
	db      *sqlx.DB
	ownedDB bool
}

// SQLOption configures a SQL source.
type SQLOption func(*SQL)

// WithOwnedDB makes Close close the database handle.
func WithOwnedDB() SQLOption {
	return func(s *SQL) { s.ownedDB = true }
}

// NewSQL returns a source over db. The schema must already exist.
func NewSQL(db *sqlx.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type countRow struct {
	Neuron     int   `db:"neuron"`
	SpikeCount int   `db:"spike_count"`
	DurationNs int64 `db:"duration_ns"`
}

func (s *SQL) Counts(ctx context.Context, key model.Key) (model.Counts, error) {
	var rows []countRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT neuron, spike_count, duration_ns
		FROM spike_counts
		WHERE session = ? AND epoch = ? AND trial_type = ?
		ORDER BY neuron
	`), key.Session, key.Epoch, key.TrialType)
	if err != nil {
		return model.Counts{}, fmt.Errorf("query counts %s: %w", key, err)
	}
	if len(rows) == 0 {
		return model.Counts{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	c := model.Counts{PerNeuron: make([]int, len(rows)), Duration: time.Duration(rows[0].DurationNs)}
	for i, r := range rows {
		if time.Duration(r.DurationNs) != c.Duration {
			return model.Counts{}, fmt.Errorf("%w: %s has neurons with different durations", model.ErrInvalidConfiguration, key)
		}
		c.PerNeuron[i] = r.SpikeCount
	}
	return c, nil
}

type keyRow struct {
	Session   string `db:"session"`
	Epoch     string `db:"epoch"`
	TrialType string `db:"trial_type"`
}

// Discover lists the contexts present in spike_counts.
func (s *SQL) Discover(ctx context.Context) ([]model.Key, error) {
	var rows []keyRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT session, epoch, trial_type
		FROM spike_counts
		ORDER BY session, epoch, trial_type
	`); err != nil {
		return nil, fmt.Errorf("discover counts: %w", err)
	}
	keys := make([]model.Key, len(rows))
	for i, r := range rows {
		keys[i] = model.Key{Session: r.Session, Epoch: r.Epoch, TrialType: r.TrialType}
	}
	return keys, nil
}

// Put replaces the counts of key inside one transaction.
func (s *SQL) Put(ctx context.Context, key model.Key, c model.Counts) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM spike_counts WHERE session = ? AND epoch = ? AND trial_type = ?
	`), key.Session, key.Epoch, key.TrialType); err != nil {
		return fmt.Errorf("clear counts %s: %w", key, err)
	}

	insert := tx.Rebind(`
		INSERT INTO spike_counts (session, epoch, trial_type, neuron, spike_count, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for neuron, n := range c.PerNeuron {
		if _, err := tx.ExecContext(ctx, insert, key.Session, key.Epoch, key.TrialType, neuron, n, int64(c.Duration)); err != nil {
			return fmt.Errorf("insert counts %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) Close() error {
	if s.ownedDB {
		return s.db.Close()
	}
	return nil
}
