package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/minocc/internal/adapters/sqldb"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/pkg/metrics"
)

// SQLStore keeps runs in the runs, jobs and run_failures tables. Params and
// job records are stored as JSON documents.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL connects to dsn and applies the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqldb.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

type runRow struct {
	ID           string `db:"id"`
	StartedAtNs  int64  `db:"started_at_ns"`
	FinishedAtNs int64  `db:"finished_at_ns"`
	Params       string `db:"params"`
}

type jobRow struct {
	Session   string `db:"session"`
	Epoch     string `db:"epoch"`
	TrialType string `db:"trial_type"`
	JobIndex  int    `db:"job_index"`
	Record    string `db:"record"`
}

type failureRow struct {
	Session   string `db:"session"`
	Epoch     string `db:"epoch"`
	TrialType string `db:"trial_type"`
	Error     string `db:"error"`
}

func (s *SQLStore) Save(ctx context.Context, run model.Run) error {
	start := time.Now()
	defer func() { metrics.RecordRepositorySaveLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), run.ID)
	if err != nil {
		return fmt.Errorf("check run %s: %w", run.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO runs (id, started_at_ns, finished_at_ns, params) VALUES (?, ?, ?, ?)
	`), run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), string(params)); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	insertJob := tx.Rebind(`
		INSERT INTO jobs (run_id, session, epoch, trial_type, job_index, record)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for _, key := range run.Catalogue.Keys() {
		jobs, _ := run.Catalogue.Jobs(key.Session, key.Context())
		for i, job := range jobs {
			record, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("encode job %s/%d: %w", key, i, err)
			}
			if _, err := tx.ExecContext(ctx, insertJob, run.ID, key.Session, key.Epoch, key.TrialType, i, string(record)); err != nil {
				return fmt.Errorf("insert job %s/%d: %w", key, i, err)
			}
		}
	}

	insertFailure := tx.Rebind(`
		INSERT INTO run_failures (run_id, session, epoch, trial_type, error) VALUES (?, ?, ?, ?, ?)
	`)
	for _, f := range run.Failures {
		if _, err := tx.ExecContext(ctx, insertFailure, run.ID, f.Key.Session, f.Key.Epoch, f.Key.TrialType, f.Error); err != nil {
			return fmt.Errorf("insert failure %s: %w", f.Key, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id string) (model.Run, error) {
	defer observeQuery(time.Now())

	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, started_at_ns, finished_at_ns, params FROM runs WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("query run %s: %w", id, err)
	}
	return s.load(ctx, row)
}

func (s *SQLStore) Latest(ctx context.Context) (model.Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return model.Run{}, err
	}
	if len(runs) == 0 {
		return model.Run{}, ErrNotFound
	}
	return runs[0], nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]model.Run, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	defer observeQuery(time.Now())

	query := `SELECT id, started_at_ns, finished_at_ns, params FROM runs
		ORDER BY finished_at_ns DESC, started_at_ns DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]model.Run, 0, len(rows))
	for _, row := range rows {
		run, err := s.load(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM runs`); err != nil {
		return 0
	}
	return n
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) load(ctx context.Context, row runRow) (model.Run, error) {
	run := model.Run{
		ID:         row.ID,
		StartedAt:  time.Unix(0, row.StartedAtNs).UTC(),
		FinishedAt: time.Unix(0, row.FinishedAtNs).UTC(),
		Catalogue:  model.NewCatalogue(),
	}
	if err := json.Unmarshal([]byte(row.Params), &run.Params); err != nil {
		return model.Run{}, fmt.Errorf("decode params of %s: %w", row.ID, err)
	}

	var jobs []jobRow
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(`
		SELECT session, epoch, trial_type, job_index, record FROM jobs
		WHERE run_id = ?
		ORDER BY session, epoch, trial_type, job_index
	`), row.ID); err != nil {
		return model.Run{}, fmt.Errorf("query jobs of %s: %w", row.ID, err)
	}

	var (
		current model.Key
		batch   []model.JobRecord
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		next, err := run.Catalogue.With(current, batch)
		if err != nil {
			return err
		}
		run.Catalogue = next
		batch = nil
		return nil
	}
	for _, j := range jobs {
		key := model.Key{Session: j.Session, Epoch: j.Epoch, TrialType: j.TrialType}
		if key != current {
			if err := flush(); err != nil {
				return model.Run{}, err
			}
			current = key
		}
		var rec model.JobRecord
		if err := json.Unmarshal([]byte(j.Record), &rec); err != nil {
			return model.Run{}, fmt.Errorf("decode job %s/%d: %w", key, j.JobIndex, err)
		}
		batch = append(batch, rec)
	}
	if err := flush(); err != nil {
		return model.Run{}, err
	}

	var failures []failureRow
	if err := s.db.SelectContext(ctx, &failures, s.db.Rebind(`
		SELECT session, epoch, trial_type, error FROM run_failures
		WHERE run_id = ?
		ORDER BY session, epoch, trial_type
	`), row.ID); err != nil {
		return model.Run{}, fmt.Errorf("query failures of %s: %w", row.ID, err)
	}
	for _, f := range failures {
		run.Failures = append(run.Failures, model.Failure{
			Key:   model.Key{Session: f.Session, Epoch: f.Epoch, TrialType: f.TrialType},
			Error: f.Error,
		})
	}
	return run, nil
}
