// Package service runs estimation passes over many contexts in parallel and
// serves their results to the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/minocc/internal/adapters/mq/queue"
	"github.com/okian/minocc/internal/adapters/mq/worker"
	"github.com/okian/minocc/internal/adapters/repository"
	"github.com/okian/minocc/internal/domain/dedupe"
	"github.com/okian/minocc/internal/domain/estimate"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/domain/types"
	"github.com/okian/minocc/pkg/logger"
	"github.com/okian/minocc/pkg/metrics"
)

// Service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrStopped    = errors.New("service stopped")
	ErrNoContexts = errors.New("no contexts selected")
	ErrNotFound   = repository.ErrNotFound
)

// Run statuses reported to metrics.
const (
	statusSucceeded = "succeeded"
	statusPartial   = "partial"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

// Service owns the queue, the worker pool and the run store.
type Service struct {
	mu sync.RWMutex

	// Core components
	params    model.Params
	source    estimate.Source
	store     repository.Store
	claims    dedupe.Claims
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	estimator *estimate.Estimator

	// Configuration
	workerCount int
	queueSize   int
	maxRuns     int
	failFast    bool
	defaults    types.RunRequest

	// Active runs waiting for worker results, by run ID.
	runsMu sync.Mutex
	runs   map[string]chan worker.Result

	// State
	started bool
	stopped bool
	stopCh  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the context queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxRuns bounds the runs tracked by the claims registry.
func WithMaxRuns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRuns = n
		}
	}
}

// WithFailFast makes the first failed context cancel its run.
func WithFailFast(failFast bool) Option {
	return func(s *Service) {
		s.failFast = failFast
	}
}

// WithStore sets where finished runs are persisted. The service closes it
// on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDefaultContexts sets the contexts used when a request leaves a list
// empty.
func WithDefaultContexts(sessions, epochs, trialTypes []string) Option {
	return func(s *Service) {
		s.defaults = types.RunRequest{Sessions: sessions, Epochs: epochs, TrialTypes: trialTypes}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service estimating with params over src.
func New(params model.Params, src estimate.Source, opts ...Option) *Service {
	s := &Service{
		params:      params,
		source:      src,
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		maxRuns:     64,
		runs:        make(map[string]chan worker.Result),
		stopCh:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

// Start validates the parameters and starts the worker pool. Workers live
// until Stop or until ctx is cancelled. A stopped service cannot be
// restarted because its store is closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	est, err := estimate.New(s.params, estimate.WithLogger(s.logger.Named("estimator")))
	if err != nil {
		return err
	}
	s.estimator = est
	s.params = est.Params()

	s.claims = dedupe.NewInMemoryClaims(dedupe.WithMaxRuns(s.maxRuns))
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.estimator, s.source, s, s)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "estimation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxRuns", s.maxRuns),
		logger.Bool("failFast", s.failFast),
	)
	return nil
}

// Stop shuts down the pool and closes the store. In-flight runs return
// ErrStopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping estimation service...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "estimation service stopped")
}

// Claim takes key for an active run. Tasks of finished or cancelled runs are
// refused so workers skip them.
func (s *Service) Claim(ctx context.Context, runID, key string) bool {
	s.runsMu.Lock()
	_, active := s.runs[runID]
	s.runsMu.Unlock()
	if !active {
		return false
	}
	return s.claims.Claim(ctx, runID, key)
}

// Deliver routes a worker result to the run that enqueued it. Results of
// runs that already ended are dropped.
func (s *Service) Deliver(ctx context.Context, r worker.Result) {
	s.runsMu.Lock()
	ch, ok := s.runs[r.RunID]
	s.runsMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
		s.logger.Warn(ctx, "dropping result for full run channel",
			logger.String("run", r.RunID),
			logger.String("context", r.Key.String()),
		)
	}
}

// Keys resolves req against the configured contexts.
func (s *Service) Keys(req types.RunRequest) []model.Key {
	sessions, epochs, trialTypes := req.Sessions, req.Epochs, req.TrialTypes
	if len(sessions) == 0 {
		sessions = s.defaults.Sessions
	}
	if len(epochs) == 0 {
		epochs = s.defaults.Epochs
	}
	if len(trialTypes) == 0 {
		trialTypes = s.defaults.TrialTypes
	}
	return model.Keys(sessions, epochs, trialTypes)
}

// Run estimates every context selected by req and persists the resulting
// catalogue. Failed contexts are recorded on the run and leave the other
// contexts untouched, unless fail-fast is on, in which case the first failure
// aborts the run with a *estimate.ContextError and nothing is persisted.
func (s *Service) Run(ctx context.Context, req types.RunRequest) (model.Run, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return model.Run{}, ErrNotStarted
	}

	keys := s.Keys(req)
	if len(keys) == 0 {
		return model.Run{}, ErrNoContexts
	}
	if err := ctx.Err(); err != nil {
		return model.Run{}, err
	}

	run := model.Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Params:    s.params,
		Catalogue: model.NewCatalogue(),
	}
	log := s.logger.Named("run")
	log.Info(ctx, "run started", logger.String("run", run.ID), logger.Int("contexts", len(keys)))

	results := make(chan worker.Result, len(keys))
	s.runsMu.Lock()
	s.runs[run.ID] = results
	s.runsMu.Unlock()
	defer func() {
		s.runsMu.Lock()
		delete(s.runs, run.ID)
		s.runsMu.Unlock()
		s.claims.Forget(context.Background(), run.ID)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for _, key := range keys {
			if err := queue.EnqueueWait(gctx, s.queue, queue.Task{RunID: run.ID, Key: key}); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					return ErrStopped
				}
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		for received := 0; received < len(keys); received++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			var r worker.Result
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-s.stopCh:
				return ErrStopped
			case r = <-results:
			}

			switch {
			case r.Skipped:
			case r.Err != nil:
				if s.failFast {
					return &estimate.ContextError{Key: r.Key, Err: r.Err}
				}
				run.Failures = append(run.Failures, model.Failure{Key: r.Key, Error: r.Err.Error()})
			default:
				next, err := run.Catalogue.With(r.Key, r.Jobs)
				if err != nil {
					return err
				}
				run.Catalogue = next
			}
		}
		return nil
	})

	err := g.Wait()
	run.FinishedAt = time.Now().UTC()
	durationMs := float64(run.FinishedAt.Sub(run.StartedAt).Microseconds()) / 1000

	if err != nil {
		status := statusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStopped) {
			status = statusCancelled
		}
		metrics.RecordRun(status, durationMs, run.FinishedAt.Unix())
		log.Error(ctx, "run aborted", logger.String("run", run.ID), logger.String("status", status), logger.Error(err))
		return run, fmt.Errorf("run %s: %w", run.ID, err)
	}

	sort.Slice(run.Failures, func(i, j int) bool {
		return run.Failures[i].Key.String() < run.Failures[j].Key.String()
	})

	if err := s.store.Save(ctx, run); err != nil {
		metrics.RecordRun(statusFailed, durationMs, run.FinishedAt.Unix())
		metrics.RecordErrorByComponent("service", "store_save")
		return run, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	status := statusSucceeded
	if run.Failed() {
		status = statusPartial
	}
	metrics.RecordRun(status, durationMs, run.FinishedAt.Unix())
	log.Info(ctx, "run finished",
		logger.String("run", run.ID),
		logger.String("status", status),
		logger.Int("contexts", run.Catalogue.ContextCount()),
		logger.Int("jobs", run.Catalogue.Len()),
		logger.Int("failures", len(run.Failures)),
		logger.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

// LatestRun returns the most recently finished run.
func (s *Service) LatestRun(ctx context.Context) (model.Run, error) {
	return s.store.Latest(ctx)
}

// RunByID returns a stored run.
func (s *Service) RunByID(ctx context.Context, id string) (model.Run, error) {
	return s.store.Get(ctx, id)
}

// ListRuns returns up to limit stored runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	return s.store.List(ctx, limit)
}

// SessionCatalogue returns the jobs of session from the latest run.
func (s *Service) SessionCatalogue(ctx context.Context, session string) (map[string]map[int]model.JobRecord, error) {
	run, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	table, ok := run.Catalogue.SessionTable(session)
	if !ok {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, session)
	}
	return table, nil
}

// ContextJobs returns the jobs of one context from the latest run.
func (s *Service) ContextJobs(ctx context.Context, session, label string) ([]model.JobRecord, error) {
	run, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	jobs, ok := run.Catalogue.Jobs(session, label)
	if !ok {
		return nil, fmt.Errorf("%w: context %s/%s", ErrNotFound, session, label)
	}
	return jobs, nil
}

// Params returns the estimation parameters.
func (s *Service) Params() model.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	s.runsMu.Lock()
	active := len(s.runs)
	s.runsMu.Unlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"failFast":    s.failFast,
		"activeRuns":  active,
		"storedRuns":  s.store.Count(ctx),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["activeWorkers"] = s.pool.Active()
		stats["claims"] = s.claims.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
