// Package worker runs estimation tasks pulled off the queue and hands the
// results back to the run that asked for them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/minocc/internal/adapters/mq/queue"
	"github.com/okian/minocc/internal/domain/estimate"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/pkg/logger"
	"github.com/okian/minocc/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Estimator turns the counts of one context into its job list.
type Estimator interface {
	EstimateKey(ctx context.Context, src estimate.Source, key model.Key) ([]model.JobRecord, error)
}

// Claimer guards that a key is estimated once per run.
type Claimer interface {
	Claim(ctx context.Context, runID, key string) bool
}

// Sink receives finished tasks.
type Sink interface {
	Deliver(ctx context.Context, r Result)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Result is the outcome of one task. Skipped tasks lost the claim to
// another worker and carry neither jobs nor an error.
type Result struct {
	RunID   string
	Key     model.Key
	Jobs    []model.JobRecord
	Err     error
	Skipped bool
	Elapsed time.Duration
}

// Worker processes tasks from the queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	estimator Estimator
	source    estimate.Source
	claimer   Claimer
	sink      Sink
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, est Estimator, src estimate.Source, claimer Claimer, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		estimator: est,
		source:    src,
		claimer:   claimer,
		sink:      sink,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.sink.Deliver(ctx, w.process(ctx, t))
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process estimates a single context.
func (w *InMemoryWorker) process(ctx context.Context, t queue.Task) Result {
	start := time.Now()
	res := Result{RunID: t.RunID, Key: t.Key}
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if !w.claimer.Claim(ctx, t.RunID, t.Key.String()) {
		metrics.RecordErrorByComponent("worker", "already_claimed")
		w.logger.Warn(ctx, "context already claimed",
			logger.String("run", t.RunID),
			logger.String("context", t.Key.String()),
		)
		res.Skipped = true
		return res
	}

	jobs, err := w.estimator.EstimateKey(ctx, w.source, t.Key)
	res.Elapsed = time.Since(start)
	metrics.RecordEstimationLatency(float64(res.Elapsed.Microseconds()) / 1000)

	if err != nil {
		reason := Reason(err)
		metrics.RecordWorkerError()
		metrics.RecordContextFailed(reason)
		metrics.RecordErrorByComponent("worker", reason)
		w.logger.Error(ctx, "estimation failed",
			logger.String("run", t.RunID),
			logger.String("context", t.Key.String()),
			logger.Error(err),
		)
		res.Err = err
		return res
	}

	metrics.RecordContextEstimated()
	byPhase := map[model.Phase]int{}
	for _, j := range jobs {
		byPhase[j.Phase]++
		if j.Diagnostics != nil && j.Diagnostics.Corrected {
			metrics.RecordCorrection()
		}
	}
	for phase, n := range byPhase {
		metrics.RecordJobs(string(phase), n)
	}
	w.logger.Debug(ctx, "context estimated",
		logger.String("run", t.RunID),
		logger.String("context", t.Key.String()),
		logger.Int("jobs", len(jobs)),
		logger.Duration("elapsed", res.Elapsed),
	)

	res.Jobs = jobs
	return res
}

// Reason classifies an estimation error for metrics labels.
func Reason(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidRateDistribution):
		return "invalid_rate_distribution"
	case errors.Is(err, model.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "source_error"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	stopped atomic.Bool

	logger logger.Logger
}

// NewPool creates a new worker pool. A workerCount below 1 uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, est Estimator, src estimate.Source, claimer Claimer, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, est, src, claimer, sink, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of running workers.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
		go func(w *InMemoryWorker) {
			defer func() { metrics.UpdateWorkerActiveCount(int(p.active.Add(-1))) }()
			w.Run(ctx)
		}(w)
	}
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		close(w.shutdown)
	}

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue, then stops the workers within ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	for _, w := range p.workers {
		close(w.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}

	return nil
}
