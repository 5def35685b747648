// Package estimate derives, per recording context and pattern size, the
// minimum number of occurrences a spike pattern needs before it is unlikely
// to be explained by independent Poisson firing.
//
// A context passes through three phases. While growing, each size k gets its
// own binomial threshold. Once the raw threshold reaches the absolute floor,
// the remaining sizes below the cutoff reuse the last threshold, and every
// size from the cutoff up shares a single merged job.
package estimate

import (
	"context"
	"errors"

	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/domain/rates"
	"github.com/okian/minocc/pkg/logger"
)

// Source provides the spike counts of a context.
type Source interface {
	Counts(ctx context.Context, key model.Key) (model.Counts, error)
}

// Estimator computes job lists from rate summaries. It is safe for concurrent
// use; it holds no per-context state.
type Estimator struct {
	params model.Params
	logger logger.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger used for per-step debug output.
func WithLogger(l logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New validates and normalizes params and returns an Estimator.
func New(params model.Params, opts ...Option) (*Estimator, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	e := &Estimator{params: params, logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the parameters the estimator was built with.
func (e *Estimator) Params() model.Params { return e.params }

// Model derives the growing-phase constants of a context.
func (e *Estimator) Model(s rates.Summary) (Model, error) {
	nonzero := s.NonZero()
	ref, err := rates.Percentile(nonzero, e.params.PercentileRates)
	if err != nil {
		return Model{}, err
	}
	return Model{
		RefRate:      ref,
		BinWidth:     e.params.BinWidth,
		BinCount:     s.BinCount,
		Neurons:      len(nonzero),
		Window:       e.params.WindowLength,
		Significance: 1 - e.params.PercentilePoisson/100,
		Floor:        e.params.AbsMinOccurrences,
	}, nil
}

// EstimateContext produces the job list of one context, indexed from 0.
// Errors are returned as *ContextError.
func (e *Estimator) EstimateContext(ctx context.Context, key model.Key, s rates.Summary) ([]model.JobRecord, error) {
	m, err := e.Model(s)
	if err != nil {
		return nil, &ContextError{Key: key, Err: err}
	}

	b := NewContextBuilder(key, e.params)
	st := InitialState(m.BinCount)
	k := e.params.AbsMinSpikes
	threshold := 0

	for {
		var res StepResult
		st, res, err = m.Step(st, k)
		if err != nil {
			return nil, &ContextError{Key: key, Err: err}
		}
		threshold = res.Threshold
		diag := &model.Diagnostics{
			Probability:         res.Probability,
			PatternSpace:        res.PatternSpace,
			RawThreshold:        res.Raw,
			Corrected:           res.Corrected,
			ExpectedOccurrences: res.Expected,
		}
		e.logger.Debug(ctx, "pattern size estimated",
			logger.String("context", key.String()),
			logger.Int("size", k),
			logger.Float64("p", res.Probability),
			logger.Float64("pattern_space", res.PatternSpace),
			logger.Int("raw", res.Raw),
			logger.Bool("corrected", res.Corrected),
		)

		// Still growing at the cutoff: this step is the merged job.
		if k >= model.PatternSizeCutoff {
			b.Add(model.PhaseMerged, k, nil, threshold, diag)
			return b.Jobs(), nil
		}
		b.Add(model.PhaseGrowing, k, sizePtr(k), threshold, diag)
		k++
		if res.Raw <= e.params.AbsMinOccurrences {
			break
		}
	}

	for ; k < model.PatternSizeCutoff; k++ {
		b.Add(model.PhaseFloor, k, sizePtr(k), threshold, nil)
	}
	b.Add(model.PhaseMerged, model.PatternSizeCutoff, nil, threshold, nil)
	return b.Jobs(), nil
}

// EstimateKey fetches the counts of key from src and estimates its jobs.
func (e *Estimator) EstimateKey(ctx context.Context, src Source, key model.Key) ([]model.JobRecord, error) {
	counts, err := src.Counts(ctx, key)
	if err != nil {
		return nil, &ContextError{Key: key, Err: err}
	}
	s, err := rates.Summarize(counts.PerNeuron, counts.Duration, e.params.BinWidth)
	if err != nil {
		return nil, &ContextError{Key: key, Err: err}
	}

	d := rates.Describe(s)
	e.logger.Debug(ctx, "rates summarized",
		logger.String("context", key.String()),
		logger.Int("neurons", d.Neurons),
		logger.Int("silent", d.Silent),
		logger.Float64("mean_rate", d.Mean),
		logger.Int("bins", s.BinCount),
	)
	return e.EstimateContext(ctx, key, s)
}

// Estimate runs every key in order and assembles the catalogue. The first
// failing context aborts the run. Cancellation is checked between contexts.
func (e *Estimator) Estimate(ctx context.Context, src Source, keys []model.Key) (model.Catalogue, error) {
	cat := model.NewCatalogue()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return model.Catalogue{}, err
		}
		jobs, err := e.EstimateKey(ctx, src, key)
		if err != nil {
			return model.Catalogue{}, err
		}
		if cat, err = cat.With(key, jobs); err != nil {
			return model.Catalogue{}, &ContextError{Key: key, Err: err}
		}
	}
	return cat, nil
}

// KeyOf returns the context carried by err, if any.
func KeyOf(err error) (model.Key, bool) {
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.Key, true
	}
	return model.Key{}, false
}
