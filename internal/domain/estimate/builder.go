package estimate

import "github.com/okian/minocc/internal/domain/model"

// ContextBuilder accumulates the jobs of one context in index order. Its
// output is handed to the catalogue in one piece.
type ContextBuilder struct {
	key    model.Key
	params model.Params
	jobs   []model.JobRecord
}

// NewContextBuilder starts an empty job list for key.
func NewContextBuilder(key model.Key, params model.Params) *ContextBuilder {
	return &ContextBuilder{key: key, params: params, jobs: make([]model.JobRecord, 0, model.PatternSizeCutoff)}
}

// Add appends a job covering sizes minSize..maxSize; a nil maxSize leaves the
// job unbounded. It returns the job index.
func (b *ContextBuilder) Add(phase model.Phase, minSize int, maxSize *int, threshold int, diag *model.Diagnostics) int {
	b.jobs = append(b.jobs, model.JobRecord{
		TrialType:           b.key.TrialType,
		Epoch:               b.key.Epoch,
		BinWidth:            b.params.Unit.Express(b.params.BinWidth),
		Unit:                b.params.Unit,
		MinPatternSize:      minSize,
		MaxPatternSize:      maxSize,
		OccurrenceThreshold: threshold,
		PercentilePoisson:   b.params.PercentilePoisson,
		PercentileRates:     b.params.PercentileRates,
		WindowLength:        b.params.WindowLength,
		AbsMinSpikes:        b.params.AbsMinSpikes,
		AbsMinOccurrences:   b.params.AbsMinOccurrences,
		Phase:               phase,
		Diagnostics:         diag,
	})
	return len(b.jobs) - 1
}

// Key returns the context being built.
func (b *ContextBuilder) Key() model.Key { return b.key }

// Len returns the number of jobs added so far.
func (b *ContextBuilder) Len() int { return len(b.jobs) }

// Jobs returns a copy of the accumulated jobs.
func (b *ContextBuilder) Jobs() []model.JobRecord {
	return append([]model.JobRecord(nil), b.jobs...)
}

func sizePtr(k int) *int { return &k }
