package model

// Phase names the estimation phase that produced a job.
type Phase string

// Estimation phases, in the order a context passes through them.
const (
	PhaseGrowing Phase = "growing"
	PhaseFloor   Phase = "floor"
	PhaseMerged  Phase = "merged"
)

// Diagnostics records how a growing-phase threshold was derived.
type Diagnostics struct {
	Probability         float64 `json:"probability" yaml:"probability"`
	PatternSpace        float64 `json:"pattern_space" yaml:"pattern_space"`
	RawThreshold        int     `json:"raw_threshold" yaml:"raw_threshold"`
	Corrected           bool    `json:"corrected" yaml:"corrected"`
	ExpectedOccurrences float64 `json:"expected_occurrences" yaml:"expected_occurrences"`
}

// JobRecord is one unit of pattern-mining work with its occurrence threshold.
// Records are built once and never mutated.
type JobRecord struct {
	TrialType           string       `json:"trialtype" yaml:"trialtype"`
	Epoch               string       `json:"epoch" yaml:"epoch"`
	BinWidth            float64      `json:"binsize" yaml:"binsize"` // in Unit
	Unit                Unit         `json:"unit" yaml:"unit"`
	MinPatternSize      int          `json:"min_spikes" yaml:"min_spikes"`
	MaxPatternSize      *int         `json:"max_spikes" yaml:"max_spikes"` // nil: unbounded
	OccurrenceThreshold int          `json:"min_occ" yaml:"min_occ"`
	PercentilePoisson   float64      `json:"percentile_poiss" yaml:"percentile_poiss"`
	PercentileRates     float64      `json:"percentile_rates" yaml:"percentile_rates"`
	WindowLength        int          `json:"winlen" yaml:"winlen"`
	AbsMinSpikes        int          `json:"abs_min_spikes" yaml:"abs_min_spikes"`
	AbsMinOccurrences   int          `json:"abs_min_occ" yaml:"abs_min_occ"`
	Phase               Phase        `json:"phase" yaml:"phase"`
	Diagnostics         *Diagnostics `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Unbounded reports whether the job covers every size from MinPatternSize up.
func (j JobRecord) Unbounded() bool {
	return j.MaxPatternSize == nil
}

// MaxSize returns the upper pattern size, or 0 when unbounded.
func (j JobRecord) MaxSize() int {
	if j.MaxPatternSize == nil {
		return 0
	}
	return *j.MaxPatternSize
}
