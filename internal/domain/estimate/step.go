package estimate

import (
	"math"
	"time"
)

// State is carried from one growing-phase step to the next.
type State struct {
	PrevThreshold    int     // raw threshold of the previous size; bin count before the first
	PrevPatternSpace float64 // pattern space used by the previous size; 0 before the first
}

// InitialState returns the state before the first pattern size.
func InitialState(binCount int) State {
	return State{PrevThreshold: binCount}
}

// StepResult is the outcome of estimating one pattern size.
type StepResult struct {
	Size         int
	Probability  float64 // p, chance of one pattern in one bin
	PatternSpace float64 // the multiple-comparisons size actually used
	Raw          int     // inverse-survival threshold, before the floor
	Threshold    int     // max(Raw, floor)
	Corrected    bool    // the monotonicity correction fired
	Expected     float64 // binomial mean
}

// Model holds the per-context constants of the growing phase.
type Model struct {
	RefRate      float64 // spikes per second
	BinWidth     time.Duration
	BinCount     int
	Neurons      int // neurons with a positive rate
	Window       int
	Significance float64 // 1 - percentile_poisson/100
	Floor        int     // abs_min_occ
}

// Probability returns (rate * bin width)^k clamped to [0, 1].
func (m Model) Probability(k int) float64 {
	p := math.Pow(m.RefRate*m.BinWidth.Seconds(), float64(k))
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// target is the per-pattern tail probability. An empty pattern space makes
// every threshold trivially met.
func (m Model) target(space float64) float64 {
	if space <= 0 {
		return math.Inf(1)
	}
	return m.Significance / space
}

// Step estimates the threshold of pattern size k. When the raw threshold
// exceeds the previous one, it is recomputed against the previous pattern
// space and that pattern space is carried on.
func (m Model) Step(st State, k int) (State, StepResult, error) {
	space, err := PatternSpace(m.Window, k, m.Neurons)
	if err != nil {
		return st, StepResult{}, err
	}
	p := m.Probability(k)

	raw := InverseSurvival(m.BinCount, p, m.target(space))
	corrected := false
	if raw > st.PrevThreshold {
		space = st.PrevPatternSpace
		raw = InverseSurvival(m.BinCount, p, m.target(space))
		corrected = true
	}

	res := StepResult{
		Size:         k,
		Probability:  p,
		PatternSpace: space,
		Raw:          raw,
		Threshold:    max(raw, m.Floor),
		Corrected:    corrected,
		Expected:     ExpectedOccurrences(m.BinCount, p),
	}
	return State{PrevThreshold: raw, PrevPatternSpace: space}, res, nil
}
