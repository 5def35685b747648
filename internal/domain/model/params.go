package model

import (
	"fmt"
	"time"
)

// PatternSizeCutoff is the pattern size from which all larger sizes share
// a single merged job.
const PatternSizeCutoff = 10

// Params holds the global thresholds of an estimation run.
type Params struct {
	AbsMinSpikes      int           `json:"abs_min_spikes"`
	AbsMinOccurrences int           `json:"abs_min_occ"`
	WindowLength      int           `json:"winlen"`
	PercentilePoisson float64       `json:"percentile_poiss"`
	PercentileRates   float64       `json:"percentile_rates"`
	BinWidth          time.Duration `json:"binsize"`
	Unit              Unit          `json:"unit"`
}

// Validate reports the first parameter outside its domain, wrapped in
// ErrInvalidConfiguration.
func (p Params) Validate() error {
	switch {
	case p.AbsMinSpikes < 1:
		return fmt.Errorf("%w: abs_min_spikes must be >= 1, got %d", ErrInvalidConfiguration, p.AbsMinSpikes)
	case p.AbsMinSpikes > PatternSizeCutoff:
		return fmt.Errorf("%w: abs_min_spikes %d exceeds pattern size cutoff %d", ErrInvalidConfiguration, p.AbsMinSpikes, PatternSizeCutoff)
	case p.AbsMinOccurrences < 0:
		return fmt.Errorf("%w: abs_min_occ must be >= 0, got %d", ErrInvalidConfiguration, p.AbsMinOccurrences)
	case p.WindowLength < 1:
		return fmt.Errorf("%w: winlen must be >= 1, got %d", ErrInvalidConfiguration, p.WindowLength)
	case !inPercentRange(p.PercentilePoisson):
		return fmt.Errorf("%w: percentile_poiss must be within [0, 100], got %v", ErrInvalidConfiguration, p.PercentilePoisson)
	case !inPercentRange(p.PercentileRates):
		return fmt.Errorf("%w: percentile_rates must be within [0, 100], got %v", ErrInvalidConfiguration, p.PercentileRates)
	case p.BinWidth <= 0:
		return fmt.Errorf("%w: binsize must be positive, got %s", ErrInvalidConfiguration, p.BinWidth)
	}
	if _, err := ParseUnit(string(p.Unit)); err != nil {
		return err
	}
	return nil
}

// Normalize validates p and returns it with Unit in its canonical spelling,
// so "milliseconds" reports as "ms".
func (p Params) Normalize() (Params, error) {
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	u, err := ParseUnit(string(p.Unit))
	if err != nil {
		return Params{}, err
	}
	p.Unit = u
	return p, nil
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}
