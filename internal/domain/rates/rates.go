// Package rates turns per-neuron spike counts into the firing-rate summary
// the occurrence estimator works from.
package rates

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/okian/minocc/internal/domain/model"
)

// Summary is the rate view of one context. It is never modified after
// Summarize returns it.
type Summary struct {
	SortedRates   []float64     // ascending, silent neurons included
	RatesByNeuron []float64     // same rates in neuron order
	BinCount      int           // floor(Duration / bin width)
	Duration      time.Duration // total observed duration
}

// Summarize computes per-neuron rates in spikes per second and the number of
// bins of width binWidth that fit in duration. Rates do not depend on the bin
// width.
func Summarize(counts []int, duration, binWidth time.Duration) (Summary, error) {
	if duration <= 0 {
		return Summary{}, fmt.Errorf("%w: duration must be positive, got %s", model.ErrInvalidConfiguration, duration)
	}
	if binWidth <= 0 {
		return Summary{}, fmt.Errorf("%w: bin width must be positive, got %s", model.ErrInvalidConfiguration, binWidth)
	}

	seconds := duration.Seconds()
	byNeuron := make([]float64, len(counts))
	for i, c := range counts {
		if c < 0 {
			return Summary{}, fmt.Errorf("%w: neuron %d has negative count %d", model.ErrInvalidRateDistribution, i, c)
		}
		byNeuron[i] = float64(c) / seconds
	}

	sorted := append([]float64(nil), byNeuron...)
	sort.Float64s(sorted)

	return Summary{
		SortedRates:   sorted,
		RatesByNeuron: byNeuron,
		BinCount:      int(duration / binWidth),
		Duration:      duration,
	}, nil
}

// NonZero returns the strictly positive rates, still ascending.
func (s Summary) NonZero() []float64 {
	i := sort.Search(len(s.SortedRates), func(i int) bool { return s.SortedRates[i] > 0 })
	return append([]float64(nil), s.SortedRates[i:]...)
}

// Percentile returns the pct-th percentile (0..100) of an ascending slice
// using linear interpolation between closest ranks (Hyndman and Fan R-7).
func Percentile(sorted []float64, pct float64) (float64, error) {
	if len(sorted) == 0 {
		return 0, fmt.Errorf("%w: no positive rates", model.ErrInvalidRateDistribution)
	}
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("%w: percentile %v outside [0, 100]", model.ErrInvalidConfiguration, pct)
	}

	h := float64(len(sorted)-1) * pct / 100
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo]), nil
}

// Description summarizes a rate distribution for logs and the stats endpoint.
type Description struct {
	Neurons int     `json:"neurons"`
	Silent  int     `json:"silent"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	Max     float64 `json:"max"`
	StdDev  float64 `json:"std_dev"`
}

// Describe computes a Description. An empty summary yields the zero value.
func Describe(s Summary) Description {
	d := Description{
		Neurons: len(s.SortedRates),
		Silent:  len(s.SortedRates) - len(s.NonZero()),
	}
	if d.Neurons == 0 {
		return d
	}

	data := stats.Float64Data(s.SortedRates)
	d.Mean, _ = data.Mean()
	d.Median, _ = data.Median()
	d.Max, _ = data.Max()
	d.StdDev, _ = data.StandardDeviation()
	return d
}
