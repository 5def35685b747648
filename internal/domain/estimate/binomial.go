package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxExactFloat is the largest magnitude below which every integer is
// representable as a float64.
const maxExactFloat = 1 << 53

// Survival returns P(X > k) for X ~ Binomial(n, p).
func Survival(n int, p float64, k int) float64 {
	switch {
	case k < 0:
		return 1
	case k >= n:
		return 0
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}
	// P(X > k) = I_p(k+1, n-k)
	return mathext.RegIncBeta(float64(k+1), float64(n-k), p)
}

// InverseSurvival returns the smallest k in [0, n] with P(X > k) <= q for
// X ~ Binomial(n, p). A q of 1 or more yields 0; a q of 0 or less (or NaN)
// yields n.
func InverseSurvival(n int, p, q float64) int {
	switch {
	case n <= 0:
		return 0
	case q >= 1:
		return 0
	case math.IsNaN(q) || q <= 0:
		return n
	}

	lo, hi := 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if Survival(n, p, mid) <= q {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// ExpectedOccurrences is the binomial mean n*p.
func ExpectedOccurrences(n int, p float64) float64 {
	return distuv.Binomial{N: float64(n), P: p}.Mean()
}

// PatternSpace counts the candidate patterns of size k: the lag placements
// window!/(window-k-1)! times the C(neurons, k) neuron subsets.
func PatternSpace(window, k, neurons int) (float64, error) {
	if k < 1 {
		return 0, fmt.Errorf("%w: pattern size must be >= 1, got %d", ErrInvalidConfiguration, k)
	}
	if window-k-1 < 0 {
		return 0, fmt.Errorf("%w: window length %d too short for pattern size %d", ErrInvalidConfiguration, window, k)
	}

	lags := 1.0
	for i := window - k; i <= window; i++ {
		lags *= float64(i)
	}
	return lags * subsets(neurons, k), nil
}

func subsets(n, k int) float64 {
	if k > n {
		return 0
	}
	c := combin.GeneralizedBinomial(float64(n), float64(k))
	if c < maxExactFloat {
		c = math.Round(c)
	}
	return c
}
