package model

import "errors"

// Sentinel error kinds shared by the estimation domain. Callers match them
// with errors.Is.
var (
	// ErrInvalidRateDistribution reports a context whose firing rates cannot
	// yield a reference rate, e.g. every neuron is silent.
	ErrInvalidRateDistribution = errors.New("invalid rate distribution")
	// ErrInvalidConfiguration reports estimation parameters outside their domain.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDuplicateContext reports a second write to the same (session, context) key.
	ErrDuplicateContext = errors.New("duplicate context")
)
