package estimate

import (
	"fmt"

	"github.com/okian/minocc/internal/domain/model"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidRateDistribution = model.ErrInvalidRateDistribution
	ErrInvalidConfiguration    = model.ErrInvalidConfiguration
)

// ContextError ties a failure to the context that produced it.
type ContextError struct {
	Key model.Key
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context %s: %v", e.Key, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }
