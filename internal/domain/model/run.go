package model

import "time"

// Failure records a context whose estimation failed. Failed contexts
// contribute no jobs to the run's catalogue.
type Failure struct {
	Key   Key    `json:"key"`
	Error string `json:"error"`
}

// Run is one estimation pass over a set of contexts.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Params     Params
	Catalogue  Catalogue
	Failures   []Failure
}

// Failed reports whether any context failed.
func (r Run) Failed() bool {
	return len(r.Failures) > 0
}
