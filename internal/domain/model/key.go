// Package model contains domain models passed between layers.
package model

import "time"

// Key identifies one recording context: a (session, epoch, trial type) triple.
type Key struct {
	Session   string // recording session, e.g. "i140703-001"
	Epoch     string // trial epoch, e.g. "movement"
	TrialType string // trial type, e.g. "PGHF"
}

// Context returns the label used inside a session's catalogue, "<epoch>_<trialtype>".
func (k Key) Context() string {
	return k.Epoch + "_" + k.TrialType
}

// String renders the key as "<session>/<epoch>_<trialtype>".
func (k Key) String() string {
	return k.Session + "/" + k.Context()
}

// Keys expands sessions, epochs and trial types into contexts, in
// session -> epoch -> trial type order.
func Keys(sessions, epochs, trialTypes []string) []Key {
	keys := make([]Key, 0, len(sessions)*len(epochs)*len(trialTypes))
	for _, s := range sessions {
		for _, ep := range epochs {
			for _, tt := range trialTypes {
				keys = append(keys, Key{Session: s, Epoch: ep, TrialType: tt})
			}
		}
	}
	return keys
}

// Counts is what a rate source provides for one context.
type Counts struct {
	PerNeuron []int         // spike count per neuron, in neuron order
	Duration  time.Duration // total observed duration shared by all neurons
}
