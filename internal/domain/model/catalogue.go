package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Table is the nested session -> context -> job index -> record shape of a
// catalogue, as written by exporters.
type Table map[string]map[string]map[int]JobRecord

// Catalogue is the immutable result of an estimation run. Each (session,
// context) entry is added in one piece through With, so a catalogue never
// holds a partially estimated context.
type Catalogue struct {
	entries map[string]map[string]contextEntry
}

type contextEntry struct {
	key  Key
	jobs []JobRecord
}

// NewCatalogue returns an empty catalogue.
func NewCatalogue() Catalogue {
	return Catalogue{entries: map[string]map[string]contextEntry{}}
}

// With returns a catalogue extended by the jobs of key. The receiver is left
// untouched. Adding a key twice is ErrDuplicateContext.
func (c Catalogue) With(key Key, jobs []JobRecord) (Catalogue, error) {
	label := key.Context()
	if _, ok := c.entries[key.Session][label]; ok {
		return c, fmt.Errorf("%w: %s", ErrDuplicateContext, key)
	}

	next := make(map[string]map[string]contextEntry, len(c.entries)+1)
	for session, contexts := range c.entries {
		next[session] = contexts
	}
	contexts := make(map[string]contextEntry, len(c.entries[key.Session])+1)
	for l, e := range c.entries[key.Session] {
		contexts[l] = e
	}
	contexts[label] = contextEntry{key: key, jobs: append([]JobRecord(nil), jobs...)}
	next[key.Session] = contexts

	return Catalogue{entries: next}, nil
}

// Sessions returns the session names in lexical order.
func (c Catalogue) Sessions() []string {
	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Contexts returns the context labels of session in lexical order.
func (c Catalogue) Contexts(session string) []string {
	out := make([]string, 0, len(c.entries[session]))
	for l := range c.entries[session] {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Keys returns every key in session, context order.
func (c Catalogue) Keys() []Key {
	var out []Key
	for _, s := range c.Sessions() {
		for _, l := range c.Contexts(s) {
			out = append(out, c.entries[s][l].key)
		}
	}
	return out
}

// Jobs returns a copy of the jobs of one context, indexed by job index.
func (c Catalogue) Jobs(session, context string) ([]JobRecord, bool) {
	e, ok := c.entries[session][context]
	if !ok {
		return nil, false
	}
	return append([]JobRecord(nil), e.jobs...), true
}

// Job returns a single job.
func (c Catalogue) Job(session, context string, index int) (JobRecord, bool) {
	e, ok := c.entries[session][context]
	if !ok || index < 0 || index >= len(e.jobs) {
		return JobRecord{}, false
	}
	return e.jobs[index], true
}

// Len returns the number of jobs across all contexts.
func (c Catalogue) Len() int {
	n := 0
	for _, contexts := range c.entries {
		for _, e := range contexts {
			n += len(e.jobs)
		}
	}
	return n
}

// ContextCount returns the number of (session, context) entries.
func (c Catalogue) ContextCount() int {
	n := 0
	for _, contexts := range c.entries {
		n += len(contexts)
	}
	return n
}

// Table renders the catalogue in its nested export shape.
func (c Catalogue) Table() Table {
	t := make(Table, len(c.entries))
	for session, contexts := range c.entries {
		t[session] = make(map[string]map[int]JobRecord, len(contexts))
		for label, e := range contexts {
			jobs := make(map[int]JobRecord, len(e.jobs))
			for i, j := range e.jobs {
				jobs[i] = j
			}
			t[session][label] = jobs
		}
	}
	return t
}

// SessionTable renders one session; ok is false when the session is unknown.
func (c Catalogue) SessionTable(session string) (map[string]map[int]JobRecord, bool) {
	if _, ok := c.entries[session]; !ok {
		return nil, false
	}
	return c.Table()[session], true
}

// MarshalJSON encodes the catalogue as its Table.
func (c Catalogue) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Table())
}
