package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/minocc/internal/domain/model"
)

// FIMJob is one fpgrowth invocation. MinOccurrences is the smallest pattern
// size mined and MinSupport its occurrence threshold, following the names
// the runner passes through to fpgrowth.
type FIMJob struct {
	MinSupport     int `json:"min_supp"`
	MinOccurrences int `json:"min_occ"`
	MinNeurons     int `json:"min_neu"`
	MaxSize        int `json:"max_size"` // 0: unbounded
}

// Manifest configures the runner for one context.
type Manifest struct {
	Filename string   `json:"filename"`
	Winlen   int      `json:"winlen"`
	Jobs     []FIMJob `json:"jobs"`
}

// TransactionsFile names the transaction database of a context, relative to
// the runner's datasets directory.
func TransactionsFile(session, context string) string {
	return filepath.ToSlash(filepath.Join(session, "transactions_"+context+".dat"))
}

// Manifests builds one manifest per context, keyed by session and context.
func Manifests(cat model.Catalogue, winlen int) map[string]map[string]Manifest {
	out := make(map[string]map[string]Manifest, len(cat.Sessions()))
	for _, session := range cat.Sessions() {
		contexts := make(map[string]Manifest)
		for _, label := range cat.Contexts(session) {
			jobs, _ := cat.Jobs(session, label)
			m := Manifest{
				Filename: TransactionsFile(session, label),
				Winlen:   winlen,
				Jobs:     make([]FIMJob, 0, len(jobs)),
			}
			for _, j := range jobs {
				if j.WindowLength > 0 {
					m.Winlen = j.WindowLength
				}
				m.Jobs = append(m.Jobs, FIMJob{
					MinSupport:     j.OccurrenceThreshold,
					MinOccurrences: j.MinPatternSize,
					MinNeurons:     j.MinPatternSize,
					MaxSize:        j.MaxSize(),
				})
			}
			contexts[label] = m
		}
		out[session] = contexts
	}
	return out
}

// WriteManifests writes <dir>/<session>/fim_<context>.json for every context.
func WriteManifests(dir string, cat model.Catalogue, winlen int) error {
	for session, contexts := range Manifests(cat, winlen) {
		sessionDir := filepath.Join(dir, session)
		if err := os.MkdirAll(sessionDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sessionDir, err)
		}
		for label, m := range contexts {
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("encode manifest %s/%s: %w", session, label, err)
			}
			path := filepath.Join(sessionDir, "fim_"+label+".json")
			if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
	}
	return nil
}
