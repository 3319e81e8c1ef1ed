// Package inmem is the default, in-process Execution Log Manager backend:
// an append-only slice scored with a cheap token-overlap similarity metric,
// used by the prototype and minimal chains and by tests.
package inmem

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"goa.design/conductor/runtime/execlog"
	"goa.design/conductor/runtime/telemetry"
)

// Store is an in-process execlog.Store.
type Store struct {
	mu      sync.Mutex
	entries []execlog.Entry
	logger  telemetry.Logger
}

// New builds an in-memory Store. A nil logger defaults to a no-op logger.
func New(logger telemetry.Logger) *Store {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Store{logger: logger}
}

// RecordExecution appends entry. It cannot itself fail, matching spec §4.7's
// failure policy that recording never aborts the run.
func (s *Store) RecordExecution(ctx context.Context, entry execlog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// GetSimilarExecutions scores every stored entry against queryText, applies
// the Agent/SuccessOnly post-filters, sorts descending by similarity, and
// truncates to q.TopK.
func (s *Store) GetSimilarExecutions(ctx context.Context, queryText string, q execlog.Query) []execlog.ScoredEntry {
	s.mu.Lock()
	candidates := append([]execlog.Entry(nil), s.entries...)
	s.mu.Unlock()

	var scored []execlog.ScoredEntry
	for _, e := range candidates {
		if q.Agent != nil && e.Agent != *q.Agent {
			continue
		}
		if q.SuccessOnly && !e.Success {
			continue
		}
		scored = append(scored, score(queryText, e))
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })

	topK := q.TopK
	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}

// GetErrorSolutions issues the four fixed query phrasings against
// description, merges their results, and de-duplicates by (agent, task,
// timestamp) identity.
func (s *Store) GetErrorSolutions(ctx context.Context, description string, topK int) []execlog.ScoredEntry {
	s.mu.Lock()
	candidates := append([]execlog.Entry(nil), s.entries...)
	s.mu.Unlock()

	seen := make(map[string]struct{})
	var merged []execlog.ScoredEntry
	for _, phrasing := range phrasings(description) {
		for _, e := range candidates {
			key := identity(e)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, score(phrasing, e))
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func score(queryText string, e execlog.Entry) execlog.ScoredEntry {
	distance := execlog.TokenOverlapDistance(queryText, e.Content)
	return execlog.ScoredEntry{Entry: e, Similarity: execlog.SimilarityFromDistance(distance)}
}

func phrasings(description string) []string {
	return execlog.ErrorSolutionPhrasings(description)
}

func identity(e execlog.Entry) string {
	return string(e.Agent) + "|" + e.Task + "|" + strconv.FormatInt(e.Timestamp.UnixNano(), 10)
}
