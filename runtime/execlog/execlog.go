// Package execlog implements the Execution Log Manager (C7): a vector-
// indexed record of every worker invocation, queryable by text similarity
// with post-filters on agent and success (spec §4.7).
package execlog

import (
	"context"
	"time"

	"goa.design/conductor/runtime/agentset"
)

type (
	// Entry is one record of a completed worker invocation (spec §3
	// "Execution Log entry").
	Entry struct {
		RunID     string
		Agent     agentset.Ident
		Task      string
		Content   string
		Success   bool
		Duration  time.Duration
		TaskType  string
		Metadata  map[string]any
		Timestamp time.Time
	}

	// ScoredEntry augments an Entry with a similarity score derived from
	// the backing vector store's distance metric (spec §4.7, §6.3:
	// similarity = max(0, 1 - distance/100)).
	ScoredEntry struct {
		Entry
		Similarity float64
	}

	// Query narrows GetSimilarExecutions. Agent and SuccessOnly are
	// optional post-filters applied after the text-similarity query (spec
	// §4.7).
	Query struct {
		Agent       *agentset.Ident
		SuccessOnly bool
		TopK        int
	}

	// Store is the Execution Log Manager contract. Both the in-memory and
	// MongoDB-backed implementations satisfy it identically (spec §9:
	// interface parity across persistence variants).
	Store interface {
		// RecordExecution builds a textual record from entry and stores
		// it. Recording errors are logged by the implementation and
		// swallowed: a logging failure never fails the run (spec §4.7
		// "Failure policy").
		RecordExecution(ctx context.Context, entry Entry)

		// GetSimilarExecutions issues a text query, applies the Agent and
		// SuccessOnly post-filters, and returns up to TopK entries
		// augmented with similarity. Query errors are swallowed and
		// reported as an empty slice (spec §4.7 "Failure policy").
		GetSimilarExecutions(ctx context.Context, queryText string, q Query) []ScoredEntry

		// GetErrorSolutions issues four phrasings of description as
		// separate queries, merges the results, and de-duplicates by
		// entry identity (spec §4.7).
		GetErrorSolutions(ctx context.Context, description string, topK int) []ScoredEntry
	}
)

// ErrorSolutionPhrasings are the four fixed query phrasings
// GetErrorSolutions issues against description (spec §4.7: "executes four
// phrasings of the query").
func ErrorSolutionPhrasings(description string) []string {
	return []string{
		description,
		"error: " + description,
		"how to fix " + description,
		"solution for " + description,
	}
}
