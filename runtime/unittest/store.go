package unittest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/conductor/runtime/agentset"
)

// Mirror receives a searchable text form of every recorded execution,
// mirroring it to the vector store (spec §4.8: "mirrors a searchable text
// form to the vector store").
type Mirror interface {
	MirrorTestExecution(ctx context.Context, record Record, searchableText string)
}

// Store holds unit-test execution records and answers the Unit-Test Memory
// operations (spec §4.8). It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records []Record
	mirror  Mirror
}

// New builds a Store. A nil mirror disables vector-store mirroring.
func New(mirror Mirror) *Store {
	return &Store{mirror: mirror}
}

// RecordCompleteTestExecution parses rawOutput, analyzes the parsed
// failures, stores the full structured record, and mirrors a searchable
// text form to the vector store.
func (s *Store) RecordCompleteTestExecution(
	ctx context.Context,
	agent agentset.Ident,
	task, rawOutput string,
	success bool,
	duration time.Duration,
	testFiles, testReports []string,
) Record {
	failures, summary := Parse(rawOutput)
	analysis := Analyze(failures)

	record := Record{
		Agent:       agent,
		Task:        task,
		RawOutput:   rawOutput,
		Success:     success,
		Duration:    duration,
		TestFiles:   append([]string(nil), testFiles...),
		TestReports: append([]string(nil), testReports...),
		Failures:    failures,
		Summary:     summary,
		Analysis:    analysis,
		Timestamp:   time.Now(),
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()

	if s.mirror != nil {
		s.mirror.MirrorTestExecution(ctx, record, searchableText(record))
	}
	return record
}

// GetDetailedTestInfoForRefactoring returns the most recent record for
// agent: parsed failures, the verbatim raw output, the analysis, and its
// recommendations (spec §4.8).
func (s *Store) GetDetailedTestInfoForRefactoring(agent agentset.Ident) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Agent == agent {
			return s.records[i], true
		}
	}
	return Record{}, false
}

// GetTestHistory returns the last limit records in chronological order (0
// means unlimited).
func (s *Store) GetTestHistory(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	return append([]Record(nil), s.records[len(s.records)-limit:]...)
}

func searchableText(r Record) string {
	return fmt.Sprintf("%s: %s (success=%v, patterns=%v)", r.Agent, r.Task, r.Success, r.Analysis.Patterns)
}
