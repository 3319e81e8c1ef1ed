// Package ledger implements the orchestrator's two run-scoped ledgers: the
// Task Ledger (C1) and the Progress Ledger (C2). Both are single-owner,
// driver-held structs (spec §3 "Ownership & Lifecycle"); all mutation goes
// through pointer-receiver methods, mirroring the teacher's rule that
// workflow state changes only through typed helper functions.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"goa.design/conductor/runtime/agentset"
)

type (
	// ProjectConfig is the deterministic per-run file-naming contract shared
	// by every worker (spec §3 "projectConfig").
	ProjectConfig struct {
		ProjectName  string
		MainFile     string
		TestFile     string
		BaseDir      string
		MainFilePath string
		TestFilePath string
	}

	// ErrorHistoryEntry records a single reported failure, written by the
	// router when the test-runner worker fails and read by the instruction
	// builder for the refactor worker (spec §3 "errorHistory").
	ErrorHistoryEntry struct {
		Source         agentset.Ident
		FailureReasons []string
		RawOutput      string
		Timestamp      time.Time
	}

	// EnhancedContext is the per-worker snapshot captured just before
	// invocation (spec §3 "enhancedContexts").
	EnhancedContext struct {
		DependencyOutputs map[agentset.Ident]any
		IncomingMessages  []string
		Suggestions       []string
	}

	// TaskLedger holds task text, extracted facts, the plan, the agent
	// capability map, project naming, error history, and per-worker
	// dependency-prepared contexts (spec §3 "Task Ledger").
	TaskLedger struct {
		mu sync.Mutex

		OriginalTask string

		facts []string
		plan  []string

		agentCapabilities map[agentset.Ident]string
		projectConfig     ProjectConfig
		failedPaths       []agentset.Ident
		errorHistory      []ErrorHistoryEntry
		enhancedContexts  map[agentset.Ident]EnhancedContext
	}
)

// NewTaskLedger constructs a TaskLedger for a single run. agentCapabilities
// is copied so later mutation by the caller does not alias ledger state.
func NewTaskLedger(task string, agentCapabilities map[agentset.Ident]string) *TaskLedger {
	caps := make(map[agentset.Ident]string, len(agentCapabilities))
	for k, v := range agentCapabilities {
		caps[k] = v
	}
	return &TaskLedger{
		OriginalTask:      task,
		agentCapabilities: caps,
		enhancedContexts:  make(map[agentset.Ident]EnhancedContext),
	}
}

// SetProjectConfig sets the deterministic project file-naming contract.
// mainFilePath and testFilePath are derived as baseDir + "/" + {main,test}File
// so every worker reads the same path regardless of who announced it first.
func (l *TaskLedger) SetProjectConfig(name, mainFile, testFile, baseDir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.projectConfig = ProjectConfig{
		ProjectName:  name,
		MainFile:     mainFile,
		TestFile:     testFile,
		BaseDir:      baseDir,
		MainFilePath: fmt.Sprintf("%s/%s", baseDir, mainFile),
		TestFilePath: fmt.Sprintf("%s/%s", baseDir, testFile),
	}
}

// ProjectConfig returns a copy of the current project configuration.
func (l *TaskLedger) ProjectConfig() ProjectConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.projectConfig
}

// GetFilePath returns the configured path for kind ("main" or "test"), or a
// documented default under the configured base directory when unset.
func (l *TaskLedger) GetFilePath(kind string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	baseDir := l.projectConfig.BaseDir
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	switch kind {
	case "main":
		if l.projectConfig.MainFilePath != "" {
			return l.projectConfig.MainFilePath
		}
		return fmt.Sprintf("%s/main.py", baseDir)
	case "test":
		if l.projectConfig.TestFilePath != "" {
			return l.projectConfig.TestFilePath
		}
		return fmt.Sprintf("%s/test_main.py", baseDir)
	default:
		return baseDir
	}
}

// DefaultBaseDir is the fallback base directory used when no project config
// has been set yet (spec §6.5: "baseDir (default /<home>/output)").
const DefaultBaseDir = "output"

// UpdateFacts appends to the ordered facts list produced by planning.
func (l *TaskLedger) UpdateFacts(facts []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.facts = append(l.facts, facts...)
}

// Facts returns a copy of the accumulated facts.
func (l *TaskLedger) Facts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.facts...)
}

// UpdatePlan replaces the ordered plan list produced by planning.
func (l *TaskLedger) UpdatePlan(plan []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plan = append([]string(nil), plan...)
}

// Plan returns a copy of the current plan.
func (l *TaskLedger) Plan() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.plan...)
}

// Capability returns the capability text for worker w.
func (l *TaskLedger) Capability(w agentset.Ident) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agentCapabilities[w]
}

// RecordError appends an error history entry with a monotonic timestamp.
// Every entry is later expected (spec §3 invariants) to be followed by at
// least one attempt of the refactor worker before the run terminates.
func (l *TaskLedger) RecordError(source agentset.Ident, reasons []string, rawOutput string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorHistory = append(l.errorHistory, ErrorHistoryEntry{
		Source:         source,
		FailureReasons: append([]string(nil), reasons...),
		RawOutput:      rawOutput,
		Timestamp:      time.Now(),
	})
}

// ErrorHistory returns a copy of the append-only error history.
func (l *TaskLedger) ErrorHistory() []ErrorHistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorHistoryEntry(nil), l.errorHistory...)
}

// LastError returns the most recent error history entry and true, or the
// zero value and false when no error has been recorded.
func (l *TaskLedger) LastError() (ErrorHistoryEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errorHistory) == 0 {
		return ErrorHistoryEntry{}, false
	}
	return l.errorHistory[len(l.errorHistory)-1], true
}

// MarkFailedPath records a worker abandoned after exhausting retries.
func (l *TaskLedger) MarkFailedPath(w agentset.Ident) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.failedPaths {
		if p == w {
			return
		}
	}
	l.failedPaths = append(l.failedPaths, w)
}

// FailedPaths returns a copy of the abandoned-worker list.
func (l *TaskLedger) FailedPaths() []agentset.Ident {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]agentset.Ident(nil), l.failedPaths...)
}

// SetEnhancedContext stores the per-worker snapshot captured just before
// invocation.
func (l *TaskLedger) SetEnhancedContext(w agentset.Ident, ctx EnhancedContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enhancedContexts[w] = ctx
}

// EnhancedContext returns the last snapshot recorded for w.
func (l *TaskLedger) EnhancedContext(w agentset.Ident) (EnhancedContext, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, ok := l.enhancedContexts[w]
	return ctx, ok
}
