package ledger

import (
	"sync"
	"time"

	"goa.design/conductor/runtime/agentset"
)

// NodeState is the state-machine value for a single worker (spec §3
// "nodeStates"). Spec §3 "Invariants" lists the transitions
// NotStarted->InProgress, InProgress->{Completed,Failed},
// Failed->{Retrying,NotStarted}, Retrying->InProgress, and
// Completed->NotStarted for the test-runner after a successful refactor
// (spec §4.10 rule 3). UpdateNodeState does not check transitions: it
// records whatever state it is given, and the driver moves a retried worker
// from Failed straight back to InProgress.
type NodeState string

const (
	// NodeNotStarted is the initial state for every worker.
	NodeNotStarted NodeState = "not_started"
	// NodeInProgress marks the single worker currently selected and running.
	NodeInProgress NodeState = "in_progress"
	// NodeCompleted marks a worker whose last invocation analyzed as success.
	NodeCompleted NodeState = "completed"
	// NodeFailed marks a worker whose last invocation analyzed as failure.
	NodeFailed NodeState = "failed"
	// NodeRetrying marks a failed worker about to be re-invoked.
	NodeRetrying NodeState = "retrying"
)

type (
	// ExecutionHistoryEntry is one append-only record of a worker's state
	// transition (spec §3 "executionHistory"). Sequence is a monotonically
	// increasing counter, so ordering is exact regardless of clock
	// resolution, satisfying spec §8's "monotone execution history" property
	// unconditionally; Timestamp is the wall-clock time of the transition.
	ExecutionHistoryEntry struct {
		Node      agentset.Ident
		State     NodeState
		Sequence  uint64
		Timestamp time.Time
		Result    *ExecutionResult
	}

	// ExecutionResult is the optional outcome attached to a terminal
	// (Completed/Failed) execution history entry.
	ExecutionResult struct {
		Success        bool
		FailureReasons []string
	}

	// ProgressLedger holds per-worker state, execution history, retry/stall
	// counters, and the last instruction generated per worker (spec §3
	// "Progress Ledger").
	ProgressLedger struct {
		mu sync.Mutex

		nodeStates       map[agentset.Ident]NodeState
		executionHistory []ExecutionHistoryEntry
		currentActive    map[agentset.Ident]struct{}
		stallCount       int
		retryCounts      map[agentset.Ident]int
		nodeInstructions map[agentset.Ident]string
		seq              uint64
	}
)

// NewProgressLedger constructs a ProgressLedger with every worker in workers
// initialized to NodeNotStarted.
func NewProgressLedger(workers []agentset.Ident) *ProgressLedger {
	states := make(map[agentset.Ident]NodeState, len(workers))
	for _, w := range workers {
		states[w] = NodeNotStarted
	}
	return &ProgressLedger{
		nodeStates:       states,
		currentActive:    make(map[agentset.Ident]struct{}),
		retryCounts:      make(map[agentset.Ident]int),
		nodeInstructions: make(map[agentset.Ident]string),
	}
}

// UpdateNodeState writes the new state for w and appends an execution
// history entry with the current monotonic sequence number.
func (p *ProgressLedger) UpdateNodeState(w agentset.Ident, state NodeState, result *ExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeStates[w] = state
	p.seq++
	p.executionHistory = append(p.executionHistory, ExecutionHistoryEntry{
		Node:      w,
		State:     state,
		Sequence:  p.seq,
		Timestamp: time.Now(),
		Result:    result,
	})
	switch state {
	case NodeInProgress, NodeRetrying:
		p.currentActive[w] = struct{}{}
	default:
		delete(p.currentActive, w)
	}
}

// State returns the current state of worker w.
func (p *ProgressLedger) State(w agentset.Ident) NodeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeStates[w]
}

// CompletedNodes returns the workers currently in NodeCompleted.
func (p *ProgressLedger) CompletedNodes() []agentset.Ident {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []agentset.Ident
	for w, s := range p.nodeStates {
		if s == NodeCompleted {
			out = append(out, w)
		}
	}
	return out
}

// IncrementRetry increments and returns the new retry count for w.
func (p *ProgressLedger) IncrementRetry(w agentset.Ident) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryCounts[w]++
	return p.retryCounts[w]
}

// RetryCountOf returns the current retry count for w.
func (p *ProgressLedger) RetryCountOf(w agentset.Ident) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryCounts[w]
}

// ResetRetry zeroes the retry count for w. Used exclusively by the router's
// refactor-success rule (spec §4.10 rule 3).
func (p *ProgressLedger) ResetRetry(w agentset.Ident) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryCounts[w] = 0
}

// LastResultOf returns the most recent execution result recorded for w, if
// any.
func (p *ProgressLedger) LastResultOf(w agentset.Ident) (ExecutionResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.executionHistory) - 1; i >= 0; i-- {
		e := p.executionHistory[i]
		if e.Node == w && e.Result != nil {
			return *e.Result, true
		}
	}
	return ExecutionResult{}, false
}

// ExecutionHistory returns a copy of the full, monotone execution history.
func (p *ProgressLedger) ExecutionHistory() []ExecutionHistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ExecutionHistoryEntry(nil), p.executionHistory...)
}

// StallCount returns the current stall counter.
func (p *ProgressLedger) StallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stallCount
}

// RecordSuccess decrements the stall counter with a floor of zero.
func (p *ProgressLedger) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stallCount > 0 {
		p.stallCount--
	}
}

// RecordFailure increments the stall counter.
func (p *ProgressLedger) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stallCount++
}

// SetInstruction stores the last instruction generated for w. Per spec §3
// invariant, it is consumed at most once per invocation: successive
// invocations must regenerate, which this ledger does not prevent — it is
// the instruction builder's responsibility to always call SetInstruction
// before a worker is invoked.
func (p *ProgressLedger) SetInstruction(w agentset.Ident, instruction string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeInstructions[w] = instruction
}

// Instruction returns the last instruction generated for w.
func (p *ProgressLedger) Instruction(w agentset.Ident) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeInstructions[w]
}
