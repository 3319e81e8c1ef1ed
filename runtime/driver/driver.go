// Package driver implements the Orchestrator Driver (C12): the inner loop
// that wires the ledgers, communication memory, execution log, unit-test
// memory, selector, and router into a single round-by-round run (spec
// §4.12).
package driver

import (
	"context"
	"fmt"
	"time"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/analyzer"
	"goa.design/conductor/runtime/comm"
	"goa.design/conductor/runtime/execlog"
	"goa.design/conductor/runtime/execlog/inmem"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/planner"
	"goa.design/conductor/runtime/router"
	"goa.design/conductor/runtime/selector"
	"goa.design/conductor/runtime/telemetry"
	"goa.design/conductor/runtime/toolerrors"
	"goa.design/conductor/runtime/unittest"
)

// shouldReselectRetryThreshold is the retry count at which a failing worker
// is abandoned in favor of its alternative node rather than retried again
// (spec §4.12: "shouldReselect(w, analysis) returns true iff retryCount(w)
// >= 2 and not analysis.success").
const shouldReselectRetryThreshold = 2

// Event is emitted after each round of the inner loop (spec §4.12 "yield
// event(w, analysis)").
type Event struct {
	Worker    agentset.Ident
	Analysis  analyzer.AnalysisResult
	Duration  time.Duration
	Timestamp time.Time
}

// Deps wires the driver to the other eleven components. Every field is
// required except Logger, Execlog, Unittest, and Comm's mirror, which
// default to no-op/in-memory implementations.
type Deps struct {
	Registry   *agentset.Registry
	Planner    *planner.Planner
	Selector   *selector.Selector
	Router     *router.Router
	Analyze    analyzer.Analyze
	Comm       *comm.Store
	Execlog    execlog.Store
	Unittest   *unittest.Store
	TestRunner agentset.Ident
	SourceNode agentset.Ident
	MaxStalls  int
	Logger     telemetry.Logger
}

// Driver runs the orchestrator inner loop for a single task.
type Driver struct {
	deps Deps
}

// New builds a Driver from deps.
func New(deps Deps) *Driver {
	if deps.Logger == nil {
		deps.Logger = telemetry.NoopLogger{}
	}
	if deps.Execlog == nil {
		deps.Execlog = inmem.New(deps.Logger)
	}
	if deps.Unittest == nil {
		deps.Unittest = unittest.New(nil)
	}
	return &Driver{deps: deps}
}

// Run executes the full planner + inner-loop contract from spec §4.12 and
// returns the emitted event stream and the final task/progress ledgers.
func (d *Driver) Run(ctx context.Context, runID, task string, agentCapabilities map[agentset.Ident]string) ([]Event, *ledger.TaskLedger, *ledger.ProgressLedger, error) {
	tl := ledger.NewTaskLedger(task, agentCapabilities)
	pl := ledger.NewProgressLedger(d.deps.Registry.Names())

	if err := d.deps.Planner.Run(ctx, runID, tl); err != nil {
		return nil, tl, pl, fmt.Errorf("driver: initial planning: %w", err)
	}

	var events []Event
	current := []agentset.Ident{d.deps.SourceNode}

	for len(current) > 0 && pl.StallCount() < d.deps.MaxStalls {
		w := d.deps.Selector.Pick(ctx, runID, current, tl, pl)

		d.prepareExecution(ctx, w, tl, pl)

		prompt := pl.Instruction(w)
		pl.UpdateNodeState(w, ledger.NodeInProgress, nil)

		resp, dur, err := d.invokeWorker(ctx, w, prompt)
		result := d.deps.Analyze(w, resp)
		if err != nil {
			result = analyzer.AnalysisResult{Success: false, FailureReasons: []string{err.Error()}, MessageContent: err.Error()}
		}

		if result.Success {
			pl.UpdateNodeState(w, ledger.NodeCompleted, &ledger.ExecutionResult{Success: true})
			pl.RecordSuccess()
		} else {
			pl.UpdateNodeState(w, ledger.NodeFailed, &ledger.ExecutionResult{Success: false, FailureReasons: result.FailureReasons})
			pl.RecordFailure()
			pl.IncrementRetry(w)
		}

		d.deps.Execlog.RecordExecution(ctx, execlog.Entry{
			RunID: runID, Agent: w, Task: prompt, Content: result.MessageContent,
			Success: result.Success, Duration: dur, Timestamp: time.Now(),
		})
		if w == d.deps.TestRunner {
			d.deps.Unittest.RecordCompleteTestExecution(ctx, w, prompt, result.MessageContent, result.Success, dur, nil, nil)
		}

		d.processResult(ctx, w, result)

		if !result.Success && d.shouldReselect(w, pl) {
			if alts := d.deps.Router.AlternativeNodes(w); len(alts) > 0 {
				tl.MarkFailedPath(w)
				current = alts
				events = append(events, newEvent(w, result, dur))
				continue
			}
		}

		if d.shouldReplan(pl) {
			if err := d.deps.Planner.Run(ctx, runID, tl); err != nil {
				return events, tl, pl, fmt.Errorf("driver: replanning: %w", err)
			}
			current = []agentset.Ident{d.deps.SourceNode}
			events = append(events, newEvent(w, result, dur))
			continue
		}

		current = d.deps.Router.Next(w, result, tl, pl)
		events = append(events, newEvent(w, result, dur))
	}

	return events, tl, pl, nil
}

func newEvent(w agentset.Ident, result analyzer.AnalysisResult, dur time.Duration) Event {
	return Event{Worker: w, Analysis: result, Duration: dur, Timestamp: time.Now()}
}

// prepareExecution marks the worker starting in communication memory and
// snapshots its enhanced context (spec §4.12 "prepareAgentExecution", §4.6
// "starting").
func (d *Driver) prepareExecution(ctx context.Context, w agentset.Ident, tl *ledger.TaskLedger, pl *ledger.ProgressLedger) {
	d.deps.Comm.UpdateAgentContext(ctx, w, tl.OriginalTask, comm.StateStarting, "", nil, nil)
	outputs := d.deps.Comm.GetDependencyOutputs(w)
	depOutputs := make(map[agentset.Ident]any, len(outputs))
	for k, v := range outputs {
		depOutputs[k] = v
	}
	tl.SetEnhancedContext(w, ledger.EnhancedContext{
		DependencyOutputs: depOutputs,
		Suggestions:       d.deps.Comm.SuggestNextActions(w),
	})
}

// processResult marks the worker completed or failed in communication
// memory and, on failure, sends an error message addressed to w itself, so
// w's own SuggestNextActions surfaces it before its next attempt; no message
// is sent to downstream workers (spec §4.12
// "processAgentExecutionResult", §4.6 "completed|failed").
func (d *Driver) processResult(ctx context.Context, w agentset.Ident, result analyzer.AnalysisResult) {
	state := comm.StateCompleted
	if !result.Success {
		state = comm.StateFailed
	}
	d.deps.Comm.UpdateAgentContext(ctx, w, "", state, result.MessageContent, nil, map[string]any{
		"content": result.MessageContent,
	})
	if !result.Success {
		d.deps.Comm.SendMessage(ctx, w, w, comm.MessageError, result.MessageContent, nil)
	}
}

func (d *Driver) invokeWorker(ctx context.Context, w agentset.Ident, prompt string) (analyzer.ResultBundle, time.Duration, error) {
	descriptor, ok := d.deps.Registry.Get(w)
	if !ok {
		return analyzer.ResultBundle{}, 0, toolerrors.Errorf("no such worker %q", w)
	}
	start := time.Now()
	resp, err := descriptor.Invoke(ctx, prompt)
	dur := time.Since(start)
	if err != nil {
		return analyzer.ResultBundle{}, dur, toolerrors.NewWithCause(fmt.Sprintf("invoke %s failed", w), err)
	}
	return analyzer.ResultBundle{PrimaryContent: resp.PrimaryContent, InnerMessages: resp.InnerMessages}, dur, nil
}

// shouldReselect matches spec §4.12's definition exactly.
func (d *Driver) shouldReselect(w agentset.Ident, pl *ledger.ProgressLedger) bool {
	return pl.RetryCountOf(w) >= shouldReselectRetryThreshold
}

// shouldReplan matches spec §4.12's definition exactly.
func (d *Driver) shouldReplan(pl *ledger.ProgressLedger) bool {
	return pl.StallCount() >= d.deps.MaxStalls
}
