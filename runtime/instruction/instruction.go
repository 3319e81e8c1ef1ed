// Package instruction implements the Instruction Builder (C4): composing
// the per-worker prompt from the original task, the worker's capability
// text, the current plan, recent history, the dependency report, and any
// path hints (spec §4.4).
package instruction

import (
	"context"
	"fmt"
	"strings"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/dependency"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/modelclient"
)

// historyDepth is the number of recent execution-history entries for w
// included in the prompt (spec §4.4 step 1: "last 3").
const historyDepth = 3

// DefaultFunc renders one entry of the static per-worker fallback
// instruction table, keyed by worker name and referencing the configured
// file paths, used when the LLM call fails (spec §4.4 step 3).
type DefaultFunc func(tl *ledger.TaskLedger) string

// Builder composes worker instructions.
type Builder struct {
	client     modelclient.Client
	model      string
	checker    *dependency.Checker
	refactor   agentset.Ident
	defaults   map[agentset.Ident]DefaultFunc
	completion map[agentset.Ident][]string
}

// New builds an instruction Builder. refactor names the worker that
// receives the verbatim error-history appendix (spec §4.4 step 4).
// completionMarkers supplies, per worker, the marker strings appended as a
// final reminder (spec §4.4 step 5).
func New(
	client modelclient.Client,
	model string,
	checker *dependency.Checker,
	refactor agentset.Ident,
	defaults map[agentset.Ident]DefaultFunc,
	completionMarkers map[agentset.Ident][]string,
) *Builder {
	return &Builder{
		client:     client,
		model:      model,
		checker:    checker,
		refactor:   refactor,
		defaults:   defaults,
		completion: completionMarkers,
	}
}

// Build composes and returns the instruction for worker w, and stores it
// into pl's per-worker instruction slot.
func (b *Builder) Build(
	ctx context.Context,
	runID string,
	w agentset.Ident,
	tl *ledger.TaskLedger,
	pl *ledger.ProgressLedger,
) string {
	depReport := b.checker.Report(w, pl)
	history := recentHistory(pl, w)

	prompt := b.composePrompt(w, tl, depReport, history)

	resp, err := b.client.Complete(ctx, &modelclient.Request{
		RunID: runID,
		Model: b.model,
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "You write a single, self-contained instruction for a coding worker."},
			{Role: modelclient.ConversationRoleUser, Content: prompt},
		},
	})

	var instruction string
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		instruction = b.defaultInstruction(w, tl)
	} else {
		instruction = resp.Content
	}

	if w == b.refactor {
		instruction = instruction + "\n\n" + b.refactorAppendix(tl)
	}
	instruction = instruction + "\n\n" + completionReminder(b.completion[w])

	pl.SetInstruction(w, instruction)
	return instruction
}

func (b *Builder) composePrompt(w agentset.Ident, tl *ledger.TaskLedger, depReport string, history []ledger.ExecutionHistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", tl.OriginalTask)
	fmt.Fprintf(&sb, "Your capability: %s\n\n", tl.Capability(w))
	fmt.Fprintf(&sb, "Current plan:\n")
	for _, step := range tl.Plan() {
		fmt.Fprintf(&sb, "- %s\n", step)
	}
	fmt.Fprintf(&sb, "\nRecent history for %s:\n", w)
	for _, h := range history {
		fmt.Fprintf(&sb, "- %s (state=%s)\n", h.Timestamp.Format("15:04:05"), h.State)
	}
	fmt.Fprintf(&sb, "\n%s\n", depReport)

	if cfg := tl.ProjectConfig(); cfg.MainFilePath != "" {
		fmt.Fprintf(&sb, "\nFile paths: main=%s test=%s\n", cfg.MainFilePath, cfg.TestFilePath)
	}
	return sb.String()
}

func (b *Builder) defaultInstruction(w agentset.Ident, tl *ledger.TaskLedger) string {
	if fn, ok := b.defaults[w]; ok {
		return fn(tl)
	}
	return fmt.Sprintf("Continue your specialty task for %s using %s.", w, tl.GetFilePath("main"))
}

// refactorAppendix renders the most recent error-history entry verbatim
// under the three headings spec §4.4 step 4 requires.
func (b *Builder) refactorAppendix(tl *ledger.TaskLedger) string {
	last, ok := tl.LastError()
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Test Error Information\n")
	fmt.Fprintf(&sb, "Source: %s\n", last.Source)
	for _, reason := range last.FailureReasons {
		fmt.Fprintf(&sb, "- %s\n", reason)
	}
	sb.WriteString("\n## Test Output Detail\n")
	sb.WriteString(last.RawOutput)
	sb.WriteString("\n\n## Fix Guidance\n")
	sb.WriteString("1. Identify the exact failing assertion or traceback line.\n")
	sb.WriteString("2. Determine whether the bug is in the implementation or the test expectation.\n")
	sb.WriteString("3. Make the smallest change that addresses the root cause.\n")
	sb.WriteString("4. Re-run the test suite mentally before declaring completion.\n")
	return sb.String()
}

func completionReminder(markers []string) string {
	if len(markers) == 0 {
		return "Remember to clearly state completion when done."
	}
	return fmt.Sprintf("Remember to emit one of the following on success: %s", strings.Join(markers, ", "))
}

func recentHistory(pl *ledger.ProgressLedger, w agentset.Ident) []ledger.ExecutionHistoryEntry {
	all := pl.ExecutionHistory()
	var forWorker []ledger.ExecutionHistoryEntry
	for _, e := range all {
		if e.Node == w {
			forWorker = append(forWorker, e)
		}
	}
	if len(forWorker) > historyDepth {
		forWorker = forWorker[len(forWorker)-historyDepth:]
	}
	return forWorker
}
