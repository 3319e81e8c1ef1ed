// Package planner implements the Planner outer loop (C11): one-shot task
// fingerprinting that derives project-file naming, facts, and a plan via
// three unretried LLM calls (spec §4.11).
package planner

import (
	"context"
	"fmt"
	"strings"

	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/modelclient"
)

// namingResult is the strict JSON shape the first LLM call returns (spec
// §4.11 step 1).
type namingResult struct {
	ProjectName string `json:"projectName"`
	MainFile    string `json:"mainFile"`
	TestFile    string `json:"testFile"`
	Description string `json:"description"`
}

// keywordFallback maps a task-substring (checked case-insensitively) to a
// preset project naming, consulted when the LLM naming call fails (spec
// §4.11 step 1: "e.g. 'string' -> string_utils, 'math' -> math_utils").
var keywordFallback = []struct {
	keyword string
	naming  namingResult
}{
	{"string", namingResult{"string_utils", "string_utils.py", "test_string_utils.py", "string utility functions"}},
	{"math", namingResult{"math_utils", "math_utils.py", "test_math_utils.py", "math utility functions"}},
	{"calculator", namingResult{"calculator", "calculator.py", "test_calculator.py", "a calculator"}},
	{"sort", namingResult{"sorter", "sorter.py", "test_sorter.py", "sorting utilities"}},
}

const defaultProjectName = "project"

// Planner runs the outer planning loop once per orchestrator run.
type Planner struct {
	client  modelclient.Client
	model   string
	baseDir string
}

// New builds a Planner.
func New(client modelclient.Client, model, baseDir string) *Planner {
	if baseDir == "" {
		baseDir = ledger.DefaultBaseDir
	}
	return &Planner{client: client, model: model, baseDir: baseDir}
}

// Run executes the three sequential, unretried LLM calls and writes their
// outputs into tl. Any call's error propagates (spec §4.11 step 5: "No
// retries on these calls; any exception propagates"), except the first
// call's failure, which is absorbed by the keyword fallback table.
func (p *Planner) Run(ctx context.Context, runID string, tl *ledger.TaskLedger) error {
	naming := p.deriveNaming(ctx, runID, tl.OriginalTask)
	tl.SetProjectConfig(naming.ProjectName, naming.MainFile, naming.TestFile, p.baseDir)

	facts, err := p.deriveFacts(ctx, runID, tl)
	if err != nil {
		return fmt.Errorf("planner: facts analysis: %w", err)
	}
	tl.UpdateFacts(facts)

	plan, err := p.derivePlan(ctx, runID, tl)
	if err != nil {
		return fmt.Errorf("planner: plan generation: %w", err)
	}
	tl.UpdatePlan(plan)
	return nil
}

func (p *Planner) deriveNaming(ctx context.Context, runID, task string) namingResult {
	resp, err := p.client.Complete(ctx, &modelclient.Request{
		RunID: runID,
		Model: p.model,
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "Respond with strict JSON: {\"projectName\",\"mainFile\",\"testFile\",\"description\"}."},
			{Role: modelclient.ConversationRoleUser, Content: "Task: " + task},
		},
	})
	if err == nil {
		var naming namingResult
		if jsonErr := modelclient.ExtractJSON(resp.Content, &naming); jsonErr == nil && naming.ProjectName != "" {
			return naming
		}
	}
	return fallbackNaming(task)
}

func fallbackNaming(task string) namingResult {
	lower := strings.ToLower(task)
	for _, entry := range keywordFallback {
		if strings.Contains(lower, entry.keyword) {
			return entry.naming
		}
	}
	return namingResult{
		ProjectName: defaultProjectName,
		MainFile:    "main.py",
		TestFile:    "test_main.py",
		Description: task,
	}
}

func (p *Planner) deriveFacts(ctx context.Context, runID string, tl *ledger.TaskLedger) ([]string, error) {
	resp, err := p.client.Complete(ctx, &modelclient.Request{
		RunID: runID,
		Model: p.model,
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "List the key facts relevant to the task, one per line."},
			{Role: modelclient.ConversationRoleUser, Content: "Task: " + tl.OriginalTask},
		},
	})
	if err != nil {
		return nil, err
	}
	return splitLines(resp.Content), nil
}

func (p *Planner) derivePlan(ctx context.Context, runID string, tl *ledger.TaskLedger) ([]string, error) {
	resp, err := p.client.Complete(ctx, &modelclient.Request{
		RunID: runID,
		Model: p.model,
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "Write a step-by-step implementation plan, one step per line."},
			{Role: modelclient.ConversationRoleUser, Content: "Task: " + tl.OriginalTask + "\n\nFacts:\n" + strings.Join(tl.Facts(), "\n")},
		},
	})
	if err != nil {
		return nil, err
	}
	return splitLines(resp.Content), nil
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
