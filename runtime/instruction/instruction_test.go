package instruction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/dependency"
	"goa.design/conductor/runtime/instruction"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/modelclient"
)

type stubClient struct {
	resp *modelclient.Response
	err  error
}

func (s stubClient) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newLedgers() (*ledger.TaskLedger, *ledger.ProgressLedger) {
	caps := map[agentset.Ident]string{"writer": "writes code", "refactor": "fixes bugs"}
	tl := ledger.NewTaskLedger("build a calculator", caps)
	tl.SetProjectConfig("calc", "main.py", "test_main.py", "output")
	pl := ledger.NewProgressLedger([]agentset.Ident{"writer", "refactor"})
	return tl, pl
}

func TestBuildUsesLLMInstructionWhenAvailable(t *testing.T) {
	tl, pl := newLedgers()
	checker := dependency.New(dependency.Table{})
	client := stubClient{resp: &modelclient.Response{Content: "write the calculator in output/main.py"}}

	b := instruction.New(client, "test-model", checker, "refactor", nil, nil)
	got := b.Build(context.Background(), "run-1", "writer", tl, pl)

	require.Contains(t, got, "write the calculator")
	require.Equal(t, got, pl.Instruction("writer"))
}

func TestBuildFallsBackToDefaultOnLLMFailure(t *testing.T) {
	tl, pl := newLedgers()
	checker := dependency.New(dependency.Table{})
	client := stubClient{err: errors.New("provider unavailable")}

	defaults := map[agentset.Ident]instruction.DefaultFunc{
		"writer": func(tl *ledger.TaskLedger) string {
			return "write " + tl.GetFilePath("main")
		},
	}
	b := instruction.New(client, "test-model", checker, "refactor", defaults, nil)
	got := b.Build(context.Background(), "run-1", "writer", tl, pl)

	require.Contains(t, got, "output/main.py")
}

func TestBuildAppendsErrorHistoryForRefactorWorker(t *testing.T) {
	tl, pl := newLedgers()
	tl.RecordError("test_runner", []string{"assertion failed"}, "traceback...")
	checker := dependency.New(dependency.Table{})
	client := stubClient{resp: &modelclient.Response{Content: "fix the bug"}}

	b := instruction.New(client, "test-model", checker, "refactor", nil, nil)
	got := b.Build(context.Background(), "run-1", "refactor", tl, pl)

	require.Contains(t, got, "Test Error Information")
	require.Contains(t, got, "Fix Guidance")
	require.Contains(t, got, "assertion failed")
}
