package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/ledger"
)

func TestTaskLedgerProjectConfigRoundTrip(t *testing.T) {
	tl := ledger.NewTaskLedger("build a string utility", nil)
	tl.SetProjectConfig("string_utils", "string_operations.py", "test_string_operations.py", "output")

	require.Equal(t, "output/string_operations.py", tl.GetFilePath("main"))
	require.Equal(t, "output/test_string_operations.py", tl.GetFilePath("test"))
}

func TestTaskLedgerGetFilePathDefaultsWhenUnset(t *testing.T) {
	tl := ledger.NewTaskLedger("task", nil)
	require.Equal(t, ledger.DefaultBaseDir+"/main.py", tl.GetFilePath("main"))
}

func TestTaskLedgerErrorHistoryAppendsMonotonically(t *testing.T) {
	tl := ledger.NewTaskLedger("task", nil)
	tl.RecordError("test_runner", []string{"AssertionError"}, "raw-1")
	tl.RecordError("test_runner", []string{"AssertionError"}, "raw-2")

	hist := tl.ErrorHistory()
	require.Len(t, hist, 2)
	require.Equal(t, "raw-1", hist[0].RawOutput)
	require.Equal(t, "raw-2", hist[1].RawOutput)
	require.True(t, !hist[1].Timestamp.Before(hist[0].Timestamp))

	last, ok := tl.LastError()
	require.True(t, ok)
	require.Equal(t, "raw-2", last.RawOutput)
}

func TestTaskLedgerMarkFailedPathDeduplicates(t *testing.T) {
	tl := ledger.NewTaskLedger("task", nil)
	tl.MarkFailedPath("refactor")
	tl.MarkFailedPath("refactor")
	require.Equal(t, []agentset.Ident{"refactor"}, tl.FailedPaths())
}

func TestProgressLedgerInitialStateNotStarted(t *testing.T) {
	pl := ledger.NewProgressLedger([]agentset.Ident{"planner", "writer"})
	require.Equal(t, ledger.NodeNotStarted, pl.State("planner"))
	require.Equal(t, ledger.NodeNotStarted, pl.State("writer"))
}

func TestProgressLedgerExecutionHistoryMonotone(t *testing.T) {
	pl := ledger.NewProgressLedger([]agentset.Ident{"writer"})
	pl.UpdateNodeState("writer", ledger.NodeInProgress, nil)
	pl.UpdateNodeState("writer", ledger.NodeCompleted, &ledger.ExecutionResult{Success: true})

	hist := pl.ExecutionHistory()
	require.Len(t, hist, 2)
	require.Less(t, hist[0].Sequence, hist[1].Sequence)
	require.Equal(t, ledger.NodeCompleted, hist[1].State)
}

func TestProgressLedgerStallCountFloorsAtZero(t *testing.T) {
	pl := ledger.NewProgressLedger([]agentset.Ident{"writer"})
	pl.RecordSuccess()
	require.Equal(t, 0, pl.StallCount())
	pl.RecordFailure()
	pl.RecordFailure()
	require.Equal(t, 2, pl.StallCount())
	pl.RecordSuccess()
	require.Equal(t, 1, pl.StallCount())
}

func TestProgressLedgerRetryCounts(t *testing.T) {
	pl := ledger.NewProgressLedger([]agentset.Ident{"test_runner"})
	require.Equal(t, 1, pl.IncrementRetry("test_runner"))
	require.Equal(t, 2, pl.IncrementRetry("test_runner"))
	require.Equal(t, 2, pl.RetryCountOf("test_runner"))
	pl.ResetRetry("test_runner")
	require.Equal(t, 0, pl.RetryCountOf("test_runner"))
}

func TestProgressLedgerInstructionRegeneration(t *testing.T) {
	pl := ledger.NewProgressLedger([]agentset.Ident{"writer"})
	pl.SetInstruction("writer", "first")
	require.Equal(t, "first", pl.Instruction("writer"))
	pl.SetInstruction("writer", "second")
	require.Equal(t, "second", pl.Instruction("writer"))
}
