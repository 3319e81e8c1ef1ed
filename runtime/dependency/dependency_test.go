package dependency_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/dependency"
	"goa.design/conductor/runtime/ledger"
)

func TestCheckerReportsSatisfiedAndUnsatisfied(t *testing.T) {
	table := dependency.Table{
		"test_gen": {{Upstream: "writer", RequiredState: ledger.NodeCompleted}},
		"refactor": {{Upstream: "test_runner", RequiredState: ledger.NodeFailed}},
	}
	checker := dependency.New(table)

	pl := ledger.NewProgressLedger([]agentset.Ident{"writer", "test_runner"})
	pl.UpdateNodeState("writer", ledger.NodeCompleted, nil)

	require.True(t, checker.Satisfied("test_gen", pl))
	require.False(t, checker.Satisfied("refactor", pl))

	report := checker.Report("test_gen", pl)
	require.Contains(t, report, "writer")
	require.Contains(t, report, "satisfied")

	pl.UpdateNodeState("test_runner", ledger.NodeInProgress, nil)
	pl.UpdateNodeState("test_runner", ledger.NodeFailed, &ledger.ExecutionResult{Success: false})
	require.True(t, checker.Satisfied("refactor", pl))
}

func TestCheckerReportsNoDependencies(t *testing.T) {
	checker := dependency.New(dependency.Table{})
	pl := ledger.NewProgressLedger([]agentset.Ident{"planner"})
	report := checker.Report("planner", pl)
	require.Contains(t, report, "no declared dependencies")
}
