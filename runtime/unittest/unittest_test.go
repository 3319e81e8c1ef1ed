package unittest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/runtime/unittest"
)

const sampleOutput = `test_add (tests.TestMath) ... ok
test_sub (tests.TestMath) ... ok
FAIL: test_divide_by_zero (tests.TestMath)
Traceback (most recent call last):
  File "tests.py", line 12, in test_divide_by_zero
AssertionError: expected ZeroDivisionError
ERROR: test_import (tests.TestImports)
Traceback (most recent call last):
ModuleNotFoundError: No module named 'numpy'
Ran 4 tests in 0.012s
`

func TestParseExtractsFailuresAndSummary(t *testing.T) {
	failures, summary := unittest.Parse(sampleOutput)
	require.Len(t, failures, 2)
	require.Contains(t, failures[0].Header, "test_divide_by_zero")
	require.Contains(t, failures[1].Header, "test_import")
	require.True(t, summary.Found)
	require.Equal(t, 4, summary.Ran)
	require.Equal(t, 2, summary.Passed)
}

func TestAnalyzeClassifiesKnownPatterns(t *testing.T) {
	failures, _ := unittest.Parse(sampleOutput)
	analysis := unittest.Analyze(failures)
	require.Contains(t, analysis.Patterns, "assertion_error")
	require.Contains(t, analysis.Patterns, "import_error")
	require.Len(t, analysis.Recommendations, len(analysis.Patterns))
}

func TestStoreRecordAndRetrieve(t *testing.T) {
	store := unittest.New(nil)
	ctx := context.Background()

	store.RecordCompleteTestExecution(ctx, "test_runner", "run suite", sampleOutput, false, time.Second, nil, nil)

	record, ok := store.GetDetailedTestInfoForRefactoring("test_runner")
	require.True(t, ok)
	require.Equal(t, sampleOutput, record.RawOutput, "raw output must be preserved verbatim")
	require.False(t, record.Success)
	require.NotEmpty(t, record.Analysis.Recommendations)

	history := store.GetTestHistory(10)
	require.Len(t, history, 1)
}

func TestGetDetailedTestInfoForRefactoringMissingAgent(t *testing.T) {
	store := unittest.New(nil)
	_, ok := store.GetDetailedTestInfoForRefactoring("nonexistent")
	require.False(t, ok)
}
