package selector_test

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
	"goa.design/conductor/runtime/selector"
)

type stubClient struct {
	content string
	err     error
}

func (s stubClient) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &modelclient.Response{Content: s.content}, nil
}

func newLedgers() (*ledger.TaskLedger, *ledger.ProgressLedger) {
	caps := map[agentset.Ident]string{"writer": "writes code", "refactor": "fixes bugs"}
	tl := ledger.NewTaskLedger("build a calculator", caps)
	pl := ledger.NewProgressLedger([]agentset.Ident{"writer", "refactor"})
	return tl, pl
}

func newBuilder(client modelclient.Client) *instruction.Builder {
	checker := dependency.New(dependency.Table{})
	return instruction.New(client, "test-model", checker, "refactor", nil, nil)
}

func TestPickSingleCandidateSkipsLLM(t *testing.T) {
	tl, pl := newLedgers()
	client := stubClient{err: errors.New("should not be called for single candidate instruction path, but builder also uses client")}
	// instruction builder falls back on client error, so this still exercises the
	// single-candidate path without needing a successful completion.
	sel, err := selector.New(client, "test-model", newBuilder(client))
	require.NoError(t, err)

	w := sel.Pick(context.Background(), "run-1", []agentset.Ident{"writer"}, tl, pl)
	require.Equal(t, agentset.Ident("writer"), w)
	require.NotEmpty(t, pl.Instruction("writer"))
}

func TestPickMultiCandidateParsesJSONAndValidatesSpeaker(t *testing.T) {
	tl, pl := newLedgers()
	json := `Here is my answer:
{"request_satisfied": {"answer": false}, "in_loop": {"answer": false}, "making_progress": {"answer": true},
 "next_speaker": {"answer": "refactor"}, "instruction_or_question": {"answer": "fix the failing assertion"}}`
	client := stubClient{content: json}
	sel, err := selector.New(client, "test-model", newBuilder(client))
	require.NoError(t, err)

	w := sel.Pick(context.Background(), "run-1", []agentset.Ident{"writer", "refactor"}, tl, pl)
	require.Equal(t, agentset.Ident("refactor"), w)
	require.Equal(t, "fix the failing assertion", pl.Instruction("refactor"))
}

func TestPickFallsBackToFirstCandidateOnInvalidSpeaker(t *testing.T) {
	tl, pl := newLedgers()
	json := `{"request_satisfied": {"answer": false}, "in_loop": {"answer": false}, "making_progress": {"answer": true},
 "next_speaker": {"answer": "nonexistent"}, "instruction_or_question": {"answer": "keep going"}}`
	client := stubClient{content: json}
	sel, err := selector.New(client, "test-model", newBuilder(client))
	require.NoError(t, err)

	w := sel.Pick(context.Background(), "run-1", []agentset.Ident{"writer", "refactor"}, tl, pl)
	require.Equal(t, agentset.Ident("writer"), w)
}

func TestPickFallsBackToCannedInstructionOnLLMFailure(t *testing.T) {
	tl, pl := newLedgers()
	client := stubClient{err: errors.New("provider unavailable")}
	sel, err := selector.New(client, "test-model", newBuilder(client))
	require.NoError(t, err)

	w := sel.Pick(context.Background(), "run-1", []agentset.Ident{"writer", "refactor"}, tl, pl)
	require.Equal(t, agentset.Ident("writer"), w)
	require.Equal(t, "continue your specialty task", pl.Instruction("writer"))
}
