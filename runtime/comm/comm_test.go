package comm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/comm"
)

func TestUpdateAgentContextAndDependencyOutputs(t *testing.T) {
	deps := map[agentset.Ident][]agentset.Ident{
		"test_gen": {"writer"},
	}
	store := comm.New(deps, nil)
	ctx := context.Background()

	store.UpdateAgentContext(ctx, "writer", "write main.py", comm.StateCompleted, "done", nil, map[string]any{
		"file": "output/main.py",
	})

	outputs := store.GetDependencyOutputs("test_gen")
	require.Contains(t, outputs, agentset.Ident("writer"))
	require.Equal(t, "output/main.py", outputs["writer"]["file"])
}

func TestSendMessageAndGetMessagesForAgentFiltersAndSorts(t *testing.T) {
	store := comm.New(nil, nil)
	ctx := context.Background()

	store.SendMessage(ctx, "writer", "refactor", comm.MessageContext, "first", nil)
	store.SendMessage(ctx, "test_runner", "refactor", comm.MessageError, "boom", nil)
	store.SendMessage(ctx, "writer", "refactor", comm.MessageContext, "second", nil)

	errType := comm.MessageError
	onlyErrors := store.GetMessagesForAgent("refactor", &errType, nil, 0)
	require.Len(t, onlyErrors, 1)
	require.Equal(t, "boom", onlyErrors[0].Content)

	all := store.GetMessagesForAgent("refactor", nil, nil, 0)
	require.Len(t, all, 3)
	require.Equal(t, "second", all[0].Content, "expected descending timestamp order")
}

func TestSuggestNextActionsDefaultsWhenNothingApplies(t *testing.T) {
	store := comm.New(nil, nil)
	require.Equal(t, []string{"continue current task"}, store.SuggestNextActions("writer"))
}

func TestSuggestNextActionsWaitsOnIncompleteDependency(t *testing.T) {
	deps := map[agentset.Ident][]agentset.Ident{
		"test_gen": {"writer"},
	}
	store := comm.New(deps, nil)
	suggestions := store.SuggestNextActions("test_gen")
	require.Len(t, suggestions, 1)
	require.Contains(t, suggestions[0], "writer")
}

func TestSuggestNextActionsSurfacesUnreadErrorOnce(t *testing.T) {
	store := comm.New(nil, nil)
	ctx := context.Background()
	store.SendMessage(ctx, "test_runner", "refactor", comm.MessageError, "assertion failed", nil)

	first := store.SuggestNextActions("refactor")
	require.Len(t, first, 1)
	require.Contains(t, first[0], "assertion failed")

	second := store.SuggestNextActions("refactor")
	require.Equal(t, []string{"continue current task"}, second, "message should only surface once")
}
