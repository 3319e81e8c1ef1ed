package anthropic_test

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"goa.design/conductor/providers/anthropic"
	"goa.design/conductor/runtime/modelclient"
)

type fakeMessagesClient struct {
	resp *sdk.Message
	err  error
	req  sdk.MessageNewParams
}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.req = body
	return f.resp, f.err
}

func TestCompleteConcatenatesTextBlocks(t *testing.T) {
	fake := &fakeMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
		StopReason: "end_turn",
		Usage:      sdk.Usage{InputTokens: 3, OutputTokens: 2},
	}}
	c, err := anthropic.New(fake, anthropic.Options{DefaultModel: "claude-test"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &modelclient.Request{
		Messages: []modelclient.Message{
			{Role: modelclient.ConversationRoleSystem, Content: "be terse"},
			{Role: modelclient.ConversationRoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", resp.Content)
	require.Equal(t, 5, resp.Usage.TotalTokens)
	require.Equal(t, sdk.Model("claude-test"), fake.req.Model)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := anthropic.New(&fakeMessagesClient{}, anthropic.Options{DefaultModel: "claude-test"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &modelclient.Request{})
	require.Error(t, err)
}
