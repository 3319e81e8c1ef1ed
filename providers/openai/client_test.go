package openai_test

import (
	"context"
	"testing"

	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"goa.design/conductor/providers/openai"
	"goa.design/conductor/runtime/modelclient"
)

type fakeChatClient struct {
	resp openaisdk.ChatCompletionResponse
	err  error
	req  openaisdk.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, request openaisdk.ChatCompletionRequest) (openaisdk.ChatCompletionResponse, error) {
	f.req = request
	return f.resp, f.err
}

func TestCompleteTranslatesRequestAndResponse(t *testing.T) {
	fake := &fakeChatClient{resp: openaisdk.ChatCompletionResponse{
		Choices: []openaisdk.ChatCompletionChoice{{
			Message:      openaisdk.ChatCompletionMessage{Role: "assistant", Content: "hello"},
			FinishReason: openaisdk.FinishReasonStop,
		}},
		Usage: openaisdk.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	c, err := openai.New(openai.Options{Client: fake, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &modelclient.Request{
		Messages: []modelclient.Message{{Role: modelclient.ConversationRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Content)
	require.Equal(t, 15, resp.Usage.TotalTokens)
	require.Equal(t, "gpt-4o", fake.req.Model)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := openai.New(openai.Options{Client: &fakeChatClient{}, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &modelclient.Request{})
	require.Error(t, err)
}
