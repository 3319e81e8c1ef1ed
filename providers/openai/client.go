// Package openai adapts modelclient.Client to the OpenAI Chat Completions
// API via github.com/sashabaranov/go-openai (spec §6.1, §6.6).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"goa.design/conductor/runtime/modelclient"
)

// ChatClient captures the subset of the go-openai client the adapter uses,
// so tests can substitute a fake without reaching the network.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements modelclient.Client via OpenAI Chat Completions.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Client, model: modelID}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// Complete renders the conversation as a Chat Completions request. The
// orchestrator never streams or calls tools, so unlike the teacher's
// adapter this one carries no Tools/ToolCalls translation.
func (c *Client) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

func translateResponse(resp openai.ChatCompletionResponse) *modelclient.Response {
	var content strings.Builder
	for _, choice := range resp.Choices {
		content.WriteString(choice.Message.Content)
	}
	stop := ""
	if len(resp.Choices) > 0 {
		stop = string(resp.Choices[0].FinishReason)
	}
	return &modelclient.Response{
		Content: content.String(),
		Usage: modelclient.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: stop,
	}
}
