// Package anthropic adapts modelclient.Client to the Anthropic Claude
// Messages API via github.com/anthropics/anthropic-sdk-go (spec §6.1, §6.6).
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/conductor/runtime/modelclient"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter, satisfied by *sdk.MessageService in production and a fake in
// tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the Anthropic adapter.
type Options struct {
	// DefaultModel is used when a Request does not specify Model.
	DefaultModel string
	// MaxTokens is the completion cap applied when Request.MaxTokens is
	// zero or negative.
	MaxTokens int
}

// Client implements modelclient.Client on top of Anthropic Claude Messages.
// Unlike the teacher's adapter, it carries no tool/thinking/streaming
// translation: the orchestrator only ever asks for plain text completions.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds an Anthropic-backed client from the Messages client and
// configuration options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client,
// reading ANTHROPIC_API_KEY-derived defaults via sdk.NewClient.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete issues a non-streaming Messages.New request and concatenates the
// text blocks of the response into a single string.
func (c *Client) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var system string
	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case modelclient.ConversationRoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case modelclient.ConversationRoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func translateResponse(msg *sdk.Message) *modelclient.Response {
	var content string
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			content += text
		}
	}
	return &modelclient.Response{
		Content: content,
		Usage: modelclient.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}
}
