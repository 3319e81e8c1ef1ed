// Package bedrock adapts modelclient.Client to the AWS Bedrock Converse API
// via github.com/aws/aws-sdk-go-v2/service/bedrockruntime (spec §6.1, §6.6).
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"goa.design/conductor/runtime/modelclient"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client the
// adapter needs, matching *bedrockruntime.Client so tests can substitute a
// fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
}

// Client implements modelclient.Client over the Bedrock Converse API. The
// orchestrator never calls tools or streams, so unlike the teacher's
// adapter this one carries no tool configuration, cache checkpoints, or
// thinking-budget translation.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds a Bedrock-backed client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: opts.Runtime, defaultModel: opts.DefaultModel}, nil
}

// Complete issues a Converse request and concatenates the text blocks of the
// response message into a single string.
func (c *Client) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	var system []brtypes.SystemContentBlock
	var conversation []brtypes.Message
	for _, m := range req.Messages {
		if m.Role == modelclient.ConversationRoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == modelclient.ConversationRoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}
	if len(conversation) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateResponse(output), nil
}

func inferenceConfig(maxTokens int, temperature float32) *brtypes.InferenceConfiguration {
	if maxTokens <= 0 && temperature <= 0 {
		return nil
	}
	cfg := &brtypes.InferenceConfiguration{}
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if temperature > 0 {
		cfg.Temperature = aws.Float32(temperature)
	}
	return cfg
}

func translateResponse(output *bedrockruntime.ConverseOutput) *modelclient.Response {
	resp := &modelclient.Response{}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if text, ok := block.(*brtypes.ContentBlockMemberText); ok && text.Value != "" {
				resp.Content += text.Value
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = modelclient.TokenUsage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp
}

func ptrValue(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
