// Package modelclient defines the provider-agnostic LLM client contract used
// by the instruction builder, next-speaker selector, and outer planner. The
// orchestrator never streams; only the final text completion is consumed.
package modelclient

import (
	"context"
	"errors"
)

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	// ConversationRoleSystem is the role for system messages.
	ConversationRoleSystem ConversationRole = "system"
	// ConversationRoleUser is the role for user messages.
	ConversationRoleUser ConversationRole = "user"
	// ConversationRoleAssistant is the role for assistant messages.
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Message is a single role-tagged chat message. Unlike the teacher's
	// multimodal model.Message, Conductor's LLM calls are always plain text:
	// the orchestrator composes and reads prompts, never tool calls or images.
	Message struct {
		Role    ConversationRole
		Content string
	}

	// Request captures a single chat-completion invocation.
	Request struct {
		// RunID identifies the logical orchestrator run, for correlation in
		// telemetry and provider-side request logging.
		RunID string
		// Model is the provider-specific model identifier. Empty selects the
		// client's configured default.
		Model string
		// Messages is the ordered transcript provided to the model.
		Messages []Message
		// Temperature controls sampling when supported by the provider.
		Temperature float32
		// MaxTokens caps the number of output tokens when supported.
		MaxTokens int
	}

	// TokenUsage reports token consumption for a single Complete call.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Response is the result of a chat-completion invocation.
	Response struct {
		// Content is the text produced by the model.
		Content string
		// Usage reports token consumption for the request.
		Usage TokenUsage
		// StopReason records why generation stopped (provider-specific).
		StopReason string
	}

	// Client is the provider-agnostic model client (spec §6.1).
	Client interface {
		// Complete performs a non-streaming model invocation and returns the
		// final text content.
		Complete(ctx context.Context, req *Request) (*Response, error)
	}
)

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting any configured retries.
var ErrRateLimited = errors.New("modelclient: rate limited")
