package llm

import (
	"context"
	"fmt"
	"time"

	"cookin/internal/config"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a chat transcript, in the canonical shape shared
// by all providers. Provider adapters translate to and from their own wire
// formats; nothing outside this package sees a provider-specific message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition declares a callable action with JSON-schema parameters.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options modifies a single chat call.
type Options struct {
	Tools []ToolDefinition
}

// Response is the model's reply.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// UsageFunc receives token usage after every successful chat call.
type UsageFunc func(usage TokenUsage, latency time.Duration)

// Gateway is the single capability the conversation core depends on.
type Gateway interface {
	Chat(ctx context.Context, messages []Message, opts *Options) (*Response, error)
}

// Closer is an interface for closing provider resources.
type Closer interface {
	Close() error
}

// NewGateway creates the provider selected by configuration.
func NewGateway(ctx context.Context, cfg *config.Config, usageFn UsageFunc) (Gateway, error) {
	switch cfg.LLMProvider {
	case "openai", "openai-compatible":
		return NewOpenAIClient(cfg, usageFn), nil
	case "google":
		return NewGeminiClient(ctx, cfg, usageFn)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}
