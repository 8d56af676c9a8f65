// Package tools runs the model's tool-calling loop against a registry
// of named handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cookin/internal/llm"
)

// The loop stops requesting tools after this many rounds and forces a
// plain text answer.
const maxRounds = 10

// Handler executes one tool call. Arguments are the decoded JSON object
// the model supplied. A returned error becomes an error result the
// model can react to; it never aborts the conversation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs a definition the model sees with the handler that runs it.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler
}

// Executor drives chat calls until the model stops asking for tools.
type Executor struct {
	gateway llm.Gateway
	logger  *slog.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(gateway llm.Gateway, logger *slog.Logger) *Executor {
	return &Executor{gateway: gateway, logger: logger}
}

// Run sends the transcript with the given tools and resolves every tool
// call round until the model answers in text. The final text content is
// returned. Handler failures and unknown tool names are fed back to the
// model as error results rather than surfaced as Go errors.
func (e *Executor) Run(ctx context.Context, messages []llm.Message, catalogue []Tool) (string, error) {
	handlers := make(map[string]Handler, len(catalogue))
	defs := make([]llm.ToolDefinition, 0, len(catalogue))
	for _, tool := range catalogue {
		handlers[tool.Definition.Name] = tool.Handler
		defs = append(defs, tool.Definition)
	}

	transcript := append([]llm.Message(nil), messages...)
	opts := &llm.Options{Tools: defs}

	for round := 0; round < maxRounds; round++ {
		resp, err := e.gateway.Chat(ctx, transcript, opts)
		if err != nil {
			return "", fmt.Errorf("chat failed: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		transcript = append(transcript, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := e.execute(ctx, handlers, call)
			transcript = append(transcript, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// model kept asking for tools; take the tools away and get an answer
	e.logger.Warn("tool loop hit round limit, forcing final answer")
	resp, err := e.gateway.Chat(ctx, transcript, nil)
	if err != nil {
		return "", fmt.Errorf("final chat failed: %w", err)
	}
	return resp.Content, nil
}

func (e *Executor) execute(ctx context.Context, handlers map[string]Handler, call llm.ToolCall) string {
	handler, ok := handlers[call.Name]
	if !ok {
		e.logger.Warn("model requested unknown tool", "tool", call.Name)
		return errorResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := handler(ctx, args)
	if err != nil {
		e.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return errorResult(err.Error())
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Sprintf("unencodable result: %v", err))
	}
	return string(encoded)
}

func errorResult(message string) string {
	encoded, _ := json.Marshal(map[string]string{"error": message})
	return string(encoded)
}
