package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cookin/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiClient is a client for the Google Gemini API.
type geminiClient struct {
	client  *genai.Client
	model   string
	usageFn UsageFunc
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg *config.Config, usageFn UsageFunc) (Gateway, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.LLMAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{client: client, model: cfg.LLMModel, usageFn: usageFn}, nil
}

// Chat sends the transcript to Gemini and returns the generated reply.
// Gemini has no per-call tool ids, so tool calls are identified by function
// name; the executor round-trips the id back as the ToolCallID.
func (c *geminiClient) Chat(ctx context.Context, messages []Message, opts *Options) (*Response, error) {
	model := c.client.GenerativeModel(c.model)

	if opts != nil && len(opts.Tools) > 0 {
		tool := &genai.Tool{}
		for _, t := range opts.Tools {
			decl := &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(t.Parameters),
			}
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, decl)
		}
		model.Tools = []*genai.Tool{tool}
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(m.Content)},
			}
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						args = map[string]any{}
					}
				}
				content.Parts = append(content.Parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			contents = append(contents, content)
		case RoleTool:
			var payload map[string]any
			if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
				payload = map[string]any{"result": m.Content}
			}
			contents = append(contents, &genai.Content{
				Role:  "function",
				Parts: []genai.Part{genai.FunctionResponse{Name: m.ToolCallID, Response: payload}},
			})
		}
	}

	if len(contents) == 0 {
		return nil, fmt.Errorf("no user content to send")
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	start := time.Now()
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	result := &Response{Usage: TokenUsage{Model: c.model}}
	if resp.UsageMetadata != nil {
		result.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.Usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			result.Content += string(p)
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				args = []byte("{}")
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        p.Name,
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}

	if c.usageFn != nil {
		c.usageFn(result.Usage, time.Since(start))
	}

	return result, nil
}

// Close closes the underlying Gemini client.
func (c *geminiClient) Close() error {
	return c.client.Close()
}

// toGeminiSchema converts the JSON-schema subset used by our tool
// definitions into the genai schema type.
func toGeminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	out := &genai.Schema{}
	switch schema["type"] {
	case "object":
		out.Type = genai.TypeObject
		if props, ok := schema["properties"].(map[string]any); ok {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, sub := range props {
				if subMap, ok := sub.(map[string]any); ok {
					out.Properties[name] = toGeminiSchema(subMap)
				}
			}
		}
		if required, ok := schema["required"].([]string); ok {
			out.Required = required
		} else if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
	case "array":
		out.Type = genai.TypeArray
		if items, ok := schema["items"].(map[string]any); ok {
			out.Items = toGeminiSchema(items)
		}
	case "number", "integer":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}

	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if enum, ok := schema["enum"].([]string); ok {
		out.Enum = enum
	}

	return out
}
