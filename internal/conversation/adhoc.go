package conversation

import (
	"context"

	"cookin/internal/llm"
	"cookin/internal/messagelog"
	"cookin/internal/user"
)

// handleAdHoc answers free-form messages with the tool-calling loop:
// the model sees recent conversation, the user's data, and a catalogue
// of actions bound to this user.
func (h *Handler) handleAdHoc(ctx context.Context, u *user.User, text string) (string, error) {
	snap := h.snapshotFor(ctx, u, user.StateIdle)
	systemPrompt := buildIdleToolPrompt(u, snap)

	recent, err := h.messages.Recent(ctx, u.PhoneNumber, 10)
	if err != nil {
		return "", err
	}
	// the current inbound message was already logged; drop it so it
	// only appears once at the end of the transcript
	if n := len(recent); n > 0 && recent[n-1].Direction == messagelog.DirectionInbound && recent[n-1].Content == text {
		recent = recent[:n-1]
	}

	messages := make([]llm.Message, 0, len(recent)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, entry := range recent {
		role := llm.RoleAssistant
		if entry.Direction == messagelog.DirectionInbound {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	return h.executor.Run(ctx, messages, h.toolsForUser(u.PhoneNumber))
}
