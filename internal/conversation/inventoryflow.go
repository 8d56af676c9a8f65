package conversation

import (
	"context"
	"fmt"

	"cookin/internal/user"
)

// handleInventoryConfirmation resolves the numbered checklist the user
// was sent. The model returns zero-based indices of items to keep; the
// handler maps them back to item IDs, keeps anything that was never on
// the checklist, and prunes the rest.
func (h *Handler) handleInventoryConfirmation(ctx context.Context, u *user.User, text string) (string, error) {
	var checklistIDs []int64
	decodeInto(u.StateContext["inventory_checklist"], &checklistIDs)

	items, err := h.inventory.List(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}

	parsed, err := h.llmParse(ctx, u, user.StateAwaitingInventory, text)
	if err != nil {
		return "", err
	}
	var keepIndices []int
	decodeInto(parsed.Data["keep_indices"], &keepIndices)

	var idsToKeep []int64
	for _, idx := range keepIndices {
		if idx >= 0 && idx < len(checklistIDs) {
			idsToKeep = append(idsToKeep, checklistIDs[idx])
		}
	}

	// a stale checklist must never cause items it doesn't know about
	// to be deleted
	onChecklist := make(map[int64]bool, len(checklistIDs))
	for _, id := range checklistIDs {
		onChecklist[id] = true
	}
	for _, item := range items {
		if !onChecklist[item.ID] {
			idsToKeep = append(idsToKeep, item.ID)
		}
	}

	if err := h.inventory.KeepOnly(ctx, u.PhoneNumber, idsToKeep); err != nil {
		return "", err
	}

	if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
		return "", err
	}

	kept := len(keepIndices)
	removed := len(checklistIDs) - kept
	summary := "Great, you still have everything! Let me put together your meal plan..."
	if removed > 0 {
		summary = fmt.Sprintf("Updated! Kept %d items, removed %d. Let me put together your meal plan...", kept, removed)
	}

	// the confirmed inventory feeds straight into this week's plan
	planReply, err := h.generateAndSendMealPlan(ctx, u)
	if err != nil {
		h.logger.Error("failed to generate plan after inventory confirmation",
			"user", u.PhoneNumber, "error", err)
		return summary, nil
	}
	return summary + "\n\n" + planReply, nil
}
