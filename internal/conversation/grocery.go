package conversation

import (
	"context"

	"cookin/internal/inventory"
	"cookin/internal/user"
)

// handleGroceryConfirmation folds the shopping trip back into the
// inventory and, if the user got everything, marks the plan's grocery
// list fulfilled.
func (h *Handler) handleGroceryConfirmation(ctx context.Context, u *user.User, text string) (string, error) {
	parsed, err := h.llmParse(ctx, u, user.StateAwaitingGrocery, text)
	if err != nil {
		return "", err
	}

	var bought []struct {
		ItemName string `json:"item_name"`
		Quantity string `json:"quantity"`
		Category string `json:"category"`
	}
	decodeInto(parsed.Data["bought_items"], &bought)
	if len(bought) > 0 {
		items := make([]inventory.Item, 0, len(bought))
		for _, b := range bought {
			items = append(items, inventory.Item{Name: b.ItemName, Quantity: b.Quantity, Category: b.Category})
		}
		if err := h.inventory.AddBatch(ctx, u.PhoneNumber, items); err != nil {
			return "", err
		}
	}

	planID, _ := u.StateContext["plan_id"].(string)
	gotEverything, _ := parsed.Data["got_everything"].(bool)
	if planID != "" && gotEverything {
		list, err := h.plans.GetGroceryList(ctx, planID)
		if err != nil {
			return "", err
		}
		if list != nil {
			if err := h.plans.FulfillGroceryList(ctx, list.ID); err != nil {
				return "", err
			}
		}
	}

	if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
		return "", err
	}
	if parsed.Reply != "" {
		return parsed.Reply, nil
	}
	return "Got it! Your inventory is updated. Happy cooking!", nil
}
