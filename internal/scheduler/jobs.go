package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cookin/internal/user"
)

// runInventoryConfirmation sends the numbered pantry checklist on
// grocery day and parks the user in the confirmation state. A user
// with nothing in their inventory skips straight to plan generation.
func (s *Scheduler) runInventoryConfirmation(ctx context.Context, phoneNumber string) error {
	u, err := s.users.Get(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	if u.ConversationState != user.StateIdle {
		s.logger.Info("skipping inventory confirmation, user is busy",
			"user", phoneNumber, "state", u.ConversationState)
		return nil
	}

	items, err := s.inventory.List(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return s.runPlanGeneration(ctx, u)
	}

	var lines []string
	ids := make([]any, 0, len(items))
	for i, item := range items {
		line := fmt.Sprintf("%d. %s", i+1, item.Name)
		if item.Quantity != "" {
			line += fmt.Sprintf(" (%s)", item.Quantity)
		}
		if item.IsStaple {
			line += " [staple]"
		} else {
			line += " - added " + relativeDate(item.LastUpdated)
		}
		lines = append(lines, line)
		ids = append(ids, item.ID)
	}

	message := "Before I plan this week, let me check what you have.\n\n" +
		"Here's what I think is in your kitchen:\n" + strings.Join(lines, "\n") +
		"\n\nReply with the numbers you still have, e.g. \"1,2,3,5\"\nOr reply \"all\" / \"none\""

	err = s.users.SetConversationState(ctx, phoneNumber, user.StateAwaitingInventory, map[string]any{
		"inventory_checklist": ids,
	})
	if err != nil {
		return err
	}
	return s.sender.SendProactive(ctx, phoneNumber, message)
}

func (s *Scheduler) runPlanGeneration(ctx context.Context, u *user.User) error {
	reply, err := s.planner.GeneratePlanFor(ctx, u)
	if err != nil {
		return err
	}
	return s.sender.SendProactive(ctx, u.PhoneNumber, reply)
}

// runCookReminder sends tonight's recipe and opens the feedback state.
// Nothing is sent when the user has no pending meal for the day.
func (s *Scheduler) runCookReminder(ctx context.Context, phoneNumber, day string) error {
	u, err := s.users.Get(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	if u.ConversationState != user.StateIdle {
		s.logger.Info("skipping cook reminder, user is busy",
			"user", phoneNumber, "state", u.ConversationState)
		return nil
	}

	meal, err := s.plans.GetMealForDay(ctx, phoneNumber, day)
	if err != nil {
		return err
	}
	if meal == nil {
		s.logger.Info("no pending meal for cook reminder", "user", phoneNumber, "day", day)
		return nil
	}

	var ingredients []string
	for _, ing := range meal.Ingredients {
		ingredients = append(ingredients, strings.TrimSpace(fmt.Sprintf("- %s %s %s", ing.Qty, ing.Unit, ing.Name)))
	}
	steps := meal.RecipeSteps
	if steps == "" {
		steps = "Recipe steps not available."
	}

	message := fmt.Sprintf("Time to cook! Tonight: %s (%d min)\n\nIngredients:\n%s\n\nSteps:\n%s\n\nNeed to adjust anything? Or reply \"skip\" to skip tonight.",
		meal.RecipeName, meal.CookTimeMin, strings.Join(ingredients, "\n"), steps)

	err = s.users.SetConversationState(ctx, phoneNumber, user.StateAwaitingCookFeedback, map[string]any{
		"planned_meal_id": meal.ID,
	})
	if err != nil {
		return err
	}
	return s.sender.SendProactive(ctx, phoneNumber, message)
}

// runPostCookCheckin nudges for a rating two hours after the cook
// reminder, but only if the user never replied to it.
func (s *Scheduler) runPostCookCheckin(ctx context.Context, phoneNumber string) error {
	u, err := s.users.Get(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if u == nil || u.ConversationState != user.StateAwaitingCookFeedback {
		return nil
	}

	mealID, _ := u.StateContext["planned_meal_id"].(string)
	if mealID == "" {
		return nil
	}
	meal, err := s.plans.GetMeal(ctx, mealID)
	if err != nil {
		return err
	}
	if meal == nil {
		return nil
	}

	message := fmt.Sprintf("How did the %s turn out? Rate 1-5 or tell me what you'd change!", meal.RecipeName)
	return s.sender.SendProactive(ctx, phoneNumber, message)
}

// relativeDate renders a stored timestamp as "today", "yesterday", or
// "N days ago".
func relativeDate(stored string) string {
	t, err := time.Parse("2006-01-02 15:04:05", stored)
	if err != nil {
		return "recently"
	}
	days := int(time.Since(t).Hours() / 24)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
