package conversation

import (
	"context"
	"strings"

	"cookin/internal/mealplan"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

// handleCookFeedback closes out a cook reminder: the meal is marked
// skipped or cooked with an optional rating, and well-rated meals the
// user wants to keep are promoted into their saved recipes.
func (h *Handler) handleCookFeedback(ctx context.Context, u *user.User, text string) (string, error) {
	mealID, _ := u.StateContext["planned_meal_id"].(string)

	parsed, err := h.llmParse(ctx, u, user.StateAwaitingCookFeedback, text)
	if err != nil {
		return "", err
	}

	if parsed.Intent == "cook_skipped" {
		if mealID != "" {
			if err := h.plans.SetMealStatus(ctx, mealID, mealplan.MealSkipped); err != nil {
				return "", err
			}
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
			return "", err
		}
		if parsed.Reply != "" {
			return parsed.Reply, nil
		}
		return "No worries, there's always next time!", nil
	}

	rating := intFromData(parsed.Data, "rating", 0)
	notes, _ := parsed.Data["notes"].(string)
	wantToSave, _ := parsed.Data["want_to_save"].(bool)

	if mealID != "" {
		if err := h.plans.SetMealStatus(ctx, mealID, mealplan.MealCooked); err != nil {
			return "", err
		}
		if rating >= 1 && rating <= 5 {
			if err := h.plans.SetMealFeedback(ctx, mealID, rating, notes); err != nil {
				return "", err
			}
		}

		if wantToSave && rating >= 3 {
			if err := h.saveCookedMeal(ctx, u, mealID, rating, notes); err != nil {
				h.logger.Error("failed to save cooked meal as recipe", "meal", mealID, "error", err)
			}
		}
	}

	if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
		return "", err
	}
	if parsed.Reply != "" {
		return parsed.Reply, nil
	}
	return "Thanks for the feedback!", nil
}

func (h *Handler) saveCookedMeal(ctx context.Context, u *user.User, mealID string, rating int, notes string) error {
	meal, err := h.plans.GetMeal(ctx, mealID)
	if err != nil {
		return err
	}
	if meal == nil {
		return nil
	}

	existing, err := h.recipes.FindByName(ctx, u.PhoneNumber, meal.RecipeName)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := h.recipes.SetRating(ctx, existing.ID, rating); err != nil {
			return err
		}
		return h.recipes.MarkCooked(ctx, existing.ID)
	}

	ingredients := make([]recipe.Ingredient, 0, len(meal.Ingredients))
	for _, ing := range meal.Ingredients {
		ingredients = append(ingredients, recipe.Ingredient{Name: ing.Name, Qty: ing.Qty, Unit: ing.Unit})
	}

	modified := ""
	if strings.TrimSpace(notes) != "" {
		modified = meal.RecipeSteps + "\n\nUser modifications: " + notes
	}

	saved, err := h.recipes.Save(ctx, recipe.SavedRecipe{
		UserPhone:           u.PhoneNumber,
		Name:                meal.RecipeName,
		OriginalRecipeSteps: meal.RecipeSteps,
		ModifiedRecipeSteps: modified,
		Ingredients:         ingredients,
		CookTimeMin:         meal.CookTimeMin,
		Notes:               notes,
	})
	if err != nil {
		return err
	}
	return h.recipes.SetRating(ctx, saved.ID, rating)
}
