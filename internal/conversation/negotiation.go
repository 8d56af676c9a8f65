package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cookin/internal/llm"
	"cookin/internal/mealplan"
	"cookin/internal/user"
)

// mealData is the per-meal shape the model emits when generating plans.
type mealData struct {
	Day         string               `json:"day"`
	MealType    string               `json:"meal_type"`
	RecipeName  string               `json:"recipe_name"`
	RecipeSteps string               `json:"recipe_steps"`
	Ingredients []mealplan.Ingredient `json:"ingredients"`
	CookTimeMin int                  `json:"cook_time_min"`
}

func (m mealData) toPlannedMeal() mealplan.PlannedMeal {
	return mealplan.PlannedMeal{
		Day:         m.Day,
		MealType:    m.MealType,
		RecipeName:  m.RecipeName,
		RecipeSteps: m.RecipeSteps,
		Ingredients: m.Ingredients,
		CookTimeMin: m.CookTimeMin,
	}
}

// GeneratePlanFor builds a fresh weekly plan for the user and parks
// them in the approval state. Exposed for the scheduler's grocery-day
// job; inside the conversation flows, generateAndSendMealPlan is used
// directly.
func (h *Handler) GeneratePlanFor(ctx context.Context, u *user.User) (string, error) {
	return h.generateAndSendMealPlan(ctx, u)
}

// generateAndSendMealPlan asks the model for a full week's plan, stores
// it as a draft, and parks the user in the approval state with the plan
// summary in context.
func (h *Handler) generateAndSendMealPlan(ctx context.Context, u *user.User) (string, error) {
	items, err := h.inventory.List(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}
	recipes, err := h.recipes.List(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}

	systemPrompt := buildMealPlanPrompt(u, items, recipes)
	resp, err := h.gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "Generate my meal plan for this week."},
	}, nil)
	if err != nil {
		return "", err
	}

	parsed := ParseResponse(resp.Content)
	var meals []mealData
	decodeInto(parsed.Data["meals"], &meals)
	if len(meals) == 0 {
		if parsed.Reply != "" {
			return parsed.Reply, nil
		}
		return "I had trouble generating a meal plan. Could you try asking again?", nil
	}

	planned := make([]mealplan.PlannedMeal, 0, len(meals))
	for _, m := range meals {
		planned = append(planned, m.toPlannedMeal())
	}

	plan, err := h.plans.CreatePlan(ctx, u.PhoneNumber, currentWeekStart(), planned)
	if err != nil {
		return "", err
	}

	if err := h.setPendingPlanState(ctx, u.PhoneNumber, plan); err != nil {
		return "", err
	}
	return parsed.Reply, nil
}

// currentWeekStart returns this week's Monday as a date string.
func currentWeekStart() string {
	now := time.Now()
	offset := int(now.Weekday()) - 1
	if now.Weekday() == time.Sunday {
		offset = 6
	}
	return now.AddDate(0, 0, -offset).Format("2006-01-02")
}

// setPendingPlanState parks the user in approval with a compact plan
// summary so the negotiation prompt can render it.
func (h *Handler) setPendingPlanState(ctx context.Context, phone string, plan *mealplan.MealPlan) error {
	summaries := make([]map[string]any, 0, len(plan.Meals))
	for _, m := range plan.Meals {
		summaries = append(summaries, map[string]any{
			"day":           m.Day,
			"meal_type":     m.MealType,
			"recipe_name":   m.RecipeName,
			"cook_time_min": m.CookTimeMin,
		})
	}
	return h.users.SetConversationState(ctx, phone, user.StateAwaitingPlanApproval, map[string]any{
		"plan_id":      plan.ID,
		"pending_plan": map[string]any{"meals": summaries},
	})
}

func (h *Handler) handleMealPlanNegotiation(ctx context.Context, u *user.User, text string) (string, error) {
	parsed, err := h.llmParse(ctx, u, user.StateAwaitingPlanApproval, text)
	if err != nil {
		return "", err
	}
	planID, _ := u.StateContext["plan_id"].(string)

	switch parsed.Intent {
	case "accept_plan":
		if err := h.plans.Confirm(ctx, planID); err != nil {
			return "", err
		}
		plan, err := h.plans.GetCurrentPlan(ctx, u.PhoneNumber)
		if err != nil {
			return "", err
		}
		if plan != nil {
			groceryReply, err := h.generateGroceryList(ctx, u, plan)
			if err != nil {
				return "", err
			}
			if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
				return "", err
			}
			return parsed.Reply + "\n\n" + groceryReply, nil
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
			return "", err
		}
		return parsed.Reply, nil

	case "swap_meal":
		return h.handleSwap(ctx, u, planID, parsed)

	case "reject_plan":
		if err := h.plans.Complete(ctx, planID); err != nil {
			return "", err
		}
		return h.generateAndSendMealPlan(ctx, u)

	case "skip_day":
		day, _ := parsed.Data["day"].(string)
		if day != "" {
			plan, err := h.plans.GetCurrentPlan(ctx, u.PhoneNumber)
			if err != nil {
				return "", err
			}
			if plan != nil {
				for _, m := range plan.Meals {
					if strings.EqualFold(m.Day, day) {
						if err := h.plans.SetMealStatus(ctx, m.ID, mealplan.MealSkipped); err != nil {
							return "", err
						}
					}
				}
			}
		}
		if parsed.Reply != "" {
			return parsed.Reply, nil
		}
		return fmt.Sprintf("Skipping %s this week.", orDefault(day, "that day")), nil

	default:
		return parsed.Reply, nil
	}
}

func (h *Handler) handleSwap(ctx context.Context, u *user.User, planID string, parsed Parsed) (string, error) {
	var days []string
	decodeInto(parsed.Data["days"], &days)
	if day, _ := parsed.Data["day"].(string); day != "" && len(days) == 0 {
		days = []string{day}
	}
	mealType, _ := parsed.Data["meal_type"].(string)
	reason, _ := parsed.Data["reason"].(string)

	if len(days) == 0 {
		if parsed.Reply != "" {
			return parsed.Reply, nil
		}
		return "Which day's meal do you want to swap?", nil
	}

	plan, err := h.plans.GetCurrentPlan(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}

	for _, swapDay := range days {
		if plan == nil {
			break
		}

		if err := h.plans.RemoveMealsForDay(ctx, planID, swapDay, mealType); err != nil {
			return "", err
		}

		var existingNames []string
		for _, m := range plan.Meals {
			if !strings.EqualFold(m.Day, swapDay) {
				existingNames = append(existingNames, m.RecipeName)
			}
		}
		typesToRegenerate := []string{mealType}
		if mealType == "" {
			typesToRegenerate = []string{"breakfast", "lunch", "dinner"}
		}

		if err := h.generateSwapMeals(ctx, u, planID, swapDay, typesToRegenerate, reason, existingNames); err != nil {
			h.logger.Error("failed to generate swap", "day", swapDay, "error", err)
		}
	}

	updated, err := h.plans.GetCurrentPlan(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}
	planText := ""
	if updated != nil {
		planText = formatPlanText(updated)
		if err := h.setPendingPlanState(ctx, u.PhoneNumber, updated); err != nil {
			return "", err
		}
	}

	return "Here's the updated plan:\n\n" + planText + "\n\nWant to swap anything else, or does this look good?", nil
}

func (h *Handler) generateSwapMeals(ctx context.Context, u *user.User, planID, day string, mealTypes []string, reason string, existingNames []string) error {
	items, err := h.inventory.List(ctx, u.PhoneNumber)
	if err != nil {
		return err
	}
	recipes, err := h.recipes.List(ctx, u.PhoneNumber)
	if err != nil {
		return err
	}

	request := fmt.Sprintf("Generate replacement meals for %s: %s.", day, strings.Join(mealTypes, ", "))
	if reason != "" {
		request += " Preference: " + reason + "."
	}
	request += " Must be different from: " + strings.Join(existingNames, ", ")

	resp, err := h.gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: buildMealPlanPrompt(u, items, recipes)},
		{Role: llm.RoleUser, Content: request},
	}, nil)
	if err != nil {
		return err
	}

	parsed := ParseResponse(resp.Content)
	var meals []mealData
	decodeInto(parsed.Data["meals"], &meals)

	for _, m := range meals {
		planned := m.toPlannedMeal()
		planned.Day = day
		if err := h.plans.AddMeal(ctx, planID, planned); err != nil {
			return err
		}
	}
	return nil
}

var dayOrder = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func formatPlanText(plan *mealplan.MealPlan) string {
	typeIcon := map[string]string{"breakfast": "🌅", "lunch": "☀️", "dinner": "🌙"}

	byDay := map[string][]mealplan.PlannedMeal{}
	for _, m := range plan.Meals {
		key := capitalize(strings.ToLower(m.Day))
		byDay[key] = append(byDay[key], m)
	}

	var lines []string
	for _, day := range dayOrder {
		meals, ok := byDay[day]
		if !ok {
			continue
		}
		lines = append(lines, day)
		for _, m := range meals {
			icon := typeIcon[m.MealType]
			if icon == "" {
				icon = "🍽️"
			}
			lines = append(lines, fmt.Sprintf("  %s %s — %s (%d min)",
				icon, capitalize(m.MealType), m.RecipeName, m.CookTimeMin))
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// generateGroceryList builds and stores the shopping list for a
// confirmed plan's pending meals.
func (h *Handler) generateGroceryList(ctx context.Context, u *user.User, plan *mealplan.MealPlan) (string, error) {
	var pending []mealplan.PlannedMeal
	for _, m := range plan.Meals {
		if m.Status == mealplan.MealPending {
			pending = append(pending, m)
		}
	}

	items, err := h.inventory.List(ctx, u.PhoneNumber)
	if err != nil {
		return "", err
	}

	resp, err := h.gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: buildGroceryListPrompt(u, pending, items)},
		{Role: llm.RoleUser, Content: "Generate my grocery list."},
	}, nil)
	if err != nil {
		return "", err
	}

	parsed := ParseResponse(resp.Content)
	var groceryItems []mealplan.GroceryItem
	decodeInto(parsed.Data["items"], &groceryItems)
	if _, err := h.plans.CreateGroceryList(ctx, plan.ID, groceryItems); err != nil {
		return "", err
	}

	if parsed.Reply != "" {
		return parsed.Reply, nil
	}
	return "Could not generate grocery list.", nil
}
