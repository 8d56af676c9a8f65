package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"cookin/internal/inventory"
	"cookin/internal/mealplan"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

const persona = `You are Cookin, a friendly and practical cooking assistant reachable over chat. You help the user build a consistent cooking habit through meal planning, grocery lists, and cooking reminders.

Your personality:
- Warm but concise (chat messages should be short, no walls of text)
- Practical, not preachy
- Encouraging without being cheesy
- You use simple language, not chef jargon`

const responseFormat = `IMPORTANT: You MUST respond with ONLY a valid JSON object (no markdown, no code fences, no extra text). The JSON must have this structure:
{
  "intent": "<string, the classified intent>",
  "reply": "<string, your chat message to the user>",
  "data": { <optional structured data depending on intent> }
}`

// snapshot is the domain data a prompt may render. The builder decides
// per state which sections actually appear, to keep prompts small.
type snapshot struct {
	Inventory []inventory.Item
	Plan      *mealplan.MealPlan
	Recipes   []recipe.SavedRecipe
}

func stateInstructions(state user.State, stateCtx map[string]any) string {
	switch state {
	case user.StateOnboardingCuisine:
		return `The user is answering: "What cuisines do you enjoy?"
Parse their response into a list of cuisines.
Intent: "onboarding_response"
Data: { "cuisines": ["Indian", "Italian", ...] }`

	case user.StateOnboardingDietary:
		return `The user is answering: "Any dietary restrictions or allergies?"
Parse their response into a list of restrictions, or empty array if none.
Intent: "onboarding_response"
Data: { "dietary_restrictions": ["vegetarian", ...] }`

	case user.StateOnboardingHousehold:
		return `The user is answering: "How many people are you cooking for?"
Parse their response into a number.
Intent: "onboarding_response"
Data: { "household_size": 2 }`

	case user.StateOnboardingSkill:
		return `The user is answering: "How would you rate your cooking skills?"
Classify as one of: beginner, intermediate, advanced.
Intent: "onboarding_response"
Data: { "skill_level": "intermediate" }`

	case user.StateOnboardingCookDays:
		return `The user is answering: "Which days of the week do you want to cook?"
Parse into an array of full day names (Monday, Tuesday, etc.).
Intent: "onboarding_response"
Data: { "cook_days": ["Monday", "Wednesday", "Friday"] }`

	case user.StateOnboardingGroceryDay:
		return `The user is answering: "Which day do you do your grocery shopping?"
Parse into a single day name, plus a time in 24h HH:MM if they mention one.
Intent: "onboarding_response"
Data: { "grocery_day": "Saturday", "grocery_time": "10:00" }`

	case user.StateOnboardingReminder:
		return `The user is answering: "What time should I remind you to start cooking?"
Parse into 24h format HH:MM. Also try to infer their timezone from any context clues, otherwise default to "America/Los_Angeles".
Intent: "onboarding_response"
Data: { "cook_reminder_time": "17:30", "timezone": "America/Los_Angeles" }`

	case user.StateOnboardingInventory:
		return `The user is listing staples they have at home.
Parse into a list of items with optional category. Mark all as staples.
Intent: "onboarding_response"
Data: { "items": [{ "item_name": "rice", "category": "pantry" }, { "item_name": "olive oil", "category": "pantry" }] }`

	case user.StateOnboardingMaxMsgs:
		return `The user is answering: "How many messages from me per day is okay?"
Parse into a number (default 3 if unclear).
Intent: "onboarding_response"
Data: { "max_messages_per_day": 3 }`

	case user.StateOnboardingConfirm:
		return `The user was just shown their profile summary and asked to confirm.
Determine if they're confirming (yes/looks good/correct) or want to change something.
If confirming: intent "confirm_profile", reply with a welcome message.
If changing: intent "correct_profile", data = { "field": "<which field>", "value": "<new value>" }, and your reply should acknowledge the change and re-confirm.`

	case user.StateAwaitingInventory:
		checklist, _ := json.Marshal(stateCtx["inventory_checklist"])
		return fmt.Sprintf(`The user was sent a numbered inventory checklist and asked to reply with numbers of items they still have.
The checklist item IDs are: %s
Parse their response. They might say:
- A list of numbers: "1,2,3,5" or "1 2 3 5"
- "all", they have everything
- "none", they have nothing
- Natural language: "I have everything except the spinach"

Intent: "inventory_confirm"
Data: { "keep_indices": [0, 1, 2, 4] }, zero-based indices of items to KEEP
If "all": keep_indices should include all indices.
If "none": keep_indices should be empty array.`, checklist)

	case user.StateAwaitingPlanApproval:
		pending, _ := json.Marshal(stateCtx["pending_plan"])
		return fmt.Sprintf(`The user was sent a proposed meal plan and asked if they want to swap anything.
Pending plan: %s

Possible intents:
- "accept_plan", they approve (e.g. "looks good", "yes", "perfect")
- "swap_meal", they want to swap one or more meals. Data: { "days": ["Monday"], "meal_type": "dinner", "reason": "something quicker" } (meal_type optional)
- "reject_plan", they want entirely new options (e.g. "give me new options", "try again")
- "skip_day", they want to skip a day this week. Data: { "day": "Friday" }`, pending)

	case user.StateAwaitingCookFeedback:
		mealID, _ := stateCtx["planned_meal_id"].(string)
		return fmt.Sprintf(`The user was asked "How did it go?" after cooking. The planned meal ID is: %s
Parse their response for a rating (1-5) and any notes/modifications.

Intent: "cook_feedback"
Data: {
  "rating": 4,
  "notes": "Used yogurt instead of cream",
  "want_to_save": true/false (infer from their enthusiasm, if rating >= 4 or they say "save this", true)
}

If they didn't cook or skipped: intent "cook_skipped"`, mealID)

	case user.StateAwaitingGrocery:
		return `The user was asked if they got everything on the grocery list.
Parse what they bought.

Intent: "grocery_confirm"
Data: {
  "got_everything": true/false,
  "bought_items": [{ "item_name": "chicken", "quantity": "500g" }],
  "missing_items": ["cream"]
}`

	default:
		return `Interpret the user's message and respond helpfully. Intent: "other"`
	}
}

func buildSystemPrompt(u *user.User, state user.State, stateCtx map[string]any, snap snapshot) string {
	parts := []string{persona}

	parts = append(parts, "## Current Task\n"+stateInstructions(state, stateCtx))

	if state != user.StateNew {
		parts = append(parts, profileSection(u))
	}

	if state == user.StateIdle || state == user.StateAwaitingPlanApproval {
		if section := inventorySection(snap.Inventory); section != "" {
			parts = append(parts, section)
		}
	}
	if state == user.StateIdle || state == user.StateAwaitingCookFeedback {
		if section := planSection(snap.Plan); section != "" {
			parts = append(parts, section)
		}
	}
	if state == user.StateIdle || state == user.StateAwaitingPlanApproval {
		if section := recipesSection(snap.Recipes); section != "" {
			parts = append(parts, section)
		}
	}

	parts = append(parts, responseFormat)
	return strings.Join(parts, "\n\n---\n\n")
}

// buildIdleToolPrompt is the tool-calling variant: instead of a JSON
// reply directive, the model gets a data-model description and the tool
// catalogue carries the action contracts.
func buildIdleToolPrompt(u *user.User, snap snapshot) string {
	parts := []string{persona}

	parts = append(parts, `## Current Task
The user is sending a free-form message. Use the available tools to look things up or make changes, then answer in plain text. Do not invent data you could fetch with a tool.`)

	parts = append(parts, profileSection(u))
	if section := inventorySection(snap.Inventory); section != "" {
		parts = append(parts, section)
	}
	if section := planSection(snap.Plan); section != "" {
		parts = append(parts, section)
	}
	if section := recipesSection(snap.Recipes); section != "" {
		parts = append(parts, section)
	}

	parts = append(parts, dbSchemaContext)
	return strings.Join(parts, "\n\n---\n\n")
}

func profileSection(u *user.User) string {
	return fmt.Sprintf(`## User Profile
Name: %s
Cuisines: %s
Dietary restrictions: %s
Household size: %d
Skill level: %s
Cook days: %s
Grocery day: %s at %s
Cook reminder time: %s
Timezone: %s`,
		orDefault(u.Name, "Unknown"),
		orDefault(strings.Join(u.CuisinePreferences, ", "), "Not set"),
		orDefault(strings.Join(u.DietaryRestrictions, ", "), "None"),
		u.HouseholdSize,
		u.SkillLevel,
		orDefault(strings.Join(u.CookDays, ", "), "Not set"),
		orDefault(u.GroceryDay, "Not set"), u.GroceryTime,
		u.CookReminderTime,
		u.Timezone)
}

func inventorySection(items []inventory.Item) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Current Kitchen Inventory\n")
	for _, item := range items {
		sb.WriteString("- " + item.Name)
		if item.Quantity != "" {
			sb.WriteString(" (" + item.Quantity + ")")
		}
		if item.IsStaple {
			sb.WriteString(" [staple]")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func planSection(plan *mealplan.MealPlan) string {
	if plan == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## This Week's Meal Plan (%s)\n", plan.Status)
	for _, m := range plan.Meals {
		fmt.Fprintf(&sb, "- %s: %s (%d min), %s", m.Day, m.RecipeName, m.CookTimeMin, m.Status)
		if m.UserRating > 0 {
			fmt.Fprintf(&sb, ", rated %d/5", m.UserRating)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func recipesSection(recipes []recipe.SavedRecipe) string {
	if len(recipes) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Saved Recipes (%d total)\n", len(recipes))
	limit := len(recipes)
	if limit > 10 {
		limit = 10
	}
	for _, r := range recipes[:limit] {
		rating := "unrated"
		if r.UserRating > 0 {
			rating = fmt.Sprintf("%d/5", r.UserRating)
		}
		fmt.Fprintf(&sb, "- %s (%s, %d min, rating: %s, cooked %dx)\n",
			r.Name, orDefault(r.Cuisine, "unknown"), r.CookTimeMin, rating, r.TimesCooked)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildMealPlanPrompt(u *user.User, items []inventory.Item, recipes []recipe.SavedRecipe) string {
	parts := []string{persona}

	parts = append(parts, fmt.Sprintf(`## Task: Generate a Weekly Meal Plan

Generate a meal plan for the following cook days: %s

Requirements:
- Cuisine preferences: %s
- Dietary restrictions: %s
- Household size: %d servings
- Skill level: %s
- No repeats within the week
- Include variety across cuisines
- Each meal should be achievable for a %s cook`,
		strings.Join(u.CookDays, ", "),
		orDefault(strings.Join(u.CuisinePreferences, ", "), "any"),
		orDefault(strings.Join(u.DietaryRestrictions, ", "), "none"),
		u.HouseholdSize, u.SkillLevel, u.SkillLevel))

	if len(items) > 0 {
		lines := make([]string, 0, len(items))
		for _, item := range items {
			line := item.Name
			if item.Quantity != "" {
				line += " (" + item.Quantity + ")"
			}
			lines = append(lines, line)
		}
		parts = append(parts, "## Available Ingredients\n"+strings.Join(lines, ", ")+
			"\n\nTry to incorporate these ingredients where possible to minimize grocery shopping.")
	}

	var highRated []string
	for _, r := range recipes {
		if r.UserRating >= 4 {
			highRated = append(highRated, fmt.Sprintf("- %s (%s, %d min, rated %d/5, last cooked: %s)",
				r.Name, r.Cuisine, r.CookTimeMin, r.UserRating, orDefault(r.LastCooked, "never")))
		}
	}
	if len(highRated) > 0 {
		parts = append(parts, "## User's Favorite Recipes (consider re-suggesting 1-2 of these)\n"+
			strings.Join(highRated, "\n"))
	}

	parts = append(parts, `## Response Format
Respond with ONLY a valid JSON object:
{
  "intent": "meal_plan",
  "reply": "<formatted meal plan message to send to the user>",
  "data": {
    "meals": [
      {
        "day": "Monday",
        "recipe_name": "Chicken tikka masala",
        "recipe_steps": "1. Marinate chicken...\n2. Sear chicken...\n3. Add sauce...\n4. Serve over rice",
        "ingredients": [
          { "name": "chicken thigh", "qty": "500", "unit": "g" },
          { "name": "tikka paste", "qty": "2", "unit": "tbsp" }
        ],
        "cook_time_min": 45
      }
    ]
  }
}

The "reply" should be a nicely formatted chat message like:
"Here's your plan for this week:\n\nMon: Chicken tikka masala (45 min)\nWed: Pasta aglio e olio (20 min)\n\nWant to swap anything?"`)

	return strings.Join(parts, "\n\n---\n\n")
}

func buildGroceryListPrompt(u *user.User, meals []mealplan.PlannedMeal, items []inventory.Item) string {
	var mealLines []string
	for _, m := range meals {
		ingredients := make([]string, 0, len(m.Ingredients))
		for _, ing := range m.Ingredients {
			ingredients = append(ingredients, strings.TrimSpace(ing.Qty+" "+ing.Unit+" "+ing.Name))
		}
		mealLines = append(mealLines, fmt.Sprintf("- %s: %s", m.RecipeName, strings.Join(ingredients, ", ")))
	}

	var inventoryLines []string
	for _, item := range items {
		line := "- " + item.Name
		if item.Quantity != "" {
			line += " (" + item.Quantity + ")"
		}
		inventoryLines = append(inventoryLines, line)
	}

	return fmt.Sprintf(`%s

## Task: Generate a Grocery List

Based on the following meals and current inventory, generate a grocery list of items the user needs to buy.

### Planned Meals
%s

### Current Inventory
%s

### Instructions
- Subtract what the user already has from what they need
- Group items by store section: Produce, Protein, Dairy, Pantry, Spices, Other
- Combine duplicate ingredients across meals (add quantities)

Respond with ONLY a valid JSON object:
{
  "intent": "grocery_list",
  "reply": "<formatted grocery list message, grouped by section>",
  "data": {
    "items": [
      { "name": "chicken thigh", "qty": "500", "unit": "g", "section": "Protein" }
    ]
  }
}`, persona, strings.Join(mealLines, "\n"), orDefault(strings.Join(inventoryLines, "\n"), "Empty"))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

const dbSchemaContext = `## Data Model

### user
- phone_number (PK)
- name
- cuisine_preferences (list of strings, e.g. ["Indian", "Italian"])
- dietary_restrictions (list of strings)
- household_size (number)
- skill_level (beginner | intermediate | advanced)
- cook_days (list of day names, e.g. ["Monday", "Wednesday"])
- grocery_day, grocery_time (HH:MM)
- cook_reminder_time (HH:MM)
- timezone
- max_messages_per_day (number)

### saved_recipe
- id (UUID)
- recipe_name
- original_recipe_steps, modified_recipe_steps
- ingredients (list of {name, qty, unit})
- cook_time_min, cuisine
- user_rating (1-5), notes
- times_cooked, last_cooked, is_favorite

### meal_plan
- id (UUID)
- week_start (date)
- status (draft | confirmed | completed)

### planned_meal
- id (UUID), meal_plan_id
- day (e.g. Monday), meal_type (breakfast | lunch | dinner)
- recipe_name, recipe_steps
- ingredients (list of {name, qty, unit})
- cook_time_min
- status (pending | cooked | skipped)
- user_rating (1-5), user_comment, is_favorite

### grocery_list
- id (UUID), meal_plan_id
- items (list of {name, qty, unit, section})
- sent_at, fulfilled`
