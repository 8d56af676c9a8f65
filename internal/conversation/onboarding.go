package conversation

import (
	"context"
	"fmt"
	"strings"

	"cookin/internal/inventory"
	"cookin/internal/user"
)

// Replies at the confirm step matching any of these count as approval.
var affirmations = []string{
	"yes", "yeah", "yep", "y", "looks good", "correct", "confirm", "perfect", "lgtm", "good",
}

func isAffirmation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, w := range affirmations {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// handleOnboarding walks the linear setup chain. Each step parses the
// answer to the previous question, stores it, advances the state, and
// asks the next question.
func (h *Handler) handleOnboarding(ctx context.Context, u *user.User, text string) (string, error) {
	switch u.ConversationState {
	case user.StateNew:
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingCuisine, nil); err != nil {
			return "", err
		}
		return `Hey there! Welcome to Cookin' 🍳

I'll help you build a cooking habit with personalized meal plans.

Let's set you up! What cuisines do you enjoy? (e.g., Indian, Italian, Mexican, Japanese — list as many as you like)`, nil

	case user.StateOnboardingCuisine:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		var cuisines []string
		decodeInto(parsed.Data["cuisines"], &cuisines)
		if len(cuisines) == 0 {
			cuisines = []string{text}
		}
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{CuisinePreferences: &cuisines}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingDietary, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf(`Great taste! %s it is.

Any dietary restrictions or allergies? (e.g., vegetarian, no shellfish, lactose intolerant — or just say "none")`, strings.Join(cuisines, ", ")), nil

	case user.StateOnboardingDietary:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		restrictions := []string{}
		decodeInto(parsed.Data["dietary_restrictions"], &restrictions)
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{DietaryRestrictions: &restrictions}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingHousehold, nil); err != nil {
			return "", err
		}
		note := "No restrictions — that makes things easy!"
		if len(restrictions) > 0 {
			note = "Noted: " + strings.Join(restrictions, ", ") + "."
		}
		return note + "\n\nHow many people are you usually cooking for?", nil

	case user.StateOnboardingHousehold:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		size := intFromData(parsed.Data, "household_size", 1)
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{HouseholdSize: &size}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingSkill, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf(`Cooking for %d. Got it!

How would you rate your cooking skills?
- Beginner (just starting out)
- Intermediate (comfortable with most recipes)
- Advanced (bring on the challenges)`, size), nil

	case user.StateOnboardingSkill:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		skill, _ := parsed.Data["skill_level"].(string)
		if !user.ValidSkillLevel(skill) {
			skill = user.SkillBeginner
		}
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{SkillLevel: &skill}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingCookDays, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf(`%s — I'll tailor the recipes accordingly.

Which days of the week do you want to cook? (e.g., Mon, Wed, Fri, Sun)`, capitalize(skill)), nil

	case user.StateOnboardingCookDays:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		days := []string{}
		decodeInto(parsed.Data["cook_days"], &days)
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{CookDays: &days}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingGroceryDay, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf(`You'll cook on %s. Nice!

Which day do you usually do your grocery shopping? I'll check in with your list then. (You can add a time too, like "Saturday around 10am")`, strings.Join(days, ", ")), nil

	case user.StateOnboardingGroceryDay:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		update := user.ProfileUpdate{}
		if day, ok := parsed.Data["grocery_day"].(string); ok && day != "" {
			update.GroceryDay = &day
		}
		if t, ok := parsed.Data["grocery_time"].(string); ok && t != "" {
			update.GroceryTime = &t
		}
		if err := h.users.Update(ctx, u.PhoneNumber, update); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingReminder, nil); err != nil {
			return "", err
		}
		return "Grocery day locked in.\n\nWhat time should I remind you to start cooking on your cook days? (e.g., 5:30pm)", nil

	case user.StateOnboardingReminder:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		update := user.ProfileUpdate{}
		if t, ok := parsed.Data["cook_reminder_time"].(string); ok && t != "" {
			update.CookReminderTime = &t
		}
		if tz, ok := parsed.Data["timezone"].(string); ok && tz != "" {
			update.Timezone = &tz
		}
		if err := h.users.Update(ctx, u.PhoneNumber, update); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingInventory, nil); err != nil {
			return "", err
		}
		return `Got it, I'll nudge you then.

Last bit of setup: what staples do you usually have at home? (e.g., rice, pasta, olive oil, soy sauce — or say "skip" if you'd rather not)`, nil

	case user.StateOnboardingInventory:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		var staples []struct {
			ItemName string `json:"item_name"`
			Category string `json:"category"`
		}
		decodeInto(parsed.Data["items"], &staples)
		if len(staples) > 0 {
			items := make([]inventory.Item, 0, len(staples))
			for _, s := range staples {
				items = append(items, inventory.Item{Name: s.ItemName, Category: s.Category, IsStaple: true})
			}
			if err := h.inventory.AddBatch(ctx, u.PhoneNumber, items); err != nil {
				return "", err
			}
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingMaxMsgs, nil); err != nil {
			return "", err
		}
		note := "No staples logged, we can add them anytime."
		if len(staples) > 0 {
			note = fmt.Sprintf("Stocked! I've noted %d staples.", len(staples))
		}
		return note + "\n\nHow many messages from me per day is okay? (I'd suggest 3)", nil

	case user.StateOnboardingMaxMsgs:
		parsed, err := h.llmParse(ctx, u, u.ConversationState, text)
		if err != nil {
			return "", err
		}
		maxMsgs := intFromData(parsed.Data, "max_messages_per_day", 3)
		if err := h.users.Update(ctx, u.PhoneNumber, user.ProfileUpdate{MaxMessagesPerDay: &maxMsgs}); err != nil {
			return "", err
		}
		if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateOnboardingConfirm, nil); err != nil {
			return "", err
		}
		updated, err := h.users.Get(ctx, u.PhoneNumber)
		if err != nil {
			return "", err
		}
		return "All set!\n\n" + profileSummary(updated) +
			"\n\nDoes everything look right? (say \"yes\" to confirm, or tell me what to change)", nil

	case user.StateOnboardingConfirm:
		return h.handleOnboardingConfirm(ctx, u, text)

	default:
		return "Something went wrong with the setup. Let's start over — what cuisines do you enjoy?", nil
	}
}

func (h *Handler) handleOnboardingConfirm(ctx context.Context, u *user.User, text string) (string, error) {
	if isAffirmation(text) {
		updated, err := h.users.Get(ctx, u.PhoneNumber)
		if err != nil {
			return "", err
		}
		if h.OnOnboarded != nil {
			h.OnOnboarded(ctx, updated)
		}

		planReply, err := h.generateAndSendMealPlan(ctx, updated)
		if err != nil {
			h.logger.Error("failed to generate initial meal plan", "user", u.PhoneNumber, "error", err)
			if err := h.users.SetConversationState(ctx, u.PhoneNumber, user.StateIdle, nil); err != nil {
				return "", err
			}
			return `You're all set! I had trouble generating a meal plan right now, but you can ask me anytime to create one.

You can also:
- Change your preferences
- Ask for recipe ideas`, nil
		}
		return "You're all set! Let me put together your first meal plan...\n\n" + planReply, nil
	}

	parsed, err := h.llmParse(ctx, u, user.StateOnboardingConfirm, text)
	if err != nil {
		return "", err
	}
	field, _ := parsed.Data["field"].(string)
	value, hasValue := parsed.Data["value"]

	if field != "" && hasValue {
		if err := h.users.UpdateField(ctx, u.PhoneNumber, field, value); err == nil {
			updated, err := h.users.Get(ctx, u.PhoneNumber)
			if err != nil {
				return "", err
			}
			return "Updated! Here's your revised profile:\n\n" + profileSummary(updated) +
				"\n\nDoes everything look right now?", nil
		}
	}

	return `I'm not sure what you'd like to change. Could you be more specific? (e.g., "change cook days to Mon and Thu" or "make it vegetarian")`, nil
}

func profileSummary(u *user.User) string {
	return fmt.Sprintf(`Here's your profile:

Cuisines: %s
Restrictions: %s
Household: %d
Skill: %s
Cook days: %s
Grocery day: %s at %s
Cook reminder: %s (%s)
Messages per day: %d`,
		strings.Join(u.CuisinePreferences, ", "),
		orDefault(strings.Join(u.DietaryRestrictions, ", "), "None"),
		u.HouseholdSize,
		u.SkillLevel,
		strings.Join(u.CookDays, ", "),
		orDefault(u.GroceryDay, "not set"), u.GroceryTime,
		u.CookReminderTime, u.Timezone,
		u.MaxMessagesPerDay)
}

func intFromData(data map[string]any, key string, fallback int) int {
	if n, ok := data[key].(float64); ok && n > 0 {
		return int(n)
	}
	return fallback
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
