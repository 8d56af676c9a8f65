// Package user holds the user profile, conversation state, and their
// persistence. The conversation state machine lives in internal/conversation
// but the state enumeration is stored on the user row, so it is defined here.
package user

import "strings"

// State identifies where a user is in the conversation state machine.
type State string

const (
	StateNew                  State = "new"
	StateOnboardingCuisine    State = "onboarding_cuisine"
	StateOnboardingDietary    State = "onboarding_dietary"
	StateOnboardingHousehold  State = "onboarding_household"
	StateOnboardingSkill      State = "onboarding_skill"
	StateOnboardingCookDays   State = "onboarding_cook_days"
	StateOnboardingGroceryDay State = "onboarding_grocery_day"
	StateOnboardingReminder   State = "onboarding_reminder_time"
	StateOnboardingInventory  State = "onboarding_inventory"
	StateOnboardingMaxMsgs    State = "onboarding_max_messages"
	StateOnboardingConfirm    State = "onboarding_confirm"
	StateIdle                 State = "idle"
	StateAwaitingInventory    State = "awaiting_inventory_confirm"
	StateAwaitingPlanApproval State = "awaiting_meal_plan_approval"
	StateAwaitingCookFeedback State = "awaiting_cook_feedback"
	StateAwaitingGrocery      State = "awaiting_grocery_confirm"
)

// IsOnboarding reports whether the state belongs to the onboarding chain.
func (s State) IsOnboarding() bool {
	return s == StateNew || strings.HasPrefix(string(s), "onboarding_")
}

// Skill levels.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// ValidSkillLevel reports whether s is a known skill level.
func ValidSkillLevel(s string) bool {
	switch s {
	case SkillBeginner, SkillIntermediate, SkillAdvanced:
		return true
	}
	return false
}

// User is one assistant user, identified by phone number (or a web-linked
// identifier for users who only use the web chat).
type User struct {
	PhoneNumber         string
	Name                string
	CuisinePreferences  []string
	DietaryRestrictions []string
	HouseholdSize       int
	SkillLevel          string
	CookDays            []string
	GroceryDay          string
	GroceryTime         string
	CookReminderTime    string
	Timezone            string
	MaxMessagesPerDay   int
	ConversationState   State
	StateContext        map[string]any
	CreatedAt           string
	UpdatedAt           string
}
