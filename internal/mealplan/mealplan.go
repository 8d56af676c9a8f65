// Package mealplan stores weekly meal plans, their planned meals, and
// the grocery lists generated from them.
package mealplan

import (
	"encoding/json"
	"fmt"
)

// Meal plan statuses.
const (
	StatusDraft     = "draft"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
)

// Planned meal statuses.
const (
	MealPending = "pending"
	MealCooked  = "cooked"
	MealSkipped = "skipped"
)

// MealPlan is one week's plan. A user has at most one plan in draft or
// confirmed status at a time.
type MealPlan struct {
	ID        string        `json:"id"`
	UserPhone string        `json:"-"`
	WeekStart string        `json:"week_start"`
	Status    string        `json:"status"`
	CreatedAt string        `json:"created_at"`
	Meals     []PlannedMeal `json:"meals"`
}

// Ingredient is one ingredient line of a meal.
type Ingredient struct {
	Name string `json:"name"`
	Qty  string `json:"qty,omitempty"`
	Unit string `json:"unit,omitempty"`
}

// PlannedMeal is one proposed dinner (or other meal) in a plan.
type PlannedMeal struct {
	ID          string       `json:"id"`
	MealPlanID  string       `json:"-"`
	Day         string       `json:"day"`
	MealType    string       `json:"meal_type"`
	RecipeName  string       `json:"recipe_name"`
	RecipeSteps string       `json:"recipe_steps,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	CookTimeMin int          `json:"cook_time_min"`
	Status      string       `json:"status"`
	UserRating  int          `json:"user_rating,omitempty"`
	UserComment string       `json:"user_comment,omitempty"`
	IsFavorite  bool         `json:"is_favorite"`
	CreatedAt   string       `json:"created_at"`
}

// GroceryItem is one line on a grocery list.
type GroceryItem struct {
	Name    string `json:"name"`
	Qty     string `json:"qty,omitempty"`
	Unit    string `json:"unit,omitempty"`
	Section string `json:"section,omitempty"`
}

// GroceryList is the shopping list generated from a confirmed plan.
type GroceryList struct {
	ID         string
	MealPlanID string
	Items      []GroceryItem
	SentAt     string
	Fulfilled  bool
	CreatedAt  string
}

func encodeIngredients(ingredients []Ingredient) (string, error) {
	if ingredients == nil {
		ingredients = []Ingredient{}
	}
	out, err := json.Marshal(ingredients)
	if err != nil {
		return "", fmt.Errorf("failed to encode ingredients: %w", err)
	}
	return string(out), nil
}

func decodeIngredients(raw string) ([]Ingredient, error) {
	var out []Ingredient
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients: %w", err)
	}
	return out, nil
}
