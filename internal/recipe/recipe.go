// Package recipe stores the user's saved recipes and imports new ones
// from the web.
package recipe

import (
	"encoding/json"
	"fmt"
)

// Ingredient is one ingredient line of a recipe. Qty and Unit are
// optional since imported recipes often only list names.
type Ingredient struct {
	Name string `json:"name"`
	Qty  string `json:"qty,omitempty"`
	Unit string `json:"unit,omitempty"`
}

// SavedRecipe is a recipe in the user's personal collection. The
// original steps are kept alongside the user's modified version so
// modifications can be rolled back.
type SavedRecipe struct {
	ID                  string       `json:"id"`
	UserPhone           string       `json:"-"`
	Name                string       `json:"recipe_name"`
	OriginalRecipeSteps string       `json:"original_recipe_steps,omitempty"`
	ModifiedRecipeSteps string       `json:"modified_recipe_steps,omitempty"`
	Ingredients         []Ingredient `json:"ingredients"`
	CookTimeMin         int          `json:"cook_time_min"`
	Cuisine             string       `json:"cuisine,omitempty"`
	UserRating          int          `json:"user_rating,omitempty"`
	Notes               string       `json:"notes,omitempty"`
	TimesCooked         int          `json:"times_cooked"`
	LastCooked          string       `json:"last_cooked,omitempty"`
	IsFavorite          bool         `json:"is_favorite"`
	CreatedAt           string       `json:"created_at"`
}

// Steps returns the version of the steps the user should cook from.
func (r *SavedRecipe) Steps() string {
	if r.ModifiedRecipeSteps != "" {
		return r.ModifiedRecipeSteps
	}
	return r.OriginalRecipeSteps
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
