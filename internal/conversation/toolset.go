package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cookin/internal/llm"
	"cookin/internal/recipe"
	"cookin/internal/tools"
)

const maxPlansPerDay = 3

// toolsForUser builds the action catalogue for the free-form chat
// state, with every handler bound to the given user.
func (h *Handler) toolsForUser(userPhone string) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get_saved_recipes",
				Description: "Get the user's saved recipes, optionally filtered by cuisine or favorites",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filter":         map[string]any{"type": "string", "description": "Optional cuisine filter"},
						"favorites_only": map[string]any{"type": "boolean", "description": "Only return favorites"},
					},
					"required": []string{},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				recipes, err := h.recipes.List(ctx, userPhone)
				if err != nil {
					return nil, err
				}
				filter, _ := args["filter"].(string)
				favoritesOnly, _ := args["favorites_only"].(bool)

				var out []map[string]any
				for _, r := range recipes {
					if filter != "" && !strings.Contains(strings.ToLower(r.Cuisine), strings.ToLower(filter)) {
						continue
					}
					if favoritesOnly && !r.IsFavorite {
						continue
					}
					out = append(out, map[string]any{
						"id":            r.ID,
						"name":          r.Name,
						"cuisine":       r.Cuisine,
						"cook_time_min": r.CookTimeMin,
						"rating":        r.UserRating,
						"times_cooked":  r.TimesCooked,
						"is_favorite":   r.IsFavorite,
					})
					if len(out) == 20 {
						break
					}
				}
				return map[string]any{"count": len(out), "recipes": out}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "find_recipe",
				Description: "Find a specific saved recipe by name",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"recipe_name": map[string]any{"type": "string", "description": "Name of the recipe to find"},
					},
					"required": []string{"recipe_name"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["recipe_name"].(string)
				r, err := h.recipes.FindByName(ctx, userPhone, name)
				if err != nil {
					return nil, err
				}
				if r == nil {
					return map[string]any{"found": false}, nil
				}
				return map[string]any{
					"found": true,
					"recipe": map[string]any{
						"id":            r.ID,
						"name":          r.Name,
						"steps":         r.Steps(),
						"ingredients":   r.Ingredients,
						"cook_time_min": r.CookTimeMin,
						"cuisine":       r.Cuisine,
						"rating":        r.UserRating,
						"notes":         r.Notes,
						"times_cooked":  r.TimesCooked,
						"is_favorite":   r.IsFavorite,
					},
				}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "save_recipe",
				Description: "Save a new recipe to the user's recipe collection",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"recipe_name":  map[string]any{"type": "string"},
						"recipe_steps": map[string]any{"type": "string", "description": "Step-by-step cooking instructions"},
						"ingredients": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"name": map[string]any{"type": "string"},
									"qty":  map[string]any{"type": "string"},
									"unit": map[string]any{"type": "string"},
								},
								"required": []string{"name", "qty", "unit"},
							},
						},
						"cook_time_min": map[string]any{"type": "number"},
						"cuisine":       map[string]any{"type": "string"},
					},
					"required": []string{"recipe_name", "recipe_steps", "ingredients"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["recipe_name"].(string)
				steps, _ := args["recipe_steps"].(string)
				cuisine, _ := args["cuisine"].(string)
				var ingredients []recipe.Ingredient
				decodeInto(args["ingredients"], &ingredients)

				saved, err := h.recipes.Save(ctx, recipe.SavedRecipe{
					UserPhone:           userPhone,
					Name:                name,
					OriginalRecipeSteps: steps,
					Ingredients:         ingredients,
					CookTimeMin:         intFromData(args, "cook_time_min", 0),
					Cuisine:             cuisine,
				})
				if errors.Is(err, recipe.ErrDuplicateName) {
					return map[string]any{"success": false, "error": "Recipe already exists"}, nil
				}
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "id": saved.ID}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "rate_recipe",
				Description: "Rate a saved recipe (1-5 stars) and optionally add notes",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"recipe_name": map[string]any{"type": "string", "description": "Name of the recipe to rate"},
						"rating":      map[string]any{"type": "number", "description": "Rating from 1 to 5"},
						"notes":       map[string]any{"type": "string", "description": "Optional notes about the recipe"},
					},
					"required": []string{"recipe_name", "rating"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["recipe_name"].(string)
				r, err := h.recipes.FindByName(ctx, userPhone, name)
				if err != nil {
					return nil, err
				}
				if r == nil {
					return map[string]any{"success": false, "error": "Recipe not found"}, nil
				}
				rating := intFromData(args, "rating", 0)
				if err := h.recipes.SetRating(ctx, r.ID, rating); err != nil {
					return map[string]any{"success": false, "error": err.Error()}, nil
				}
				return map[string]any{"success": true, "recipe": name, "rating": rating}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "modify_recipe",
				Description: "Update the modifications/notes for a saved recipe",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"recipe_name":  map[string]any{"type": "string"},
						"modification": map[string]any{"type": "string", "description": "The modification to record"},
					},
					"required": []string{"recipe_name", "modification"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["recipe_name"].(string)
				modification, _ := args["modification"].(string)
				r, err := h.recipes.FindByName(ctx, userPhone, name)
				if err != nil {
					return nil, err
				}
				if r == nil {
					return map[string]any{"success": false, "error": "Recipe not found"}, nil
				}
				steps := r.Steps() + "\n\nModification: " + modification
				if err := h.recipes.SetModifiedSteps(ctx, r.ID, steps); err != nil {
					return nil, err
				}
				return map[string]any{"success": true}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_current_meal_plan",
				Description: "Get the user's current weekly meal plan with all planned meals",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				plan, err := h.plans.GetCurrentPlan(ctx, userPhone)
				if err != nil {
					return nil, err
				}
				if plan == nil {
					return map[string]any{"has_plan": false}, nil
				}
				meals := make([]map[string]any, 0, len(plan.Meals))
				for _, m := range plan.Meals {
					meals = append(meals, map[string]any{
						"day":           m.Day,
						"meal_type":     m.MealType,
						"recipe_name":   m.RecipeName,
						"cook_time_min": m.CookTimeMin,
						"status":        m.Status,
						"rating":        m.UserRating,
					})
				}
				return map[string]any{
					"has_plan":   true,
					"week_start": plan.WeekStart,
					"status":     plan.Status,
					"meals":      meals,
				}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "update_preferences",
				Description: "Update user cooking preferences like cuisines, dietary restrictions, household size, or skill level",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"cuisine_preferences":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "List of preferred cuisines"},
						"dietary_restrictions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "List of dietary restrictions"},
						"household_size":       map[string]any{"type": "number", "description": "Number of people cooking for"},
						"skill_level":          map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced"}},
					},
					"required": []string{},
				},
			},
			Handler: h.updateFieldsHandler(userPhone,
				"cuisine_preferences", "dietary_restrictions", "household_size", "skill_level"),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "update_schedule",
				Description: "Update cooking schedule: cook days, grocery day, or times",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"cook_days":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": `Days to cook (e.g. ["Monday", "Wednesday", "Friday"])`},
						"grocery_day":        map[string]any{"type": "string", "description": "Day for grocery shopping"},
						"grocery_time":       map[string]any{"type": "string", "description": "Time for grocery reminder (HH:MM)"},
						"cook_reminder_time": map[string]any{"type": "string", "description": "Time for cook reminder (HH:MM)"},
					},
					"required": []string{},
				},
			},
			Handler: h.updateFieldsHandler(userPhone,
				"cook_days", "grocery_day", "grocery_time", "cook_reminder_time"),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "log_meal",
				Description: "Log that the user cooked a meal (not from the plan)",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"recipe_name": map[string]any{"type": "string"},
					},
					"required": []string{"recipe_name"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["recipe_name"].(string)
				r, err := h.recipes.FindByName(ctx, userPhone, name)
				if err != nil {
					return nil, err
				}
				if r != nil {
					if err := h.recipes.MarkCooked(ctx, r.ID); err != nil {
						return nil, err
					}
				}
				return map[string]any{"success": true, "logged": name}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "generate_meal_plan",
				Description: "Generate a new weekly meal plan based on the user's preferences. Limited to 3 per day. Use this when the user asks for a new meal plan, fresh plan, or wants to replan their week.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				count, err := h.plans.CountPlansToday(ctx, userPhone)
				if err != nil {
					return nil, err
				}
				if count >= maxPlansPerDay {
					return map[string]any{"success": false, "error": "Daily limit reached (3 meal plans per day). Try again tomorrow."}, nil
				}
				u, err := h.users.Get(ctx, userPhone)
				if err != nil {
					return nil, err
				}
				if u == nil {
					return map[string]any{"success": false, "error": "User not found"}, nil
				}
				if len(u.CookDays) == 0 {
					return map[string]any{"success": false, "error": "No cook days set. Ask the user to set their cook days first."}, nil
				}

				// retire the previous plan so only one stays active
				if current, err := h.plans.GetCurrentPlan(ctx, userPhone); err == nil && current != nil {
					if err := h.plans.Complete(ctx, current.ID); err != nil {
						return nil, err
					}
				}

				reply, err := h.generateAndSendMealPlan(ctx, u)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "reply": reply}, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "import_recipe_from_url",
				Description: "Fetch a recipe from a web page URL and save it to the user's collection",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{"type": "string", "description": "The recipe page URL"},
					},
					"required": []string{"url"},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				url, _ := args["url"].(string)
				if url == "" {
					return map[string]any{"success": false, "error": "No URL provided"}, nil
				}
				saved, err := h.clipper.ClipURL(ctx, userPhone, url)
				if errors.Is(err, recipe.ErrDuplicateName) {
					return map[string]any{"success": false, "error": "Recipe already exists"}, nil
				}
				if err != nil {
					return map[string]any{"success": false, "error": err.Error()}, nil
				}
				return map[string]any{
					"success": true,
					"id":      saved.ID,
					"name":    saved.Name,
				}, nil
			},
		},
	}
}

// updateFieldsHandler applies whichever of the allowed fields appear in
// the arguments, through the validated field-update path.
func (h *Handler) updateFieldsHandler(userPhone string, allowed ...string) tools.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var updated []string
		for _, field := range allowed {
			value, ok := args[field]
			if !ok || value == nil {
				continue
			}
			if err := h.users.UpdateField(ctx, userPhone, field, value); err != nil {
				return map[string]any{"success": false, "error": fmt.Sprintf("%s: %v", field, err)}, nil
			}
			updated = append(updated, field)
		}
		if len(updated) == 0 {
			return map[string]any{"success": false, "error": "No fields provided"}, nil
		}
		return map[string]any{"success": true, "updated": updated}, nil
	}
}
