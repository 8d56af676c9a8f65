package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrDuplicateName is returned when saving a recipe whose name the
// user already has, ignoring case.
var ErrDuplicateName = fmt.Errorf("a recipe with that name already exists")

// Repository is a database-backed repository for saved recipes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recipeColumns = `id, user_phone, recipe_name, original_recipe_steps,
	modified_recipe_steps, ingredients, cook_time_min, cuisine, user_rating,
	notes, times_cooked, last_cooked, is_favorite, created_at`

func scanRecipe(row interface{ Scan(...any) error }) (*SavedRecipe, error) {
	var (
		r                                SavedRecipe
		original, modified               sql.NullString
		cuisine, notes, lastCooked       sql.NullString
		cookTime, rating                 sql.NullInt64
		ingredients                      string
	)
	err := row.Scan(&r.ID, &r.UserPhone, &r.Name, &original, &modified,
		&ingredients, &cookTime, &cuisine, &rating, &notes, &r.TimesCooked,
		&lastCooked, &r.IsFavorite, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.OriginalRecipeSteps = original.String
	r.ModifiedRecipeSteps = modified.String
	r.Cuisine = cuisine.String
	r.Notes = notes.String
	r.LastCooked = lastCooked.String
	r.CookTimeMin = int(cookTime.Int64)
	r.UserRating = int(rating.Int64)
	if err := json.Unmarshal([]byte(ingredients), &r.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients: %w", err)
	}
	return &r, nil
}

// List returns the user's recipes, best-rated and most-cooked first.
func (r *Repository) List(ctx context.Context, userPhone string) ([]SavedRecipe, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipeColumns+` FROM saved_recipe
		WHERE user_phone = ?
		ORDER BY user_rating DESC, times_cooked DESC, recipe_name`, userPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []SavedRecipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		recipes = append(recipes, *recipe)
	}
	return recipes, rows.Err()
}

// Get returns a recipe by ID, or nil when missing.
func (r *Repository) Get(ctx context.Context, id string) (*SavedRecipe, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM saved_recipe WHERE id = ?`, id)
	recipe, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return recipe, nil
}

// FindByName returns the user's recipe with the given name, matched
// case-insensitively, or nil when there is none.
func (r *Repository) FindByName(ctx context.Context, userPhone, name string) (*SavedRecipe, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recipeColumns+` FROM saved_recipe
		WHERE user_phone = ? AND LOWER(recipe_name) = LOWER(?)`,
		userPhone, strings.TrimSpace(name))
	recipe, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recipe: %w", err)
	}
	return recipe, nil
}

// Save stores a new recipe. Returns ErrDuplicateName when the user
// already has one by the same name.
func (r *Repository) Save(ctx context.Context, recipe SavedRecipe) (*SavedRecipe, error) {
	existing, err := r.FindByName(ctx, recipe.UserPhone, recipe.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateName
	}

	ingredients, err := encodeIngredients(recipe.Ingredients)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO saved_recipe (id, user_phone, recipe_name, original_recipe_steps,
			modified_recipe_steps, ingredients, cook_time_min, cuisine, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, recipe.UserPhone, strings.TrimSpace(recipe.Name), recipe.OriginalRecipeSteps,
		nullable(recipe.ModifiedRecipeSteps), ingredients, recipe.CookTimeMin,
		nullable(recipe.Cuisine), nullable(recipe.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}
	return r.Get(ctx, id)
}

// SetRating records the user's 1 to 5 rating.
func (r *Repository) SetRating(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE saved_recipe SET user_rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return fmt.Errorf("failed to set recipe rating: %w", err)
	}
	return nil
}

// SetModifiedSteps stores the user's tweaked version of the steps. The
// original steps stay untouched.
func (r *Repository) SetModifiedSteps(ctx context.Context, id, steps string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE saved_recipe SET modified_recipe_steps = ? WHERE id = ?`, steps, id)
	if err != nil {
		return fmt.Errorf("failed to set modified steps: %w", err)
	}
	return nil
}

// MarkCooked bumps the cook counter and timestamp.
func (r *Repository) MarkCooked(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE saved_recipe SET times_cooked = times_cooked + 1,
			last_cooked = datetime('now')
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipe cooked: %w", err)
	}
	return nil
}

// SetFavorite toggles the favorite flag.
func (r *Repository) SetFavorite(ctx context.Context, id string, favorite bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE saved_recipe SET is_favorite = ? WHERE id = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to set recipe favorite: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
