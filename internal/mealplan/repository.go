package mealplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plans older than this are considered abandoned.
const staleAfter = 7 * 24 * time.Hour

// Repository is a database-backed repository for meal plans.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePlan inserts a new draft plan and its meals.
func (r *Repository) CreatePlan(ctx context.Context, userPhone, weekStart string, meals []PlannedMeal) (*MealPlan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	planID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meal_plan (id, user_phone, week_start, status)
		VALUES (?, ?, ?, ?)`, planID, userPhone, weekStart, StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to create meal plan: %w", err)
	}

	for _, meal := range meals {
		if err := insertMeal(ctx, tx, planID, meal); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit meal plan: %w", err)
	}
	return r.GetPlan(ctx, planID)
}

func insertMeal(ctx context.Context, tx *sql.Tx, planID string, meal PlannedMeal) error {
	ingredients, err := encodeIngredients(meal.Ingredients)
	if err != nil {
		return err
	}
	mealType := strings.ToLower(meal.MealType)
	if mealType == "" {
		mealType = "dinner"
	}
	// days and meal types come from model output, whose casing drifts
	_, err = tx.ExecContext(ctx, `
		INSERT INTO planned_meal (id, meal_plan_id, day, meal_type, recipe_name,
			recipe_steps, ingredients, cook_time_min, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), planID, strings.ToLower(meal.Day), mealType, meal.RecipeName,
		meal.RecipeSteps, ingredients, meal.CookTimeMin, MealPending)
	if err != nil {
		return fmt.Errorf("failed to insert planned meal: %w", err)
	}
	return nil
}

// AddMeal appends a meal to an existing plan.
func (r *Repository) AddMeal(ctx context.Context, planID string, meal PlannedMeal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := insertMeal(ctx, tx, planID, meal); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveMeal deletes a single meal from a plan.
func (r *Repository) RemoveMeal(ctx context.Context, mealID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM planned_meal WHERE id = ?`, mealID)
	if err != nil {
		return fmt.Errorf("failed to remove planned meal: %w", err)
	}
	return nil
}

// RemoveMealsForDay deletes every meal a plan has on the given day, or
// only the one matching mealType when it is non-empty.
func (r *Repository) RemoveMealsForDay(ctx context.Context, planID, day, mealType string) error {
	var err error
	if mealType == "" {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM planned_meal WHERE meal_plan_id = ? AND day = ?`,
			planID, strings.ToLower(day))
	} else {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM planned_meal WHERE meal_plan_id = ? AND day = ? AND meal_type = ?`,
			planID, strings.ToLower(day), strings.ToLower(mealType))
	}
	if err != nil {
		return fmt.Errorf("failed to remove meals for day: %w", err)
	}
	return nil
}

// GetCurrentPlan returns the user's active plan, meals included. A
// draft or confirmed plan whose week started more than a week ago is
// marked completed and not returned. Returns nil when there is no
// active plan.
func (r *Repository) GetCurrentPlan(ctx context.Context, userPhone string) (*MealPlan, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_phone, week_start, status, created_at FROM meal_plan
		WHERE user_phone = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		userPhone, StatusDraft, StatusConfirmed)

	var plan MealPlan
	err := row.Scan(&plan.ID, &plan.UserPhone, &plan.WeekStart, &plan.Status, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current plan: %w", err)
	}

	if stale(plan.WeekStart) {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE meal_plan SET status = ? WHERE id = ?`, StatusCompleted, plan.ID); err != nil {
			return nil, fmt.Errorf("failed to retire stale plan: %w", err)
		}
		return nil, nil
	}

	plan.Meals, err = r.mealsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// stale reports whether the plan's week started more than a week ago.
// Recreating a plan mid-week must not extend its life into the next
// cycle, so freshness keys on week_start, not created_at.
func stale(weekStart string) bool {
	t, err := time.Parse("2006-01-02", weekStart)
	if err != nil {
		return false
	}
	return time.Since(t) >= staleAfter
}

// GetPlan returns a plan by ID with its meals, or nil when missing.
func (r *Repository) GetPlan(ctx context.Context, planID string) (*MealPlan, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_phone, week_start, status, created_at FROM meal_plan WHERE id = ?`, planID)

	var plan MealPlan
	err := row.Scan(&plan.ID, &plan.UserPhone, &plan.WeekStart, &plan.Status, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plan.Meals, err = r.mealsForPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

const mealColumns = `id, meal_plan_id, day, meal_type, recipe_name, recipe_steps,
	ingredients, cook_time_min, status, user_rating, user_comment, is_favorite, created_at`

func scanMeal(row interface{ Scan(...any) error }) (*PlannedMeal, error) {
	var (
		meal                PlannedMeal
		steps, comment      sql.NullString
		cookTime, rating    sql.NullInt64
		ingredients         string
	)
	err := row.Scan(&meal.ID, &meal.MealPlanID, &meal.Day, &meal.MealType,
		&meal.RecipeName, &steps, &ingredients, &cookTime, &meal.Status,
		&rating, &comment, &meal.IsFavorite, &meal.CreatedAt)
	if err != nil {
		return nil, err
	}
	meal.RecipeSteps = steps.String
	meal.UserComment = comment.String
	meal.CookTimeMin = int(cookTime.Int64)
	meal.UserRating = int(rating.Int64)
	meal.Ingredients, err = decodeIngredients(ingredients)
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

func (r *Repository) mealsForPlan(ctx context.Context, planID string) ([]PlannedMeal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mealColumns+` FROM planned_meal
		WHERE meal_plan_id = ?
		ORDER BY CASE day
			WHEN 'monday' THEN 1 WHEN 'tuesday' THEN 2 WHEN 'wednesday' THEN 3
			WHEN 'thursday' THEN 4 WHEN 'friday' THEN 5 WHEN 'saturday' THEN 6
			WHEN 'sunday' THEN 7 ELSE 8 END, created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list planned meals: %w", err)
	}
	defer rows.Close()

	var meals []PlannedMeal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan planned meal: %w", err)
		}
		meals = append(meals, *meal)
	}
	return meals, rows.Err()
}

// GetMeal returns a single planned meal, or nil when missing.
func (r *Repository) GetMeal(ctx context.Context, mealID string) (*PlannedMeal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mealColumns+` FROM planned_meal WHERE id = ?`, mealID)
	meal, err := scanMeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get planned meal: %w", err)
	}
	return meal, nil
}

// GetMealForDay returns the pending meal the user's active plan has on
// the given day, or nil when there is none.
func (r *Repository) GetMealForDay(ctx context.Context, userPhone, day string) (*PlannedMeal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mealColumnsPrefixed+` FROM planned_meal pm
		JOIN meal_plan mp ON mp.id = pm.meal_plan_id
		WHERE mp.user_phone = ? AND mp.status IN (?, ?)
			AND pm.day = ? AND pm.status = ?
		ORDER BY pm.created_at DESC LIMIT 1`,
		userPhone, StatusDraft, StatusConfirmed, strings.ToLower(day), MealPending)
	meal, err := scanMeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meal for day: %w", err)
	}
	return meal, nil
}

const mealColumnsPrefixed = `pm.id, pm.meal_plan_id, pm.day, pm.meal_type, pm.recipe_name,
	pm.recipe_steps, pm.ingredients, pm.cook_time_min, pm.status, pm.user_rating,
	pm.user_comment, pm.is_favorite, pm.created_at`

// Confirm moves a plan from draft to confirmed.
func (r *Repository) Confirm(ctx context.Context, planID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meal_plan SET status = ? WHERE id = ?`, StatusConfirmed, planID)
	if err != nil {
		return fmt.Errorf("failed to confirm plan: %w", err)
	}
	return nil
}

// Complete marks a plan finished.
func (r *Repository) Complete(ctx context.Context, planID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meal_plan SET status = ? WHERE id = ?`, StatusCompleted, planID)
	if err != nil {
		return fmt.Errorf("failed to complete plan: %w", err)
	}
	return nil
}

// SetMealStatus updates a planned meal's status.
func (r *Repository) SetMealStatus(ctx context.Context, mealID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE planned_meal SET status = ? WHERE id = ?`, status, mealID)
	if err != nil {
		return fmt.Errorf("failed to set meal status: %w", err)
	}
	return nil
}

// SetMealFeedback records the post-cook rating and optional comment.
func (r *Repository) SetMealFeedback(ctx context.Context, mealID string, rating int, comment string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE planned_meal SET user_rating = ?, user_comment = ? WHERE id = ?`,
		rating, comment, mealID)
	if err != nil {
		return fmt.Errorf("failed to set meal feedback: %w", err)
	}
	return nil
}

// SetMealRating updates the rating without touching the comment.
func (r *Repository) SetMealRating(ctx context.Context, mealID string, rating int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE planned_meal SET user_rating = ? WHERE id = ?`, rating, mealID)
	if err != nil {
		return fmt.Errorf("failed to set meal rating: %w", err)
	}
	return nil
}

// SetMealComment updates the comment without touching the rating.
func (r *Repository) SetMealComment(ctx context.Context, mealID, comment string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE planned_meal SET user_comment = ? WHERE id = ?`, comment, mealID)
	if err != nil {
		return fmt.Errorf("failed to set meal comment: %w", err)
	}
	return nil
}

// SetMealFavorite toggles the favorite flag.
func (r *Repository) SetMealFavorite(ctx context.Context, mealID string, favorite bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE planned_meal SET is_favorite = ? WHERE id = ?`, favorite, mealID)
	if err != nil {
		return fmt.Errorf("failed to set meal favorite: %w", err)
	}
	return nil
}

// CountPlansToday returns how many plans were created for the user
// today. Used to limit plan generation.
func (r *Repository) CountPlansToday(ctx context.Context, userPhone string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM meal_plan
		WHERE user_phone = ? AND date(created_at) = date('now')`, userPhone).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's plans: %w", err)
	}
	return count, nil
}

// CreateGroceryList stores a grocery list for a plan.
func (r *Repository) CreateGroceryList(ctx context.Context, planID string, items []GroceryItem) (*GroceryList, error) {
	if items == nil {
		items = []GroceryItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grocery items: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO grocery_list (id, meal_plan_id, items, sent_at)
		VALUES (?, ?, ?, datetime('now'))`, id, planID, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create grocery list: %w", err)
	}
	return r.getGroceryList(ctx, `id = ?`, id)
}

// GetGroceryList returns the latest grocery list for a plan, or nil.
func (r *Repository) GetGroceryList(ctx context.Context, planID string) (*GroceryList, error) {
	return r.getGroceryList(ctx, `meal_plan_id = ?`, planID)
}

func (r *Repository) getGroceryList(ctx context.Context, where string, arg any) (*GroceryList, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meal_plan_id, items, sent_at, fulfilled, created_at
		FROM grocery_list WHERE `+where+`
		ORDER BY created_at DESC LIMIT 1`, arg)

	var (
		list   GroceryList
		items  string
		sentAt sql.NullString
	)
	err := row.Scan(&list.ID, &list.MealPlanID, &items, &sentAt, &list.Fulfilled, &list.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grocery list: %w", err)
	}
	list.SentAt = sentAt.String
	if err := json.Unmarshal([]byte(items), &list.Items); err != nil {
		return nil, fmt.Errorf("failed to decode grocery items: %w", err)
	}
	return &list, nil
}

// FulfillGroceryList marks the list as shopped.
func (r *Repository) FulfillGroceryList(ctx context.Context, listID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE grocery_list SET fulfilled = 1 WHERE id = ?`, listID)
	if err != nil {
		return fmt.Errorf("failed to fulfill grocery list: %w", err)
	}
	return nil
}
