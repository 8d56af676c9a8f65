package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Repository is a database-backed repository for users.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `phone_number, name, cuisine_preferences, dietary_restrictions,
	household_size, skill_level, cook_days, grocery_day, grocery_time,
	cook_reminder_time, timezone, max_messages_per_day, conversation_state,
	state_context, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u                            User
		name, groceryDay             sql.NullString
		cuisines, dietary, cookDays  string
		stateContext                 string
	)
	err := row.Scan(
		&u.PhoneNumber, &name, &cuisines, &dietary,
		&u.HouseholdSize, &u.SkillLevel, &cookDays, &groceryDay, &u.GroceryTime,
		&u.CookReminderTime, &u.Timezone, &u.MaxMessagesPerDay, &u.ConversationState,
		&stateContext, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.GroceryDay = groceryDay.String
	if err := json.Unmarshal([]byte(cuisines), &u.CuisinePreferences); err != nil {
		return nil, fmt.Errorf("failed to decode cuisine preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(dietary), &u.DietaryRestrictions); err != nil {
		return nil, fmt.Errorf("failed to decode dietary restrictions: %w", err)
	}
	if err := json.Unmarshal([]byte(cookDays), &u.CookDays); err != nil {
		return nil, fmt.Errorf("failed to decode cook days: %w", err)
	}
	if err := json.Unmarshal([]byte(stateContext), &u.StateContext); err != nil {
		return nil, fmt.Errorf("failed to decode state context: %w", err)
	}
	if u.StateContext == nil {
		u.StateContext = map[string]any{}
	}
	return &u, nil
}

// GetOrCreate returns the user, creating a fresh row in the NEW state on
// first contact.
func (r *Repository) GetOrCreate(ctx context.Context, phoneNumber string) (*User, error) {
	u, err := r.Get(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO user (phone_number) VALUES (?)`, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return r.Get(ctx, phoneNumber)
}

// Get returns the user or nil when the row does not exist.
func (r *Repository) Get(ctx context.Context, phoneNumber string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM user WHERE phone_number = ?`, phoneNumber)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListOnboarded returns every user who has completed onboarding.
func (r *Repository) ListOnboarded(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM user
		 WHERE conversation_state NOT LIKE 'onboarding_%' AND conversation_state != 'new'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list onboarded users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ProfileUpdate carries a partial profile change. Nil fields are untouched.
type ProfileUpdate struct {
	Name                *string
	CuisinePreferences  *[]string
	DietaryRestrictions *[]string
	HouseholdSize       *int
	SkillLevel          *string
	CookDays            *[]string
	GroceryDay          *string
	GroceryTime         *string
	CookReminderTime    *string
	Timezone            *string
	MaxMessagesPerDay   *int
}

// Update applies a partial profile change.
func (r *Repository) Update(ctx context.Context, phoneNumber string, update ProfileUpdate) error {
	sets := []string{}
	values := []any{}

	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		values = append(values, value)
	}
	appendJSON := func(column string, list []string) error {
		encoded, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", column, err)
		}
		appendSet(column, string(encoded))
		return nil
	}

	if update.Name != nil {
		appendSet("name", *update.Name)
	}
	if update.CuisinePreferences != nil {
		if err := appendJSON("cuisine_preferences", *update.CuisinePreferences); err != nil {
			return err
		}
	}
	if update.DietaryRestrictions != nil {
		if err := appendJSON("dietary_restrictions", *update.DietaryRestrictions); err != nil {
			return err
		}
	}
	if update.HouseholdSize != nil {
		if *update.HouseholdSize < 1 {
			return fmt.Errorf("household size must be positive, got %d", *update.HouseholdSize)
		}
		appendSet("household_size", *update.HouseholdSize)
	}
	if update.SkillLevel != nil {
		if !ValidSkillLevel(*update.SkillLevel) {
			return fmt.Errorf("unknown skill level: %s", *update.SkillLevel)
		}
		appendSet("skill_level", *update.SkillLevel)
	}
	if update.CookDays != nil {
		if err := appendJSON("cook_days", *update.CookDays); err != nil {
			return err
		}
	}
	if update.GroceryDay != nil {
		appendSet("grocery_day", *update.GroceryDay)
	}
	if update.GroceryTime != nil {
		appendSet("grocery_time", *update.GroceryTime)
	}
	if update.CookReminderTime != nil {
		appendSet("cook_reminder_time", *update.CookReminderTime)
	}
	if update.Timezone != nil {
		appendSet("timezone", *update.Timezone)
	}
	if update.MaxMessagesPerDay != nil {
		if *update.MaxMessagesPerDay < 1 {
			return fmt.Errorf("max messages per day must be positive, got %d", *update.MaxMessagesPerDay)
		}
		appendSet("max_messages_per_day", *update.MaxMessagesPerDay)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = datetime('now')")
	values = append(values, phoneNumber)

	query := "UPDATE user SET " + strings.Join(sets, ", ") + " WHERE phone_number = ?"
	if _, err := r.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// SetConversationState records the new state, replacing the context
// wholesale so scratch data from the previous state never leaks.
func (r *Repository) SetConversationState(ctx context.Context, phoneNumber string, state State, stateContext map[string]any) error {
	if stateContext == nil {
		stateContext = map[string]any{}
	}
	encoded, err := json.Marshal(stateContext)
	if err != nil {
		return fmt.Errorf("failed to encode state context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE user SET conversation_state = ?, state_context = ?, updated_at = datetime('now')
		WHERE phone_number = ?`,
		string(state), string(encoded), phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to set conversation state: %w", err)
	}
	return nil
}
