package user

import (
	"context"
	"fmt"
)

// Updatable profile fields, keyed by the name the assistant refers to
// them with. Anything outside this set is rejected before it touches SQL.
var updatableFields = map[string]struct{}{
	"name":                 {},
	"cuisine_preferences":  {},
	"dietary_restrictions": {},
	"household_size":       {},
	"skill_level":          {},
	"cook_days":            {},
	"grocery_day":          {},
	"grocery_time":         {},
	"cook_reminder_time":   {},
	"timezone":             {},
	"max_messages_per_day": {},
}

// UpdateField applies a single named field change. The field name and
// value both come from model output, so everything is validated against
// the closed set before being written.
func (r *Repository) UpdateField(ctx context.Context, phoneNumber, field string, value any) error {
	if _, ok := updatableFields[field]; !ok {
		return fmt.Errorf("field %q is not updatable", field)
	}

	var update ProfileUpdate
	switch field {
	case "name", "grocery_day", "grocery_time", "cook_reminder_time", "timezone", "skill_level":
		s, err := asString(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		switch field {
		case "name":
			update.Name = &s
		case "grocery_day":
			update.GroceryDay = &s
		case "grocery_time":
			update.GroceryTime = &s
		case "cook_reminder_time":
			update.CookReminderTime = &s
		case "timezone":
			update.Timezone = &s
		case "skill_level":
			update.SkillLevel = &s
		}
	case "household_size", "max_messages_per_day":
		n, err := asInt(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		if field == "household_size" {
			update.HouseholdSize = &n
		} else {
			update.MaxMessagesPerDay = &n
		}
	case "cuisine_preferences", "dietary_restrictions", "cook_days":
		list, err := asStringList(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		switch field {
		case "cuisine_preferences":
			update.CuisinePreferences = &list
		case "dietary_restrictions":
			update.DietaryRestrictions = &list
		case "cook_days":
			update.CookDays = &list
		}
	}

	return r.Update(ctx, phoneNumber, update)
}

func asString(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func asStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		// single value supplied where a list is expected
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}
