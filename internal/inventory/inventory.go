// Package inventory tracks what each user currently has in their
// kitchen. Item names are stored lowercased so "Rice" and "rice" are
// the same row.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Item is one kitchen inventory entry.
type Item struct {
	ID          int64
	UserPhone   string
	Name        string
	Category    string
	Quantity    string
	IsStaple    bool
	LastUpdated string
}

// Repository is a database-backed repository for inventory items.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns the user's inventory, staples first, then by name.
func (r *Repository) List(ctx context.Context, userPhone string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_phone, item_name, category, quantity, is_staple, last_updated
		FROM inventory_item WHERE user_phone = ?
		ORDER BY is_staple DESC, item_name`, userPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item               Item
			category, quantity sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.UserPhone, &item.Name, &category,
			&quantity, &item.IsStaple, &item.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		item.Category = category.String
		item.Quantity = quantity.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// Add inserts an item, updating the existing row when the user already
// has one by the same name.
func (r *Repository) Add(ctx context.Context, userPhone string, item Item) error {
	name := strings.ToLower(strings.TrimSpace(item.Name))
	if name == "" {
		return fmt.Errorf("item name is empty")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_item (user_phone, item_name, category, quantity, is_staple)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_phone, item_name) DO UPDATE SET
			category = excluded.category,
			quantity = excluded.quantity,
			is_staple = excluded.is_staple,
			last_updated = datetime('now')`,
		userPhone, name, nullable(item.Category), nullable(item.Quantity), item.IsStaple)
	if err != nil {
		return fmt.Errorf("failed to add inventory item: %w", err)
	}
	return nil
}

// AddBatch adds several items in one transaction.
func (r *Repository) AddBatch(ctx context.Context, userPhone string, items []Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_item (user_phone, item_name, category, quantity, is_staple)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_phone, item_name) DO UPDATE SET
				category = excluded.category,
				quantity = excluded.quantity,
				is_staple = excluded.is_staple,
				last_updated = datetime('now')`,
			userPhone, name, nullable(item.Category), nullable(item.Quantity), item.IsStaple)
		if err != nil {
			return fmt.Errorf("failed to add inventory item %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// Remove deletes an item by name. Removing an item the user does not
// have is not an error.
func (r *Repository) Remove(ctx context.Context, userPhone, name string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM inventory_item WHERE user_phone = ? AND item_name = ?`,
		userPhone, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("failed to remove inventory item: %w", err)
	}
	return nil
}

// KeepOnly deletes every item whose ID is not in keep. An empty keep
// list clears the inventory.
func (r *Repository) KeepOnly(ctx context.Context, userPhone string, keep []int64) error {
	if len(keep) == 0 {
		return r.Clear(ctx, userPhone)
	}

	placeholders := strings.Repeat("?,", len(keep))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(keep)+1)
	args = append(args, userPhone)
	for _, id := range keep {
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM inventory_item WHERE user_phone = ? AND id NOT IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to prune inventory: %w", err)
	}
	return nil
}

// Clear deletes the user's entire inventory.
func (r *Repository) Clear(ctx context.Context, userPhone string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM inventory_item WHERE user_phone = ?`, userPhone)
	if err != nil {
		return fmt.Errorf("failed to clear inventory: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
