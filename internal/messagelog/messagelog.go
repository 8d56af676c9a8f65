// Package messagelog records every message in and out so the assistant
// can rebuild recent context and respect per-user daily send limits.
package messagelog

import (
	"context"
	"database/sql"
	"fmt"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Entry is one logged message.
type Entry struct {
	ID        int64  `json:"id"`
	UserPhone string `json:"-"`
	Direction string `json:"direction"`
	Content   string `json:"content"`
	SentAt    string `json:"sent_at"`
}

// Repository is a database-backed message log.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Log records a message.
func (r *Repository) Log(ctx context.Context, userPhone, direction, content string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_log (user_phone, direction, content) VALUES (?, ?, ?)`,
		userPhone, direction, content)
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

// CountOutboundToday returns how many proactive messages were sent to
// the user today.
func (r *Repository) CountOutboundToday(ctx context.Context, userPhone string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_log
		WHERE user_phone = ? AND direction = ? AND date(sent_at) = date('now')`,
		userPhone, DirectionOutbound).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbound messages: %w", err)
	}
	return count, nil
}

// Recent returns the last limit messages in chronological order.
func (r *Repository) Recent(ctx context.Context, userPhone string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_phone, direction, content, sent_at FROM message_log
		WHERE user_phone = ?
		ORDER BY id DESC LIMIT ?`, userPhone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserPhone, &e.Direction, &e.Content, &e.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
