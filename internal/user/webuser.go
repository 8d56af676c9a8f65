package user

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebUser is an account created through Google sign-in on the web app.
// It may be linked to a phone-based user once the person identifies
// themselves in chat.
type WebUser struct {
	ID                 string
	GoogleID           string
	Email              string
	Name               string
	Picture            string
	PhoneNumber        string
	GoogleAccessToken  string
	GoogleRefreshToken string
	GoogleTokenExpiry  string
	CreatedAt          string
	UpdatedAt          string
}

// HasCalendarToken reports whether the account has authorized calendar
// access.
func (u *WebUser) HasCalendarToken() bool {
	return u.GoogleAccessToken != "" || u.GoogleRefreshToken != ""
}

// WebRepository is a database-backed repository for web accounts.
type WebRepository struct {
	db *sql.DB
}

// NewWebRepository creates a new WebRepository.
func NewWebRepository(db *sql.DB) *WebRepository {
	return &WebRepository{db: db}
}

const webUserColumns = `id, google_id, email, name, picture, phone_number,
	google_access_token, google_refresh_token, google_token_expiry, created_at, updated_at`

func scanWebUser(row interface{ Scan(...any) error }) (*WebUser, error) {
	var (
		u                                    WebUser
		name, picture, phone                 sql.NullString
		accessToken, refreshToken, expiry    sql.NullString
	)
	err := row.Scan(&u.ID, &u.GoogleID, &u.Email, &name, &picture, &phone,
		&accessToken, &refreshToken, &expiry, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Picture = picture.String
	u.PhoneNumber = phone.String
	u.GoogleAccessToken = accessToken.String
	u.GoogleRefreshToken = refreshToken.String
	u.GoogleTokenExpiry = expiry.String
	return &u, nil
}

// GetOrCreate looks up the account by Google subject ID, creating a row
// on first sign-in. Profile details are refreshed on every call since
// Google may change them between sign-ins.
func (r *WebRepository) GetOrCreate(ctx context.Context, googleID, email, name, picture string) (*WebUser, error) {
	u, err := r.GetByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE web_user SET email = ?, name = ?, picture = ?, updated_at = datetime('now')
			WHERE id = ?`, email, name, picture, u.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh web user profile: %w", err)
		}
		return r.GetByGoogleID(ctx, googleID)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO web_user (id, google_id, email, name, picture) VALUES (?, ?, ?, ?, ?)`,
		id, googleID, email, name, picture)
	if err != nil {
		return nil, fmt.Errorf("failed to create web user: %w", err)
	}
	return r.GetByGoogleID(ctx, googleID)
}

// GetByGoogleID returns the account or nil when it does not exist.
func (r *WebRepository) GetByGoogleID(ctx context.Context, googleID string) (*WebUser, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webUserColumns+` FROM web_user WHERE google_id = ?`, googleID)
	u, err := scanWebUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get web user: %w", err)
	}
	return u, nil
}

// Get returns the account by its primary ID, or nil when it does not exist.
func (r *WebRepository) Get(ctx context.Context, id string) (*WebUser, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webUserColumns+` FROM web_user WHERE id = ?`, id)
	u, err := scanWebUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get web user: %w", err)
	}
	return u, nil
}

// LinkPhoneNumber ties the web account to a chat user.
func (r *WebRepository) LinkPhoneNumber(ctx context.Context, id, phoneNumber string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE web_user SET phone_number = ?, updated_at = datetime('now')
		WHERE id = ?`, phoneNumber, id)
	if err != nil {
		return fmt.Errorf("failed to link phone number: %w", err)
	}
	return nil
}

// SaveGoogleToken stores the OAuth token used for Google Calendar sync.
func (r *WebRepository) SaveGoogleToken(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE web_user SET google_access_token = ?, google_refresh_token = ?,
			google_token_expiry = ?, updated_at = datetime('now')
		WHERE id = ?`,
		accessToken, refreshToken, expiry.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to save google token: %w", err)
	}
	return nil
}
