package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accessKey = "access"

// TokenRepository is the durable access token slot. It implements session.TokenStore.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new TokenRepository with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Load returns the stored access token, or "" when none is stored.
func (r *TokenRepository) Load(ctx context.Context) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", accessKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load access token: %w", err)
	}
	return value, nil
}

// Save replaces the stored access token.
func (r *TokenRepository) Save(ctx context.Context, token string) error {
	if token == "" {
		return r.Clear(ctx)
	}

	query := `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, accessKey, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// Clear removes the stored access token. Clearing an empty slot is not an error.
func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", accessKey); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	return nil
}

// UpdatedAt returns when the token was last written, or the zero time.
func (r *TokenRepository) UpdatedAt(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx, "SELECT updated_at FROM credentials WHERE key = ?", accessKey).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read token timestamp: %w", err)
	}
	return ts, nil
}
