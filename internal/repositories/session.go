package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/viewsync/internal/shared"
)

// SessionRepository maps ks values to the users they belong to.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a session for userID. A zero ttl never expires.
func (r *SessionRepository) Create(ks, userID string, ttl time.Duration) error {
	if ks == "" || userID == "" {
		return fmt.Errorf("%w: ks and user id are required", shared.ErrInvalidInput)
	}

	now := time.Now().UTC()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	query := `INSERT OR REPLACE INTO sessions (ks, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Exec(query, ks, userID, now, expiresAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Resolve returns the user of an unexpired session.
func (r *SessionRepository) Resolve(ks string) (string, error) {
	var (
		userID    string
		expiresAt sql.NullTime
	)

	err := r.db.QueryRow(`SELECT user_id, expires_at FROM sessions WHERE ks = ?`, ks).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", shared.ErrNoCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to query session: %w", err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return "", fmt.Errorf("%w: session expired", shared.ErrNoCredentials)
	}

	return userID, nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ks string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE ks = ?`, ks); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
