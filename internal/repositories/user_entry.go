package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/shared"
)

// UserEntryRepository persists view-history records for the development record service.
//
// A user has at most one live record per entry and object type.
type UserEntryRepository struct {
	db *sql.DB
}

// NewUserEntryRepository creates a new UserEntryRepository with the given database connection
func NewUserEntryRepository(db *sql.DB) *UserEntryRepository {
	return &UserEntryRepository{db: db}
}

const userEntryColumns = `id, user_id, entry_id, object_type, extended_status, last_time_reached, playback_context, created_at, updated_at`

// Create inserts rec for userID with a generated ID and sequence, filling in the server-owned fields.
func (r *UserEntryRepository) Create(userID string, rec *models.Record) error {
	if rec.EntryID == "" {
		return fmt.Errorf("%w: entry id is required", shared.ErrInvalidInput)
	}

	sequence, err := NextSequence(r.db, "user_entries")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec.ID = shared.GenerateID()
	rec.UserID = userID
	rec.CreatedAt = now.Unix()
	rec.UpdatedAt = now.Unix()

	query := `
		INSERT INTO user_entries (id, sequence, user_id, entry_id, object_type, extended_status, last_time_reached, playback_context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		rec.ID,
		sequence,
		userID,
		rec.EntryID,
		rec.ObjectType,
		string(rec.ExtendedStatus),
		rec.LastTimeReached,
		rec.PlaybackContext,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user entry: %w", err)
	}

	return nil
}

// Get retrieves a record by ID, excluding soft-deleted records
func (r *UserEntryRepository) Get(id string) (*models.Record, error) {
	query := `SELECT ` + userEntryColumns + ` FROM user_entries WHERE id = ? AND deleted_at IS NULL`
	return scanUserEntry(r.db.QueryRow(query, id))
}

// GetByEntry retrieves the user's record for an entry and object type
func (r *UserEntryRepository) GetByEntry(userID, entryID, objectType string) (*models.Record, error) {
	query := `
		SELECT ` + userEntryColumns + `
		FROM user_entries
		WHERE user_id = ? AND entry_id = ? AND object_type = ? AND deleted_at IS NULL
	`
	return scanUserEntry(r.db.QueryRow(query, userID, entryID, objectType))
}

// Update writes the record's status, position and playback context
func (r *UserEntryRepository) Update(rec *models.Record) error {
	now := time.Now().UTC().Truncate(time.Second)

	query := `
		UPDATE user_entries
		SET extended_status = ?, last_time_reached = ?, playback_context = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, string(rec.ExtendedStatus), rec.LastTimeReached, rec.PlaybackContext, now, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update user entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, rec.ID)
	}

	rec.UpdatedAt = now.Unix()
	return nil
}

// Delete soft-deletes a record by ID
func (r *UserEntryRepository) Delete(id string) error {
	query := `
		UPDATE user_entries
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, id)
	}

	return nil
}

// List retrieves all records matching the given criteria, excluding soft-deleted records.
//
// Supported criteria: "user_id", "entry_id", "object_type".
func (r *UserEntryRepository) List(criteria map[string]any) ([]*models.Record, error) {
	query := `SELECT ` + userEntryColumns + ` FROM user_entries WHERE deleted_at IS NULL`
	args := []any{}

	for _, column := range []string{"user_id", "entry_id", "object_type"} {
		if v, ok := criteria[column].(string); ok && v != "" {
			query += " AND " + column + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user entries: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		rec, err := scanUserEntry(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUserEntry(row scanner) (*models.Record, error) {
	var (
		rec       models.Record
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&rec.ID, &rec.UserID, &rec.EntryID, &rec.ObjectType, &status, &rec.LastTimeReached, &rec.PlaybackContext, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user entry: %w", err)
	}

	rec.ExtendedStatus = models.Status(status)
	rec.CreatedAt = createdAt.Unix()
	rec.UpdatedAt = updatedAt.Unix()
	return &rec, nil
}
