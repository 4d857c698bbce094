package repositories

import (
	"database/sql"
	"fmt"
)

// sequenced lists the tables that own a "<table>_sequence" counter row.
var sequenced = map[string]bool{"user_entries": true}

// NextSequence advances table's counter and returns the new value.
//
// user_entries rows carry it so list responses come back in creation order whatever their generated ids are.
// The value stays inside the service and is never part of a record.
func NextSequence(db *sql.DB, table string) (int, error) {
	if !sequenced[table] {
		return 0, fmt.Errorf("no sequence for table %q", table)
	}

	var next int
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)
	if err := db.QueryRow(query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", table, err)
	}
	return next, nil
}
