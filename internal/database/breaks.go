package database

import (
	"context"
	"fmt"
	"time"

	"crewclock/internal/models"

	"github.com/google/uuid"
)

// InsertBreak creates a break linked to an entry from a replayed
// break-start. The entry must already exist; a missing entry is the
// expected rejection when the paired clock-in has not synced yet.
func (db *DB) InsertBreak(ctx context.Context, p models.BreakStartPayload) (string, error) {
	var exists int
	if err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM time_entries WHERE id = ?`, p.TimeEntryID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check time entry: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("break for time entry %s: %w", p.TimeEntryID, ErrNotFound)
	}

	id := uuid.NewString()
	query := `INSERT INTO breaks (id, time_entry_id, break_type, break_start, location, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query, id, p.TimeEntryID, p.BreakType, p.BreakStart, p.Location, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to insert break: %w", err)
	}
	return id, nil
}

// CompleteBreak applies a replayed break-end.
func (db *DB) CompleteBreak(ctx context.Context, p models.BreakEndPayload) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE breaks SET break_end = ? WHERE id = ?`, p.BreakEnd, p.BreakID)
	if err != nil {
		return fmt.Errorf("failed to complete break: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete break: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete break %s: %w", p.BreakID, ErrNotFound)
	}
	return nil
}

// GetBreaksForEntry returns an entry's breaks oldest first.
func (db *DB) GetBreaksForEntry(ctx context.Context, timeEntryID string) ([]models.Break, error) {
	query := `SELECT id, time_entry_id, break_type, break_start, break_end, COALESCE(location, '')
              FROM breaks WHERE time_entry_id = ? ORDER BY break_start ASC`
	rows, err := db.db.QueryContext(ctx, query, timeEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query breaks: %w", err)
	}
	defer rows.Close()

	var breaks []models.Break
	for rows.Next() {
		var b models.Break
		if err := rows.Scan(&b.ID, &b.TimeEntryID, &b.BreakType, &b.BreakStart, &b.BreakEnd, &b.Location); err != nil {
			return nil, fmt.Errorf("failed to scan break: %w", err)
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}
