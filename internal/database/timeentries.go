package database

import (
	"context"
	"fmt"
	"time"

	"crewclock/internal/models"

	"github.com/google/uuid"
)

// InsertTimeEntry creates an active entry from a replayed clock-in and
// returns the authoritative entry id.
func (db *DB) InsertTimeEntry(ctx context.Context, p models.ClockInPayload) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	query := `INSERT INTO time_entries
              (id, company_id, worker_id, job_id, clock_in, status, hourly_rate, photo_url, location, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query,
		id, p.CompanyID, p.WorkerID, p.JobID, p.ClockIn,
		models.EntryStatusActive, p.HourlyRate, p.PhotoURL, p.Location, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert time entry: %w", err)
	}
	return id, nil
}

// CompleteTimeEntry applies a replayed clock-out: clock-out time,
// accumulated break minutes and the worker's attestation.
func (db *DB) CompleteTimeEntry(ctx context.Context, p models.ClockOutPayload) error {
	var query string
	var args []any
	now := time.Now()

	if db.attested {
		query = `UPDATE time_entries SET
                    clock_out = ?, break_minutes = ?, status = ?,
                    missed_meal_break = ?, missed_meal_reason = ?,
                    missed_rest_break = ?, missed_rest_reason = ?,
                    attestation_completed = ?, attestation_signature = ?,
                    updated_at = ?
                 WHERE id = ?`
		args = []any{
			p.ClockOut, p.BreakMinutes, models.EntryStatusCompleted,
			p.MissedMealBreak, p.MissedMealReason,
			p.MissedRestBreak, p.MissedRestReason,
			p.AttestationCompleted, p.AttestationSignature,
			now, p.TimeEntryID,
		}
	} else {
		query = `UPDATE time_entries SET clock_out = ?, break_minutes = ?, status = ?, updated_at = ? WHERE id = ?`
		args = []any{p.ClockOut, p.BreakMinutes, models.EntryStatusCompleted, now, p.TimeEntryID}
	}

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to complete time entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete time entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete time entry %s: %w", p.TimeEntryID, ErrNotFound)
	}
	return nil
}

// SetTimeEntryStatus reclassifies an entry, e.g. to 'edited' after a
// supervisor correction.
func (db *DB) SetTimeEntryStatus(ctx context.Context, id, status string) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE time_entries SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set time entry status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set time entry status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set status on time entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTimeEntry returns one entry by id.
func (db *DB) GetTimeEntry(ctx context.Context, id string) (*models.TimeEntry, error) {
	entries, err := db.queryEntries(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// GetTimeEntriesSince returns a company's entries whose clock-in is at
// or after `since`, plus any still-active entries, oldest first.
func (db *DB) GetTimeEntriesSince(ctx context.Context, companyID string, since time.Time) ([]models.TimeEntry, error) {
	return db.queryEntries(ctx,
		`WHERE company_id = ? AND (clock_in >= ? OR status = 'active') ORDER BY clock_in ASC`,
		companyID, since)
}

func (db *DB) queryEntries(ctx context.Context, where string, args ...any) ([]models.TimeEntry, error) {
	columns := `id, company_id, worker_id, COALESCE(job_id, ''), clock_in, clock_out,
                break_minutes, status, hourly_rate, COALESCE(photo_url, ''), COALESCE(location, '')`
	if db.attested {
		columns += `, missed_meal_break, COALESCE(missed_meal_reason, ''),
                    missed_rest_break, COALESCE(missed_rest_reason, ''),
                    attestation_completed, COALESCE(attestation_signature, '')`
	}

	rows, err := db.db.QueryContext(ctx, `SELECT `+columns+` FROM time_entries `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		var e models.TimeEntry
		dest := []any{
			&e.ID, &e.CompanyID, &e.WorkerID, &e.JobID, &e.ClockIn, &e.ClockOut,
			&e.BreakMinutes, &e.Status, &e.HourlyRate, &e.PhotoURL, &e.Location,
		}
		if db.attested {
			dest = append(dest,
				&e.MissedMealBreak, &e.MissedMealReason,
				&e.MissedRestBreak, &e.MissedRestReason,
				&e.AttestationCompleted, &e.AttestationSignature,
			)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
