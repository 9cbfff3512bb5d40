package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crewclock/internal/domain"
	"crewclock/internal/events"
	"crewclock/internal/metrics"
	"crewclock/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an action id does not exist in the store.
var ErrNotFound = errors.New("queued action not found")

// Store is the device-local durable action queue. One store per device;
// all mutation is atomic at the single-item level. Enqueue never touches
// the network.
type Store struct {
	db            *sql.DB
	retentionDays int
	events        domain.EventPublisher
	now           func() time.Time
}

// Option adjusts Store construction.
type Option func(*Store)

// WithRetentionDays overrides the retention window for synced actions.
func WithRetentionDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// WithEvents publishes queue-size changes so the UI can follow along.
func WithEvents(bus domain.EventPublisher) Option {
	return func(s *Store) { s.events = bus }
}

// WithClock injects the time source; tests use it to age actions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the queue database at path.
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to queue database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue tables: %w", err)
	}

	s := &Store{
		db:            db,
		retentionDays: models.QueueRetentionDays,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS queued_actions (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            synced BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_queued_actions_synced ON queued_actions(synced)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_actions_created_at ON queued_actions(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewActionID mints a queue id: enqueue timestamp plus a random suffix.
// No global coordination; ids only need to be unique per device.
func NewActionID(at time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%s", at.UnixMilli(), suffix)
}

// Enqueue records an attendance action locally and returns its id.
// Storage errors surface to the caller: a silently lost clock-in is a
// payroll risk, so the UI must be told when recording failed.
func (s *Store) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	if !models.ValidActionKind(kind) {
		return "", fmt.Errorf("unknown action kind: %s", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := s.now()
	id := NewActionID(now)

	query := `INSERT INTO queued_actions (id, kind, payload, created_at, synced) VALUES (?, ?, ?, ?, 0)`
	if _, err := s.db.ExecContext(ctx, query, id, kind, string(raw), now); err != nil {
		return "", fmt.Errorf("persist queued action: %w", err)
	}

	s.notify(ctx, id)
	return id, nil
}

// ListUnsynced returns unsynced actions oldest first. Ordering matters:
// a clock-out replay is meaningless before its clock-in has been applied.
func (s *Store) ListUnsynced(ctx context.Context) ([]models.QueuedAction, error) {
	query := `SELECT id, kind, payload, created_at, synced FROM queued_actions
              WHERE synced = 0 ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unsynced actions: %w", err)
	}
	defer rows.Close()

	var actions []models.QueuedAction
	for rows.Next() {
		var a models.QueuedAction
		if err := rows.Scan(&a.ID, &a.Kind, &a.Payload, &a.CreatedAt, &a.Synced); err != nil {
			return nil, fmt.Errorf("scan queued action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// MarkSynced flips the synced flag. Idempotent: re-marking a synced
// action is a no-op, and the flag never reverts.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE queued_actions SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark action synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark action synced: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_actions WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("mark action synced: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
	}

	s.notify(ctx, id)
	return nil
}

// RewritePayload replaces the stored payload of an unsynced action.
// Used only by the sync engine to substitute remote ids for local
// placeholder references; synced actions are left untouched.
func (s *Store) RewritePayload(ctx context.Context, id string, payload string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queued_actions SET payload = ? WHERE id = ? AND synced = 0`, payload, id)
	if err != nil {
		return fmt.Errorf("rewrite action payload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rewrite action payload: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneOld deletes synced actions older than the retention window and
// returns how many were removed. Unsynced actions are never deleted,
// whatever their age.
func (s *Store) PruneOld(ctx context.Context) (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE synced = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune synced actions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune synced actions: %w", err)
	}
	return int(affected), nil
}

// CountUnsynced returns the number of actions awaiting replay.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_actions WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced actions: %w", err)
	}
	return n, nil
}

// Get returns a single action by id.
func (s *Store) Get(ctx context.Context, id string) (*models.QueuedAction, error) {
	var a models.QueuedAction
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, payload, created_at, synced FROM queued_actions WHERE id = ?`, id).
		Scan(&a.ID, &a.Kind, &a.Payload, &a.CreatedAt, &a.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queued action: %w", err)
	}
	return &a, nil
}

func (s *Store) notify(ctx context.Context, lastID string) {
	n, err := s.CountUnsynced(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueUnsynced(n)
	if s.events != nil {
		_ = s.events.PublishJSON(events.EventQueueChanged, events.QueueEventPayload{Unsynced: n, LastID: lastID})
	}
}
