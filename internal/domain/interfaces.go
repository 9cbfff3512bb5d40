package domain

import (
	"context"
	"time"

	"crewclock/internal/models"
)

// ActionQueue is the device-local durable store of attendance actions.
type ActionQueue interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
	ListUnsynced(ctx context.Context) ([]models.QueuedAction, error)
	MarkSynced(ctx context.Context, id string) error
	RewritePayload(ctx context.Context, id string, payload string) error
	PruneOld(ctx context.Context) (int, error)
	CountUnsynced(ctx context.Context) (int, error)
}

// RemoteStore is the narrow surface of the company system-of-record the
// sync engine replays queued actions against.
type RemoteStore interface {
	CreateTimeEntry(ctx context.Context, p models.ClockInPayload) (string, error)
	CompleteTimeEntry(ctx context.Context, p models.ClockOutPayload) error
	CreateBreak(ctx context.Context, p models.BreakStartPayload) (string, error)
	CompleteBreak(ctx context.Context, p models.BreakEndPayload) error
}

// Monitor reports device reachability and transition edges.
type Monitor interface {
	IsOnline() bool
	Subscribe(onOnline, onOffline func()) (unsubscribe func())
}

// EntrySource feeds time entries to the compliance calculator.
// Attested reports whether the attestation columns are present; when
// false the calculator falls back to hour-threshold rules only.
type EntrySource interface {
	GetTimeEntriesSince(ctx context.Context, companyID string, since time.Time) ([]models.TimeEntry, error)
	Attested() bool
}

// AckRepository persists alert acknowledgements keyed by alert
// fingerprint. Alerts themselves are recomputed on every read.
type AckRepository interface {
	Acknowledge(ctx context.Context, alertID string, at time.Time) error
	AcknowledgedAt(ctx context.Context, alertID string) (*time.Time, error)
}

// EventPublisher fans out queue and sync events to the UI layer.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// HoursExporter pushes weekly hour summaries to an external sheet.
type HoursExporter interface {
	AppendWeeklySummary(ctx context.Context, weekStart time.Time, summaries []models.WorkerSummary) error
}
