package models

import "time"

// QueuedAction is a locally recorded attendance intent awaiting replay
// against the company server. Immutable after enqueue except for the
// Synced flag and reference-id rewrites inside Payload (see sync engine).
type QueuedAction struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Synced    bool      `json:"synced"`
}

// ClockInPayload starts a new time entry for a worker.
type ClockInPayload struct {
	CompanyID  string    `json:"company_id"`
	WorkerID   string    `json:"worker_id"`
	JobID      string    `json:"job_id,omitempty"`
	ClockIn    time.Time `json:"clock_in"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Location   string    `json:"location,omitempty"`
	HourlyRate float64   `json:"hourly_rate,omitempty"`
}

// ClockOutPayload completes an entry and carries the worker's break
// attestation. TimeEntryID may be a local placeholder (the queued
// clock-in action id) until the clock-in has synced.
type ClockOutPayload struct {
	TimeEntryID          string    `json:"time_entry_id"`
	ClockOut             time.Time `json:"clock_out"`
	PhotoURL             string    `json:"photo_url,omitempty"`
	Location             string    `json:"location,omitempty"`
	BreakMinutes         int       `json:"break_minutes"`
	AttestationCompleted bool      `json:"attestation_completed"`
	AttestationSignature string    `json:"attestation_signature,omitempty"`
	MissedMealBreak      bool      `json:"missed_meal_break"`
	MissedMealReason     string    `json:"missed_meal_reason,omitempty"`
	MissedRestBreak      bool      `json:"missed_rest_break"`
	MissedRestReason     string    `json:"missed_rest_reason,omitempty"`
}

// BreakStartPayload opens a break against an entry.
type BreakStartPayload struct {
	TimeEntryID string    `json:"time_entry_id"`
	BreakType   string    `json:"break_type"`
	BreakStart  time.Time `json:"break_start"`
	Location    string    `json:"location,omitempty"`
}

// BreakEndPayload closes a break. BreakID may be the queued
// break-start action id until that action has synced.
type BreakEndPayload struct {
	BreakID  string    `json:"break_id"`
	BreakEnd time.Time `json:"break_end"`
}

// TimeEntry is one clock-in/clock-out pair, owned by the company server.
type TimeEntry struct {
	ID                   string     `json:"id"`
	CompanyID            string     `json:"company_id"`
	WorkerID             string     `json:"worker_id"`
	JobID                string     `json:"job_id,omitempty"`
	ClockIn              time.Time  `json:"clock_in"`
	ClockOut             *time.Time `json:"clock_out,omitempty"`
	BreakMinutes         int        `json:"break_minutes"`
	Status               string     `json:"status"`
	HourlyRate           float64    `json:"hourly_rate"`
	PhotoURL             string     `json:"photo_url,omitempty"`
	Location             string     `json:"location,omitempty"`
	MissedMealBreak      bool       `json:"missed_meal_break"`
	MissedMealReason     string     `json:"missed_meal_reason,omitempty"`
	MissedRestBreak      bool       `json:"missed_rest_break"`
	MissedRestReason     string     `json:"missed_rest_reason,omitempty"`
	AttestationCompleted bool       `json:"attestation_completed"`
	AttestationSignature string     `json:"attestation_signature,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Break is a single meal or rest break linked to a time entry.
type Break struct {
	ID          string     `json:"id"`
	TimeEntryID string     `json:"time_entry_id"`
	BreakType   string     `json:"break_type"`
	BreakStart  time.Time  `json:"break_start"`
	BreakEnd    *time.Time `json:"break_end,omitempty"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ComplianceAlert is a derived supervisory view over time entries. The
// entry's own missed_* fields stay authoritative for what the worker
// attested; alerts are recomputed on every report query. The ID is a
// stable fingerprint so acknowledgements survive recomputation.
type ComplianceAlert struct {
	ID             string     `json:"id"`
	AlertType      string     `json:"alert_type"`
	Severity       string     `json:"severity"`
	WorkerID       string     `json:"worker_id"`
	CompanyID      string     `json:"company_id"`
	TimeEntryID    string     `json:"time_entry_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// WorkerSummary aggregates one worker's week for proactive overtime
// management.
type WorkerSummary struct {
	WorkerID      string  `json:"worker_id"`
	HoursThisWeek float64 `json:"hours_this_week"`
	HourlyRate    float64 `json:"hourly_rate"`
	EntryCount    int     `json:"entry_count"`
	OverWeeklyCap bool    `json:"over_weekly_cap"`
}

// ComplianceStats summarizes a report for the dashboard header.
type ComplianceStats struct {
	TotalViolations     int             `json:"total_violations"`
	UnacknowledgedCount int             `json:"unacknowledged_count"`
	WorkersOverWeekly   int             `json:"workers_over_weekly"`
	WorkerSummaries     []WorkerSummary `json:"worker_summaries"`
}

// EntryHours pairs a time entry with its computed worked hours.
type EntryHours struct {
	TimeEntry
	HoursWorked float64 `json:"hours_worked"`
}

// SyncResult reports the outcome of one sync pass.
type SyncResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
