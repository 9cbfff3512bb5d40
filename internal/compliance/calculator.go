package compliance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crewclock/internal/domain"
	"crewclock/internal/metrics"
	"crewclock/internal/models"

	"github.com/rs/zerolog"
)

// Report is what the reporting surface renders: derived alerts, summary
// stats, and the entries with computed hours.
type Report struct {
	Alerts  []models.ComplianceAlert `json:"alerts"`
	Stats   models.ComplianceStats   `json:"stats"`
	Entries []models.EntryHours      `json:"time_entries"`
}

// Calculator derives compliance state from time entries. It is a pure
// read layer: alerts are recomputed on every query and only the
// acknowledged flag is persisted (in the ack repository, keyed by the
// alert fingerprint).
type Calculator struct {
	source domain.EntrySource
	acks   domain.AckRepository
	rules  Rules
	logger zerolog.Logger
	now    func() time.Time
}

// CalcOption adjusts Calculator construction.
type CalcOption func(*Calculator)

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) CalcOption {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator builds a calculator. acks may be nil; alerts then
// always read as unacknowledged.
func NewCalculator(source domain.EntrySource, acks domain.AckRepository, rules Rules, logger *zerolog.Logger, opts ...CalcOption) *Calculator {
	c := &Calculator{
		source: source,
		acks:   acks,
		rules:  rules,
		now:    time.Now,
	}
	if logger != nil {
		c.logger = logger.With().Str("component", "compliance").Logger()
	} else {
		c.logger = zerolog.Nop()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HoursWorked computes an entry's worked hours at the reference time:
// clock-out (or now for active entries) minus clock-in minus breaks,
// floored at zero so clock skew can never produce negative hours.
func HoursWorked(e models.TimeEntry, now time.Time) float64 {
	end := now
	if e.ClockOut != nil {
		end = *e.ClockOut
	}
	hours := end.Sub(e.ClockIn).Hours() - float64(e.BreakMinutes)/60
	if hours < 0 {
		return 0
	}
	return hours
}

// Report computes the compliance view for a company over a lookback
// range ("today", "week" or "month"). Read-only; safe on every page view.
func (c *Calculator) Report(ctx context.Context, companyID, rng string) (*Report, error) {
	now := c.now()
	rangeStart, err := rangeStart(now, rng)
	if err != nil {
		return nil, err
	}
	weekStart := WeekStart(now)

	// Fetch back to the week start even for a "today" report so weekly
	// summaries always cover the full week.
	since := rangeStart
	if weekStart.Before(since) {
		since = weekStart
	}

	entries, err := c.source.GetTimeEntriesSince(ctx, companyID, since)
	if err != nil {
		return nil, fmt.Errorf("fetch time entries: %w", err)
	}

	attested := c.source.Attested()
	if !attested {
		c.logger.Warn().Msg("attestation columns absent, computing hour-threshold rules only")
	}

	report := &Report{Entries: make([]models.EntryHours, 0, len(entries))}

	type dayKey struct {
		worker string
		day    string
	}
	dayHours := make(map[dayKey]float64)
	weekly := make(map[string]*models.WorkerSummary)

	for _, e := range entries {
		hours := HoursWorked(e, now)

		if !e.ClockIn.Before(rangeStart) {
			report.Entries = append(report.Entries, models.EntryHours{TimeEntry: e, HoursWorked: hours})
		}

		day := e.ClockIn.Format("2006-01-02")
		dayHours[dayKey{worker: e.WorkerID, day: day}] += hours

		if !e.ClockIn.Before(weekStart) {
			s, ok := weekly[e.WorkerID]
			if !ok {
				s = &models.WorkerSummary{WorkerID: e.WorkerID}
				weekly[e.WorkerID] = s
			}
			s.HoursThisWeek += hours
			s.EntryCount++
			if e.HourlyRate > 0 {
				s.HourlyRate = e.HourlyRate
			}
		}

		// Self-attested break violations. The entry fields stay the
		// authority for what the worker reported; this is the
		// supervisory view on top.
		if attested && !e.ClockIn.Before(rangeStart) {
			if e.MissedMealBreak && hours > c.rules.MealBreakHours {
				report.Alerts = append(report.Alerts, c.newAlert(
					models.AlertMealBreakMissed, models.SeverityViolation, e.WorkerID, e.CompanyID, e.ID,
					fmt.Sprintf("worked %.1fh with no 30-minute meal break", hours), now,
					fingerprint(models.AlertMealBreakMissed, e.ID, ""),
				))
			}
			if e.MissedRestBreak && hours > c.rules.RestBreakHours {
				report.Alerts = append(report.Alerts, c.newAlert(
					models.AlertRestBreakDue, models.SeverityViolation, e.WorkerID, e.CompanyID, e.ID,
					fmt.Sprintf("worked %.1fh with no paid rest break", hours), now,
					fingerprint(models.AlertRestBreakDue, e.ID, ""),
				))
			}
		}
	}

	// Derived hour-threshold alerts; these may flag what the worker did
	// not self-report.
	dayKeys := make([]dayKey, 0, len(dayHours))
	for k := range dayHours {
		dayKeys = append(dayKeys, k)
	}
	sort.Slice(dayKeys, func(i, j int) bool {
		if dayKeys[i].day != dayKeys[j].day {
			return dayKeys[i].day < dayKeys[j].day
		}
		return dayKeys[i].worker < dayKeys[j].worker
	})
	for _, k := range dayKeys {
		if k.day < rangeStart.Format("2006-01-02") {
			continue
		}
		hours := dayHours[k]
		if hours > c.rules.DailyOvertimeHours {
			report.Alerts = append(report.Alerts, c.newAlert(
				models.AlertOvertimeWarning, models.SeverityWarning, k.worker, companyID, "",
				fmt.Sprintf("%.1fh on %s exceeds daily overtime threshold", hours, k.day), now,
				fingerprint(models.AlertOvertimeWarning, k.worker, k.day),
			))
		}
		if hours > c.rules.DailyDoubleTimeHours {
			report.Alerts = append(report.Alerts, c.newAlert(
				models.AlertDoubleTimeWarning, models.SeverityWarning, k.worker, companyID, "",
				fmt.Sprintf("%.1fh on %s exceeds daily double-time threshold", hours, k.day), now,
				fingerprint(models.AlertDoubleTimeWarning, k.worker, k.day),
			))
		}
	}

	c.overlayAcks(ctx, report.Alerts)

	workers := make([]string, 0, len(weekly))
	for w := range weekly {
		workers = append(workers, w)
	}
	sort.Strings(workers)
	for _, w := range workers {
		s := weekly[w]
		s.OverWeeklyCap = s.HoursThisWeek > c.rules.WeeklyOvertimeHours
		if s.OverWeeklyCap {
			report.Stats.WorkersOverWeekly++
		}
		report.Stats.WorkerSummaries = append(report.Stats.WorkerSummaries, *s)
	}

	for _, a := range report.Alerts {
		metrics.IncComplianceAlert(a.AlertType)
		if a.Severity == models.SeverityViolation {
			report.Stats.TotalViolations++
		}
		if !a.Acknowledged {
			report.Stats.UnacknowledgedCount++
		}
	}

	return report, nil
}

func (c *Calculator) newAlert(alertType, severity, workerID, companyID, entryID, message string, now time.Time, id string) models.ComplianceAlert {
	return models.ComplianceAlert{
		ID:          id,
		AlertType:   alertType,
		Severity:    severity,
		WorkerID:    workerID,
		CompanyID:   companyID,
		TimeEntryID: entryID,
		Message:     message,
		CreatedAt:   now,
	}
}

func (c *Calculator) overlayAcks(ctx context.Context, alerts []models.ComplianceAlert) {
	if c.acks == nil {
		return
	}
	for i := range alerts {
		at, err := c.acks.AcknowledgedAt(ctx, alerts[i].ID)
		if err != nil {
			c.logger.Warn().Str("alert_id", alerts[i].ID).Err(err).Msg("ack lookup failed")
			continue
		}
		if at != nil {
			alerts[i].Acknowledged = true
			alerts[i].AcknowledgedAt = at
		}
	}
}

// fingerprint builds the stable alert id acknowledgements key on.
func fingerprint(alertType, a, b string) string {
	if b == "" {
		return fmt.Sprintf("%s:%s", alertType, a)
	}
	return fmt.Sprintf("%s:%s:%s", alertType, a, b)
}

func rangeStart(now time.Time, rng string) (time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch rng {
	case models.RangeToday, "":
		return midnight, nil
	case models.RangeWeek:
		return WeekStart(now), nil
	case models.RangeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("unknown range: %s", rng)
	}
}

// WeekStart returns the Monday midnight that opens the work week
// containing now.
func WeekStart(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(now.Weekday()) - models.WeekStartsOn + 7) % 7
	return midnight.AddDate(0, 0, -offset)
}
