package models

const (
	ActionClockIn    = "clock_in"
	ActionClockOut   = "clock_out"
	ActionBreakStart = "break_start"
	ActionBreakEnd   = "break_end"
)

const (
	EntryStatusActive    = "active"
	EntryStatusCompleted = "completed"
	EntryStatusEdited    = "edited"
)

const (
	BreakTypeMeal = "meal"
	BreakTypeRest = "rest"
)

const (
	AlertMealBreakMissed   = "meal_break_missed"
	AlertRestBreakDue      = "rest_break_due"
	AlertOvertimeWarning   = "overtime_warning"
	AlertDoubleTimeWarning = "double_time_warning"
)

const (
	SeverityWarning   = "warning"
	SeverityViolation = "violation"
)

const (
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
)

const (
	// QueueRetentionDays how long synced actions are kept for debugging
	// before pruning. Unsynced actions are never pruned.
	QueueRetentionDays = 7

	// DefaultProbeIntervalSeconds connectivity probe cadence
	DefaultProbeIntervalSeconds = 15

	// DefaultRetryIntervalSeconds baseline pause between periodic sync passes
	DefaultRetryIntervalSeconds = 30

	// DefaultAckTTL lifetime of alert acknowledgements in Redis (90 days in seconds)
	DefaultAckTTL = 90 * 24 * 60 * 60

	// WeekStartsOn compliance weeks run Monday through Sunday
	WeekStartsOn = 1
)

// ValidActionKind reports whether kind belongs to the closed action set.
func ValidActionKind(kind string) bool {
	switch kind {
	case ActionClockIn, ActionClockOut, ActionBreakStart, ActionBreakEnd:
		return true
	}
	return false
}

// ValidBreakType reports whether t is a recognised break type.
func ValidBreakType(t string) bool {
	return t == BreakTypeMeal || t == BreakTypeRest
}
