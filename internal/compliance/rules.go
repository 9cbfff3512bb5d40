package compliance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Rules carries one jurisdiction's labor-law thresholds, in hours.
// California is the default; other jurisdictions load from the side
// file without code changes.
type Rules struct {
	Name                 string  `yaml:"name"`
	MealBreakHours       float64 `yaml:"meal_break_hours"`
	RestBreakHours       float64 `yaml:"rest_break_hours"`
	DailyOvertimeHours   float64 `yaml:"daily_overtime_hours"`
	DailyDoubleTimeHours float64 `yaml:"daily_double_time_hours"`
	WeeklyOvertimeHours  float64 `yaml:"weekly_overtime_hours"`
}

// DefaultRules returns the California thresholds.
func DefaultRules() Rules {
	return Rules{
		Name:                 "california",
		MealBreakHours:       5,
		RestBreakHours:       4,
		DailyOvertimeHours:   8,
		DailyDoubleTimeHours: 12,
		WeeklyOvertimeHours:  40,
	}
}

// LoadJurisdictions reads the jurisdiction threshold file.
func LoadJurisdictions(path string) (map[string]Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Jurisdictions []Rules `yaml:"jurisdictions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	rules := make(map[string]Rules, len(file.Jurisdictions))
	for _, r := range file.Jurisdictions {
		if err := ValidateRules(r); err != nil {
			return nil, err
		}
		rules[r.Name] = r
	}
	return rules, nil
}

// ValidateRules rejects threshold sets that cannot possibly be right.
func ValidateRules(r Rules) error {
	if r.Name == "" {
		return fmt.Errorf("jurisdiction has no name")
	}
	if r.MealBreakHours <= 0 || r.RestBreakHours <= 0 ||
		r.DailyOvertimeHours <= 0 || r.DailyDoubleTimeHours <= 0 ||
		r.WeeklyOvertimeHours <= 0 {
		return fmt.Errorf("jurisdiction %q has non-positive thresholds", r.Name)
	}
	if r.DailyDoubleTimeHours <= r.DailyOvertimeHours {
		return fmt.Errorf("jurisdiction %q: double-time threshold must exceed overtime threshold", r.Name)
	}
	return nil
}

// SelectRules picks a jurisdiction from the loaded set, falling back to
// the defaults when the file omits it.
func SelectRules(rules map[string]Rules, jurisdiction string) Rules {
	if r, ok := rules[jurisdiction]; ok {
		return r
	}
	return DefaultRules()
}
