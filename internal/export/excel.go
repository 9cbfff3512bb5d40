package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crewclock/internal/compliance"
	"crewclock/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetEntries = "Time Entries"
	sheetAlerts  = "Alerts"
	sheetSummary = "Weekly Summary"
)

// BuildReportFile renders a compliance report into a workbook. The
// caller owns the file and must Close it.
func BuildReportFile(report *compliance.Report, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetEntries)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	writeEntries(f, report.Entries, generatedAt)

	if _, err := f.NewSheet(sheetAlerts); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	writeAlerts(f, report.Alerts)

	if _, err := f.NewSheet(sheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	writeSummary(f, report.Stats)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// SaveReport writes the workbook under dir and returns the file path.
func SaveReport(dir string, report *compliance.Report, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := BuildReportFile(report, generatedAt)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("compliance_%s.xlsx", generatedAt.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}
	return filePath, nil
}

func writeEntries(f *excelize.File, entries []models.EntryHours, generatedAt time.Time) {
	_ = f.SetCellValue(sheetEntries, "A1", fmt.Sprintf("Generated: %s", generatedAt.Format("02.01.2006 15:04")))

	headers := []string{"Entry ID", "Worker", "Job", "Clock In", "Clock Out", "Break Min", "Hours", "Status"}
	writeHeaderRow(f, sheetEntries, headers)

	for i, e := range entries {
		row := i + 3
		clockOut := ""
		if e.ClockOut != nil {
			clockOut = e.ClockOut.Format("02.01.2006 15:04")
		}
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("A%d", row), e.ID)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("B%d", row), e.WorkerID)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("C%d", row), e.JobID)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("D%d", row), e.ClockIn.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("E%d", row), clockOut)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("F%d", row), e.BreakMinutes)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("G%d", row), e.HoursWorked)
		_ = f.SetCellValue(sheetEntries, fmt.Sprintf("H%d", row), e.Status)
	}

	_ = f.SetColWidth(sheetEntries, "A", "A", 30)
	_ = f.SetColWidth(sheetEntries, "B", "C", 15)
	_ = f.SetColWidth(sheetEntries, "D", "E", 20)
	_ = f.SetColWidth(sheetEntries, "F", "H", 12)
}

func writeAlerts(f *excelize.File, alerts []models.ComplianceAlert) {
	headers := []string{"Alert ID", "Type", "Severity", "Worker", "Message", "Acknowledged"}
	writeHeaderRowAt(f, sheetAlerts, headers, 1)

	violationStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})
	warningStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
	})

	for i, a := range alerts {
		row := i + 2
		acked := "No"
		if a.Acknowledged {
			acked = "Yes"
		}
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("A%d", row), a.ID)
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("B%d", row), a.AlertType)
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("C%d", row), a.Severity)
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("D%d", row), a.WorkerID)
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("E%d", row), a.Message)
		_ = f.SetCellValue(sheetAlerts, fmt.Sprintf("F%d", row), acked)

		style := warningStyle
		if a.Severity == models.SeverityViolation {
			style = violationStyle
		}
		_ = f.SetCellStyle(sheetAlerts, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), style)
	}

	_ = f.SetColWidth(sheetAlerts, "A", "A", 40)
	_ = f.SetColWidth(sheetAlerts, "B", "D", 20)
	_ = f.SetColWidth(sheetAlerts, "E", "E", 50)
	_ = f.SetColWidth(sheetAlerts, "F", "F", 14)
}

func writeSummary(f *excelize.File, stats models.ComplianceStats) {
	headers := []string{"Worker", "Hours This Week", "Hourly Rate", "Entries", "Over Weekly Cap"}
	writeHeaderRowAt(f, sheetSummary, headers, 1)

	overStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})

	for i, s := range stats.WorkerSummaries {
		row := i + 2
		over := "No"
		if s.OverWeeklyCap {
			over = "Yes"
		}
		_ = f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", row), s.WorkerID)
		_ = f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), s.HoursThisWeek)
		_ = f.SetCellValue(sheetSummary, fmt.Sprintf("C%d", row), s.HourlyRate)
		_ = f.SetCellValue(sheetSummary, fmt.Sprintf("D%d", row), s.EntryCount)
		_ = f.SetCellValue(sheetSummary, fmt.Sprintf("E%d", row), over)
		if s.OverWeeklyCap {
			_ = f.SetCellStyle(sheetSummary, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), overStyle)
		}
	}

	_ = f.SetColWidth(sheetSummary, "A", "A", 20)
	_ = f.SetColWidth(sheetSummary, "B", "E", 16)
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) {
	writeHeaderRowAt(f, sheet, headers, 2)
}

func writeHeaderRowAt(f *excelize.File, sheet string, headers []string, row int) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}
