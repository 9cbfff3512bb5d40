package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"crewclock/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const hoursSheetName = "Hours"

// SheetsService appends weekly hour summaries to a payroll spreadsheet
// owned by a service account.
type SheetsService struct {
	service      *sheets.Service
	hoursSheetID string
}

func NewSheetsService(credentialsFile, hoursSheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:      srv,
		hoursSheetID: hoursSheetID,
	}, nil
}

// TestConnection reads one cell to verify the spreadsheet is shared
// with the service account.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.hoursSheetID, hoursSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the email the spreadsheet must be
// shared with.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendWeeklySummary appends one row per worker for the given week.
func (s *SheetsService) AppendWeeklySummary(ctx context.Context, weekStart time.Time, summaries []models.WorkerSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	var values [][]interface{}
	week := weekStart.Format("2006-01-02")
	for _, sum := range summaries {
		over := "no"
		if sum.OverWeeklyCap {
			over = "yes"
		}
		values = append(values, []interface{}{
			week,
			sum.WorkerID,
			sum.HoursThisWeek,
			sum.HourlyRate,
			sum.EntryCount,
			over,
		})
	}

	valueRange := &sheets.ValueRange{Values: values}
	_, err := s.service.Spreadsheets.Values.Append(s.hoursSheetID, hoursSheetName+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
