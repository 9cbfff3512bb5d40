package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crewclock/internal/compliance"
	"crewclock/internal/config"
	"crewclock/internal/database"
	"crewclock/internal/domain"
	"crewclock/internal/export"
	"crewclock/internal/models"

	"github.com/rs/zerolog"
)

// HTTPServer is the company-side API: attendance ingest (the remote
// store surface the agents replay against) plus the compliance
// reporting surface.
type HTTPServer struct {
	cfg       config.APIConfig
	db        *database.DB
	calc      *compliance.Calculator
	acks      domain.AckRepository
	companyID string
	logger    zerolog.Logger
	server    *http.Server
	auth      *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, db *database.DB, calc *compliance.Calculator, acks domain.AckRepository, companyID string, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		db:        db,
		calc:      calc,
		acks:      acks,
		companyID: companyID,
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "api").Logger()
	} else {
		srv.logger = zerolog.Nop()
	}
	srv.auth = NewHTTPAuth(cfg)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/time-entries", srv.handleCreateTimeEntry)
	apiMux.HandleFunc("/api/v1/time-entries/", srv.handleTimeEntryAction)
	apiMux.HandleFunc("/api/v1/breaks", srv.handleCreateBreak)
	apiMux.HandleFunc("/api/v1/breaks/", srv.handleBreakAction)
	apiMux.HandleFunc("/api/v1/compliance/report", srv.handleComplianceReport)
	apiMux.HandleFunc("/api/v1/compliance/report/export", srv.handleComplianceExport)
	apiMux.HandleFunc("/api/v1/compliance/alerts/", srv.handleAlertAction)

	// Health stays outside auth: it is the agents' connectivity probe.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/api/", srv.auth.Wrap(apiMux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           loggingMiddleware(srv.logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("company API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.ClockInPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	if p.ClockIn.IsZero() {
		writeError(w, http.StatusBadRequest, "clock_in is required")
		return
	}
	if p.CompanyID == "" {
		p.CompanyID = s.companyID
	}

	id, err := s.db.InsertTimeEntry(r.Context(), p)
	if err != nil {
		s.logger.Error().Err(err).Msg("insert time entry failed")
		writeError(w, http.StatusInternalServerError, "failed to create time entry")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleTimeEntryAction routes /api/v1/time-entries/{id}/clock-out and
// /api/v1/time-entries/{id}/status.
func (s *HTTPServer) handleTimeEntryAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := splitAction(r.URL.Path, "/api/v1/time-entries/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "clock-out":
		var p models.ClockOutPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if p.ClockOut.IsZero() {
			writeError(w, http.StatusBadRequest, "clock_out is required")
			return
		}
		p.TimeEntryID = id
		if err := s.db.CompleteTimeEntry(r.Context(), p); err != nil {
			s.writeStoreError(w, err, "complete time entry")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	case "status":
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.Status != models.EntryStatusActive && body.Status != models.EntryStatusCompleted && body.Status != models.EntryStatusEdited {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if err := s.db.SetTimeEntryStatus(r.Context(), id, body.Status); err != nil {
			s.writeStoreError(w, err, "set time entry status")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleCreateBreak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.BreakStartPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.TimeEntryID == "" {
		writeError(w, http.StatusBadRequest, "time_entry_id is required")
		return
	}
	if !models.ValidBreakType(p.BreakType) {
		writeError(w, http.StatusBadRequest, "break_type must be meal or rest")
		return
	}
	if p.BreakStart.IsZero() {
		writeError(w, http.StatusBadRequest, "break_start is required")
		return
	}

	id, err := s.db.InsertBreak(r.Context(), p)
	if err != nil {
		s.writeStoreError(w, err, "insert break")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *HTTPServer) handleBreakAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := splitAction(r.URL.Path, "/api/v1/breaks/")
	if !ok || action != "end" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var p models.BreakEndPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.BreakEnd.IsZero() {
		writeError(w, http.StatusBadRequest, "break_end is required")
		return
	}
	p.BreakID = id
	if err := s.db.CompleteBreak(r.Context(), p); err != nil {
		s.writeStoreError(w, err, "complete break")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *HTTPServer) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, ok := s.computeReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleComplianceExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, ok := s.computeReport(w, r)
	if !ok {
		return
	}

	file, err := export.BuildReportFile(report, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("build report export failed")
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="compliance_report.xlsx"`)
	if err := file.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("write report export failed")
	}
}

func (s *HTTPServer) computeReport(w http.ResponseWriter, r *http.Request) (*compliance.Report, bool) {
	rng := strings.TrimSpace(r.URL.Query().Get("range"))
	if rng == "" {
		rng = models.RangeWeek
	}
	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if companyID == "" {
		companyID = s.companyID
	}

	report, err := s.calc.Report(r.Context(), companyID, rng)
	if err != nil {
		if strings.Contains(err.Error(), "unknown range") {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		s.logger.Error().Err(err).Msg("compliance report failed")
		writeError(w, http.StatusInternalServerError, "failed to compute report")
		return nil, false
	}
	return report, true
}

// handleAlertAction routes /api/v1/compliance/alerts/{id}/ack, the
// only mutation the reporting surface performs.
func (s *HTTPServer) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := splitAction(r.URL.Path, "/api/v1/compliance/alerts/")
	if !ok || action != "ack" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := s.acks.Acknowledge(r.Context(), id, time.Now()); err != nil {
		s.logger.Error().Str("alert_id", id).Err(err).Msg("acknowledge failed")
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

func (s *HTTPServer) writeStoreError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg(op + " failed")
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// splitAction parses "{prefix}{id}/{action}" paths.
func splitAction(path, prefix string) (id, action string, ok bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
