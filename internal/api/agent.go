package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crewclock/internal/config"
	"crewclock/internal/domain"
	"crewclock/internal/models"
	syncengine "crewclock/internal/sync"

	"github.com/rs/zerolog"
)

// AgentServer is the on-device surface the field UI talks to. Every
// action lands in the durable queue first; nothing here touches the
// network.
type AgentServer struct {
	cfg     config.AgentConfig
	queue   domain.ActionQueue
	monitor domain.Monitor
	engine  *syncengine.Engine
	logger  zerolog.Logger
	server  *http.Server
}

func NewAgentServer(cfg config.AgentConfig, queue domain.ActionQueue, monitor domain.Monitor, engine *syncengine.Engine, logger *zerolog.Logger) *AgentServer {
	srv := &AgentServer{
		cfg:     cfg,
		queue:   queue,
		monitor: monitor,
		engine:  engine,
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "agent_api").Logger()
	} else {
		srv.logger = zerolog.Nop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/clock-in", srv.handleClockIn)
	mux.HandleFunc("/clock-out", srv.handleClockOut)
	mux.HandleFunc("/break-start", srv.handleBreakStart)
	mux.HandleFunc("/break-end", srv.handleBreakEnd)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/sync", srv.handleSync)
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.ListenPort),
		Handler:           loggingMiddleware(srv.logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (s *AgentServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("agent API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AgentServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *AgentServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *AgentServer) handleClockIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.ClockInPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.CompanyID == "" {
		p.CompanyID = s.cfg.CompanyID
	}
	if p.WorkerID == "" {
		p.WorkerID = s.cfg.WorkerID
	}
	if p.HourlyRate == 0 {
		p.HourlyRate = s.cfg.HourlyRate
	}
	if p.ClockIn.IsZero() {
		p.ClockIn = time.Now()
	}
	if p.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	s.enqueue(w, r.Context(), models.ActionClockIn, p)
}

func (s *AgentServer) handleClockOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.ClockOutPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.TimeEntryID == "" {
		writeError(w, http.StatusBadRequest, "time_entry_id is required")
		return
	}
	if p.ClockOut.IsZero() {
		p.ClockOut = time.Now()
	}

	s.enqueue(w, r.Context(), models.ActionClockOut, p)
}

func (s *AgentServer) handleBreakStart(w http.ResponseWriter, r *http.Request) {
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
		p.BreakStart = time.Now()
	}

	s.enqueue(w, r.Context(), models.ActionBreakStart, p)
}

func (s *AgentServer) handleBreakEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.BreakEndPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.BreakID == "" {
		writeError(w, http.StatusBadRequest, "break_id is required")
		return
	}
	if p.BreakEnd.IsZero() {
		p.BreakEnd = time.Now()
	}

	s.enqueue(w, r.Context(), models.ActionBreakEnd, p)
}

// enqueue persists the action, then kicks a background sync pass when
// the server is reachable. The response never waits on the network.
func (s *AgentServer) enqueue(w http.ResponseWriter, ctx context.Context, kind string, payload any) {
	id, err := s.queue.Enqueue(ctx, kind, payload)
	if err != nil {
		s.logger.Error().Str("kind", kind).Err(err).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to save action on device")
		return
	}

	if s.engine != nil && s.monitor != nil && s.monitor.IsOnline() {
		go func() {
			if _, err := s.engine.SyncToServer(context.Background()); err != nil &&
				!errors.Is(err, syncengine.ErrSyncInProgress) && !errors.Is(err, syncengine.ErrOffline) {
				s.logger.Warn().Err(err).Msg("post-enqueue sync failed")
			}
		}()
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":   id,
		"kind": kind,
	})
}

func (s *AgentServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	unsynced, err := s.queue.CountUnsynced(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("count unsynced failed")
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	resp := map[string]any{
		"online":   s.monitor != nil && s.monitor.IsOnline(),
		"unsynced": unsynced,
	}
	if s.engine != nil {
		lastSyncAt, _ := s.engine.Status()
		if !lastSyncAt.IsZero() {
			resp["last_sync_at"] = lastSyncAt.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *AgentServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "sync engine is not running")
		return
	}

	result, err := s.engine.SyncToServer(r.Context())
	switch {
	case errors.Is(err, syncengine.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	case errors.Is(err, syncengine.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, "server is unreachable")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("manual sync failed")
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}
