package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crewclock/internal/compliance"
	"crewclock/internal/config"
	"crewclock/internal/database"
	"crewclock/internal/models"
	"crewclock/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAgentKey   = "agent-key"
	testAgentExtra = "agent-extra"
	testAdminKey   = "admin-key"
	testAdminExtra = "admin-extra"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: testAgentKey, Extra: testAgentExtra, Name: "agent", Permissions: []string{permWriteAttendance}},
				{Key: testAdminKey, Extra: testAdminExtra, Name: "admin", Permissions: []string{permWriteAttendance, permReadCompliance, permAckAlerts}},
			},
		},
	}
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "api_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := database.NewDB(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	acks := repository.NewMemoryAckRepository()
	calc := compliance.NewCalculator(db, acks, compliance.DefaultRules(), nil)
	srv := NewHTTPServer(testAPIConfig(), db, calc, acks, "c1", nil)

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, key, extra string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
		req.Header.Set("x-api-extra", extra)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	ts := setupServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/time-entries", "", "", models.ClockInPayload{WorkerID: "w1", ClockIn: time.Now()})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/time-entries", testAgentKey, "wrong-extra", models.ClockInPayload{WorkerID: "w1", ClockIn: time.Now()})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentKeyCannotReadCompliance(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/api/v1/compliance/report?range=today", testAgentKey, testAgentExtra, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAttendanceLifecycle(t *testing.T) {
	ts := setupServer(t)
	clockIn := time.Now().Add(-9 * time.Hour)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/time-entries", testAgentKey, testAgentExtra, models.ClockInPayload{
		WorkerID: "w1",
		JobID:    "j1",
		ClockIn:  clockIn,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entryID, _ := body["id"].(string)
	require.NotEmpty(t, entryID)

	resp, body = doJSON(t, ts, http.MethodPost, "/api/v1/breaks", testAgentKey, testAgentExtra, models.BreakStartPayload{
		TimeEntryID: entryID,
		BreakType:   models.BreakTypeMeal,
		BreakStart:  clockIn.Add(4 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	breakID, _ := body["id"].(string)
	require.NotEmpty(t, breakID)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/breaks/"+breakID+"/end", testAgentKey, testAgentExtra, models.BreakEndPayload{
		BreakEnd: clockIn.Add(4*time.Hour + 30*time.Minute),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/time-entries/"+entryID+"/clock-out", testAgentKey, testAgentExtra, models.ClockOutPayload{
		ClockOut:     clockIn.Add(9 * time.Hour),
		BreakMinutes: 30,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBreakForUnknownEntryIs404(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/breaks", testAgentKey, testAgentExtra, models.BreakStartPayload{
		TimeEntryID: "not-synced-yet",
		BreakType:   models.BreakTypeRest,
		BreakStart:  time.Now(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestComplianceReportAndAck(t *testing.T) {
	ts := setupServer(t)

	// Keep the shift inside the current work week regardless of when
	// the test runs, so a week-range report always sees it.
	clockIn := time.Now().Add(-10 * time.Hour)
	if ws := compliance.WeekStart(time.Now()); clockIn.Before(ws) {
		clockIn = ws
	}

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/time-entries", testAgentKey, testAgentExtra, models.ClockInPayload{
		WorkerID: "w1",
		ClockIn:  clockIn,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entryID := body["id"].(string)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/time-entries/"+entryID+"/clock-out", testAgentKey, testAgentExtra, models.ClockOutPayload{
		ClockOut:        clockIn.Add(9 * time.Hour),
		MissedMealBreak: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, report := doJSON(t, ts, http.MethodGet, "/api/v1/compliance/report?range=week", testAdminKey, testAdminExtra, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	alerts, ok := report["alerts"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, alerts)
	first := alerts[0].(map[string]any)
	alertID := first["id"].(string)

	resp, ackBody := doJSON(t, ts, http.MethodPost, "/api/v1/compliance/alerts/"+alertID+"/ack", testAdminKey, testAdminExtra, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, ackBody["acknowledged"])

	resp, report = doJSON(t, ts, http.MethodGet, "/api/v1/compliance/report?range=week", testAdminKey, testAdminExtra, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alerts = report["alerts"].([]any)
	var found bool
	for _, a := range alerts {
		m := a.(map[string]any)
		if m["id"] == alertID {
			found = true
			assert.Equal(t, true, m["acknowledged"])
		}
	}
	assert.True(t, found)
}

func TestComplianceReportBadRange(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/api/v1/compliance/report?range=quarter", testAdminKey, testAdminExtra, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestComplianceExport(t *testing.T) {
	ts := setupServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/compliance/report/export?range=week", nil)
	require.NoError(t, err)
	req.Header.Set("x-api-key", testAdminKey)
	req.Header.Set("x-api-extra", testAdminExtra)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}

	tempDir, err := os.MkdirTemp("", "api_test_rl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := database.NewDB(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	acks := repository.NewMemoryAckRepository()
	calc := compliance.NewCalculator(db, acks, compliance.DefaultRules(), nil)
	srv := NewHTTPServer(cfg, db, calc, acks, "c1", nil)

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, ts, http.MethodGet, "/api/v1/compliance/report?range=today", testAdminKey, testAdminExtra, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestSplitAction(t *testing.T) {
	id, action, ok := splitAction("/api/v1/breaks/b-1/end", "/api/v1/breaks/")
	require.True(t, ok)
	assert.Equal(t, "b-1", id)
	assert.Equal(t, "end", action)

	_, _, ok = splitAction("/api/v1/breaks/b-1", "/api/v1/breaks/")
	assert.False(t, ok)

	_, _, ok = splitAction("/api/v1/breaks//end", "/api/v1/breaks/")
	assert.False(t, ok)
}
