package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crewclock/internal/models"
)

type recordedRequest struct {
	method  string
	path    string
	headers http.Header
	body    map[string]any
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

func TestCreateTimeEntry(t *testing.T) {
	ts, rec := newRecordingServer(t, http.StatusCreated, `{"id":"srv-e1"}`)
	c := NewClient(ts.URL, "key-1", "extra-1")

	id, err := c.CreateTimeEntry(context.Background(), models.ClockInPayload{
		WorkerID: "w1",
		ClockIn:  time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTimeEntry: %v", err)
	}
	if id != "srv-e1" {
		t.Errorf("id = %s, want srv-e1", id)
	}
	if rec.method != http.MethodPost || rec.path != "/api/v1/time-entries" {
		t.Errorf("request = %s %s, want POST /api/v1/time-entries", rec.method, rec.path)
	}
	if rec.headers.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %s", rec.headers.Get("Content-Type"))
	}
	if rec.headers.Get("x-api-key") != "key-1" || rec.headers.Get("x-api-extra") != "extra-1" {
		t.Error("auth headers not set")
	}
	if rec.body["worker_id"] != "w1" {
		t.Errorf("body worker_id = %v, want w1", rec.body["worker_id"])
	}
}

func TestAnonymousClientOmitsAuthHeaders(t *testing.T) {
	ts, rec := newRecordingServer(t, http.StatusCreated, `{"id":"srv-e1"}`)
	c := NewClient(ts.URL, "", "")

	if _, err := c.CreateTimeEntry(context.Background(), models.ClockInPayload{WorkerID: "w1"}); err != nil {
		t.Fatalf("CreateTimeEntry: %v", err)
	}
	if _, ok := rec.headers["X-Api-Key"]; ok {
		t.Error("x-api-key sent without a configured key")
	}
}

func TestCompleteTimeEntryPath(t *testing.T) {
	ts, rec := newRecordingServer(t, http.StatusOK, `{"id":"srv-e1"}`)
	c := NewClient(ts.URL, "key-1", "extra-1")

	err := c.CompleteTimeEntry(context.Background(), models.ClockOutPayload{
		TimeEntryID: "srv-e1",
		ClockOut:    time.Now(),
	})
	if err != nil {
		t.Fatalf("CompleteTimeEntry: %v", err)
	}
	if rec.path != "/api/v1/time-entries/srv-e1/clock-out" {
		t.Errorf("path = %s", rec.path)
	}
}

func TestCreateBreakAndCompleteBreak(t *testing.T) {
	ts, rec := newRecordingServer(t, http.StatusCreated, `{"id":"srv-b1"}`)
	c := NewClient(ts.URL, "key-1", "extra-1")

	id, err := c.CreateBreak(context.Background(), models.BreakStartPayload{
		TimeEntryID: "srv-e1",
		BreakType:   models.BreakTypeMeal,
		BreakStart:  time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateBreak: %v", err)
	}
	if id != "srv-b1" {
		t.Errorf("id = %s, want srv-b1", id)
	}
	if rec.path != "/api/v1/breaks" {
		t.Errorf("path = %s", rec.path)
	}

	if err := c.CompleteBreak(context.Background(), models.BreakEndPayload{BreakID: "srv-b1", BreakEnd: time.Now()}); err != nil {
		t.Fatalf("CompleteBreak: %v", err)
	}
	if rec.path != "/api/v1/breaks/srv-b1/end" {
		t.Errorf("path = %s", rec.path)
	}
}

func TestErrorBodySurfacesInMessage(t *testing.T) {
	ts, _ := newRecordingServer(t, http.StatusNotFound, `{"error":"time entry not found"}`)
	c := NewClient(ts.URL, "key-1", "extra-1")

	err := c.CompleteTimeEntry(context.Background(), models.ClockOutPayload{TimeEntryID: "ghost", ClockOut: time.Now()})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "time entry not found") {
		t.Errorf("error %q does not carry the server message", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not carry the status", err)
	}
}

func TestNonJSONErrorFallsBackToStatus(t *testing.T) {
	ts, _ := newRecordingServer(t, http.StatusBadGateway, "upstream exploded")
	c := NewClient(ts.URL, "key-1", "extra-1")

	err := c.CompleteTimeEntry(context.Background(), models.ClockOutPayload{TimeEntryID: "e1", ClockOut: time.Now()})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not carry the status", err)
	}
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewClient(url, "key-1", "extra-1")
	if _, err := c.CreateTimeEntry(context.Background(), models.ClockInPayload{WorkerID: "w1"}); err == nil {
		t.Fatal("expected error for closed server")
	}
}
