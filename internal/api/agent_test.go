package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"crewclock/internal/config"
	"crewclock/internal/models"
	"crewclock/internal/queue"
	syncengine "crewclock/internal/sync"
)

type stubRemote struct {
	entries int
	breaks  int
}

func (r *stubRemote) CreateTimeEntry(ctx context.Context, p models.ClockInPayload) (string, error) {
	r.entries++
	return "srv-entry-1", nil
}

func (r *stubRemote) CompleteTimeEntry(ctx context.Context, p models.ClockOutPayload) error {
	return nil
}

func (r *stubRemote) CreateBreak(ctx context.Context, p models.BreakStartPayload) (string, error) {
	r.breaks++
	return "srv-break-1", nil
}

func (r *stubRemote) CompleteBreak(ctx context.Context, p models.BreakEndPayload) error {
	return nil
}

type stubMonitor struct{ online bool }

func (m *stubMonitor) IsOnline() bool { return m.online }

func (m *stubMonitor) Subscribe(onOnline, onOffline func()) func() { return func() {} }

type agentFixture struct {
	ts      *httptest.Server
	queue   *queue.Store
	monitor *stubMonitor
	remote  *stubRemote
}

func setupAgent(t *testing.T) *agentFixture {
	t.Helper()

	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	monitor := &stubMonitor{online: false}
	remote := &stubRemote{}
	engine := syncengine.New(q, remote, monitor, nil)

	srv := NewAgentServer(config.AgentConfig{
		CompanyID:  "c1",
		WorkerID:   "w1",
		HourlyRate: 28.5,
	}, q, monitor, engine, nil)

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	return &agentFixture{ts: ts, queue: q, monitor: monitor, remote: remote}
}

func (f *agentFixture) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	resp, err := f.ts.Client().Post(f.ts.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestAgentClockInQueuesWhileOffline(t *testing.T) {
	f := setupAgent(t)

	resp, body := f.post(t, "/clock-in", models.ClockInPayload{JobID: "j1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["kind"] != models.ActionClockIn {
		t.Errorf("kind = %v, want %s", body["kind"], models.ActionClockIn)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("response has no queue id")
	}

	actions, err := f.queue.ListUnsynced(context.Background())
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("unsynced = %d, want 1", len(actions))
	}
	if actions[0].ID != id {
		t.Errorf("queued id = %s, want %s", actions[0].ID, id)
	}

	// Config defaults fill in whatever the UI omitted.
	var p models.ClockInPayload
	if err := json.Unmarshal([]byte(actions[0].Payload), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.WorkerID != "w1" || p.CompanyID != "c1" || p.HourlyRate != 28.5 {
		t.Errorf("defaults not applied: %+v", p)
	}
	if p.ClockIn.IsZero() {
		t.Error("clock_in was not defaulted to now")
	}

	if f.remote.entries != 0 {
		t.Errorf("offline enqueue reached the server: %d calls", f.remote.entries)
	}
}

func TestAgentClockOutRequiresEntryID(t *testing.T) {
	f := setupAgent(t)

	resp, _ := f.post(t, "/clock-out", models.ClockOutPayload{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAgentBreakStartRejectsBadType(t *testing.T) {
	f := setupAgent(t)

	resp, _ := f.post(t, "/break-start", models.BreakStartPayload{TimeEntryID: "e1", BreakType: "nap"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAgentBreakEndRequiresBreakID(t *testing.T) {
	f := setupAgent(t)

	resp, _ := f.post(t, "/break-end", models.BreakEndPayload{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAgentStatus(t *testing.T) {
	f := setupAgent(t)
	f.post(t, "/clock-in", models.ClockInPayload{})

	resp, err := f.ts.Client().Get(f.ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["online"] != false {
		t.Errorf("online = %v, want false", body["online"])
	}
	if body["unsynced"] != float64(1) {
		t.Errorf("unsynced = %v, want 1", body["unsynced"])
	}
	if _, ok := body["last_sync_at"]; ok {
		t.Error("last_sync_at set before any sync pass")
	}
}

func TestAgentManualSyncOffline(t *testing.T) {
	f := setupAgent(t)

	resp, _ := f.post(t, "/sync", struct{}{})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAgentManualSyncDrainsQueue(t *testing.T) {
	f := setupAgent(t)

	f.post(t, "/clock-in", models.ClockInPayload{})
	f.monitor.online = true

	resp, body := f.post(t, "/sync", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["succeeded"] != float64(1) {
		t.Errorf("succeeded = %v, want 1", body["succeeded"])
	}
	if body["failed"] != float64(0) {
		t.Errorf("failed = %v, want 0", body["failed"])
	}
	if f.remote.entries != 1 {
		t.Errorf("server saw %d entries, want 1", f.remote.entries)
	}

	n, err := f.queue.CountUnsynced(context.Background())
	if err != nil {
		t.Fatalf("count unsynced: %v", err)
	}
	if n != 0 {
		t.Errorf("unsynced after sync = %d, want 0", n)
	}
}

func TestAgentOnlineEnqueueKicksSync(t *testing.T) {
	f := setupAgent(t)
	f.monitor.online = true

	f.post(t, "/clock-in", models.ClockInPayload{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := f.queue.CountUnsynced(context.Background())
		if err != nil {
			t.Fatalf("count unsynced: %v", err)
		}
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background sync never drained the queue")
}
