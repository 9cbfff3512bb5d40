package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crewclock/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "queue_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := Open(filepath.Join(tempDir, "queue.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestOpen_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "queue_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "queue.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, dbPath)
}

func TestEnqueue_SurvivesReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "queue_test_reopen")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "queue.db")
	ctx := context.Background()

	store, err := Open(dbPath)
	require.NoError(t, err)

	id, err := store.Enqueue(ctx, models.ActionClockIn, models.ClockInPayload{
		WorkerID: "w1",
		ClockIn:  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	actions, err := reopened.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, id, actions[0].ID)
	assert.Equal(t, models.ActionClockIn, actions[0].Kind)
}

func TestEnqueue_RejectsUnknownKind(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Enqueue(context.Background(), "teleport", nil)
	assert.Error(t, err)
}

func TestListUnsynced_OldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	store := setupTestStore(t, WithClock(clock.Now))

	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		id, err := store.Enqueue(ctx, models.ActionClockIn, models.ClockInPayload{WorkerID: "w1"})
		require.NoError(t, err)
		ids = append(ids, id)
		clock.Advance(time.Minute)
	}

	actions, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 4)
	for i, a := range actions {
		assert.Equal(t, ids[i], a.ID)
	}
}

func TestMarkSynced_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.ActionClockOut, models.ClockOutPayload{TimeEntryID: "e1"})
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, id))
	require.NoError(t, store.MarkSynced(ctx, id))

	action, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, action.Synced)

	n, err := store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMarkSynced_UnknownID(t *testing.T) {
	store := setupTestStore(t)

	err := store.MarkSynced(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRewritePayload_OnlyUnsynced(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.ActionBreakEnd, models.BreakEndPayload{BreakID: "local"})
	require.NoError(t, err)

	require.NoError(t, store.RewritePayload(ctx, id, `{"break_id":"srv-1"}`))
	action, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, action.Payload, "srv-1")

	require.NoError(t, store.MarkSynced(ctx, id))
	err = store.RewritePayload(ctx, id, `{"break_id":"srv-2"}`)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneOld_KeepsUnsyncedAndRecent(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now.AddDate(0, 0, -10)}
	store := setupTestStore(t, WithClock(clock.Now))

	ctx := context.Background()

	// Old synced: should be pruned.
	oldSynced, err := store.Enqueue(ctx, models.ActionClockIn, models.ClockInPayload{WorkerID: "w1"})
	require.NoError(t, err)
	require.NoError(t, store.MarkSynced(ctx, oldSynced))

	// Old but unsynced: must survive regardless of age.
	clock.Advance(time.Minute)
	oldUnsynced, err := store.Enqueue(ctx, models.ActionClockIn, models.ClockInPayload{WorkerID: "w2"})
	require.NoError(t, err)

	// Recent synced: inside the retention window.
	clock.t = now.AddDate(0, 0, -2)
	recentSynced, err := store.Enqueue(ctx, models.ActionClockIn, models.ClockInPayload{WorkerID: "w3"})
	require.NoError(t, err)
	require.NoError(t, store.MarkSynced(ctx, recentSynced))

	clock.t = now
	pruned, err := store.PruneOld(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.Get(ctx, oldSynced)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, oldUnsynced)
	assert.NoError(t, err)

	_, err = store.Get(ctx, recentSynced)
	assert.NoError(t, err)
}

func TestCountUnsynced(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	id, err := store.Enqueue(ctx, models.ActionBreakStart, models.BreakStartPayload{TimeEntryID: "e1", BreakType: models.BreakTypeMeal})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, models.ActionBreakEnd, models.BreakEndPayload{BreakID: "b1"})
	require.NoError(t, err)

	n, err = store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.MarkSynced(ctx, id))
	n, err = store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
