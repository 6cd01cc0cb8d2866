package buffer

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "commands.db"), "commands")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueueAndGetBatch(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Enqueue(Command{
		JobID: "j1",
		Name:  "toggle-checklist",
		Args:  json.RawMessage(`{"step_code":"prep","item_index":0,"checked":true}`),
	}))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "j1", batch[0].JobID)
	assert.Equal(t, "toggle-checklist", batch[0].Name)
	assert.NotEmpty(t, batch[0].ID)
	assert.False(t, batch[0].QueuedAt.IsZero())
}

func TestPerJobOrderingSurvives(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	names := []string{"toggle-checklist", "record-quality", "complete-step"}
	for i, name := range names {
		require.NoError(t, store.Enqueue(Command{
			ID:       name,
			JobID:    "j1",
			Name:     name,
			QueuedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, name := range names {
		assert.Equal(t, name, batch[i].Name)
	}
}

func TestRemove(t *testing.T) {
	store := openTestStore(t)

	cmd := Command{ID: "c1", JobID: "j1", Name: "complete-step", QueuedAt: time.Now()}
	require.NoError(t, store.Enqueue(cmd))

	batch, err := store.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, store.Remove(batch[0]))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRequeueKeepsPositionAndBumpsRetries(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(Command{ID: "c1", JobID: "j1", Name: "complete-step", QueuedAt: base}))
	require.NoError(t, store.Enqueue(Command{ID: "c2", JobID: "j1", Name: "record-quality", QueuedAt: base.Add(time.Second)}))

	batch, err := store.GetBatch(1)
	require.NoError(t, err)
	require.NoError(t, store.Requeue(batch[0]))

	batch, err = store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "c1", batch[0].ID)
	assert.Equal(t, 1, batch[0].Retries)
}

func TestCleanupDropsExpiredCommands(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(Command{ID: "old", JobID: "j1", Name: "complete-step", QueuedAt: base}))
	require.NoError(t, store.Enqueue(Command{ID: "fresh", JobID: "j1", Name: "complete-step", QueuedAt: base.Add(48 * time.Hour)}))

	require.NoError(t, store.Cleanup(base.Add(24*time.Hour)))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "fresh", batch[0].ID)
}
