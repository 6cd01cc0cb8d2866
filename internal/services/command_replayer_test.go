package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/internal/infrastructure/buffer"
)

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

type scriptedExecutor struct {
	errs     map[string]error
	executed []string
}

func (e *scriptedExecutor) Execute(ctx context.Context, jobID, name string, args json.RawMessage) (*domain.JobAggregate, bool, error) {
	e.executed = append(e.executed, name)
	return nil, false, e.errs[name]
}

func replayerFixture(t *testing.T, health staticHealth, executor *scriptedExecutor, maxRetries int) (*CommandReplayer, *buffer.Store) {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "commands.db"), "commands")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	replayer := NewCommandReplayer(store, health, executor, nil, ReplayerConfig{
		Interval:   time.Minute,
		BatchSize:  10,
		MaxRetries: maxRetries,
		Retention:  24 * time.Hour,
	})
	return replayer, store
}

func TestDrainReplaysAndPurges(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{}}
	replayer, store := replayerFixture(t, true, executor, 3)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "toggle-checklist"}))
	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "complete-step"}))

	require.NoError(t, replayer.Drain(context.Background()))

	assert.ElementsMatch(t, []string{"toggle-checklist", "complete-step"}, executor.executed)
	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{}}
	replayer, store := replayerFixture(t, false, executor, 3)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "toggle-checklist"}))
	require.NoError(t, replayer.Drain(context.Background()))

	assert.Empty(t, executor.executed)
	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestDrainRequeuesOnOutage(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{
		"complete-step": domain.ErrTimeSourceUnavailable(errors.New("down")),
	}}
	replayer, store := replayerFixture(t, true, executor, 3)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "complete-step"}))
	require.NoError(t, replayer.Drain(context.Background()))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Retries)
}

func TestDrainRequeuesOnVersionConflict(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{
		"toggle-checklist": domain.ErrVersionConflict(3, 4),
	}}
	replayer, store := replayerFixture(t, true, executor, 3)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "toggle-checklist"}))
	require.NoError(t, replayer.Drain(context.Background()))

	// A lost concurrency race clears on its own, so the command stays queued.
	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Retries)
}

func TestDrainDropsAtMaxRetries(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{
		"complete-step": domain.ErrTimeSourceUnavailable(errors.New("down")),
	}}
	replayer, store := replayerFixture(t, true, executor, 2)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "complete-step", Retries: 1}))
	require.NoError(t, replayer.Drain(context.Background()))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestDrainDropsFinalDomainRejections(t *testing.T) {
	executor := &scriptedExecutor{errs: map[string]error{
		"complete-step": domain.ErrInvalidDuration(-5),
	}}
	replayer, store := replayerFixture(t, true, executor, 3)

	require.NoError(t, store.Enqueue(buffer.Command{JobID: "j1", Name: "complete-step"}))
	require.NoError(t, replayer.Drain(context.Background()))

	// A validation rejection can never succeed on retry, so the command is gone.
	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}
