package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/backend/domain"
)

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

type recordingBuffer struct {
	commands []string
	err      error
}

func (b *recordingBuffer) BufferCommand(ctx context.Context, jobID, name string, args []byte) error {
	if b.err != nil {
		return b.err
	}
	b.commands = append(b.commands, jobID+"/"+name)
	return nil
}

func succeed(job *domain.JobAggregate) JobCommandHandler {
	return func(ctx context.Context, jobID string, args json.RawMessage) (*domain.JobAggregate, error) {
		return job, nil
	}
}

func fail(err error) JobCommandHandler {
	return func(ctx context.Context, jobID string, args json.RawMessage) (*domain.JobAggregate, error) {
		return nil, err
	}
}

func TestDispatcherExecutesRegisteredHandler(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	want := &domain.JobAggregate{ID: "j1"}
	d.Register("complete-step", succeed(want), true)

	job, buffered, err := d.Execute(context.Background(), "j1", "complete-step", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, buffered)
	assert.Equal(t, want, job)
}

func TestDispatcherRejectsUnknownCommand(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	_, _, err := d.Execute(context.Background(), "j1", "reticulate", nil)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestDispatcherBuffersIdempotentCommandWhileOffline(t *testing.T) {
	buf := &recordingBuffer{}
	d := NewDispatcher(buf, staticHealth(false), nil)
	d.Register("toggle-checklist", fail(domain.ErrTimeSourceUnavailable(errors.New("conn refused"))), true)

	job, buffered, err := d.Execute(context.Background(), "j1", "toggle-checklist", json.RawMessage(`{"step_code":"prep"}`))
	require.NoError(t, err)
	assert.True(t, buffered)
	assert.Nil(t, job)
	assert.Equal(t, []string{"j1/toggle-checklist"}, buf.commands)
}

func TestDispatcherBuffersRawInfraErrors(t *testing.T) {
	buf := &recordingBuffer{}
	d := NewDispatcher(buf, staticHealth(false), nil)
	d.Register("record-quality", fail(errors.New("dial tcp: connection refused")), true)

	_, buffered, err := d.Execute(context.Background(), "j1", "record-quality", nil)
	require.NoError(t, err)
	assert.True(t, buffered)
}

func TestDispatcherNeverBuffersDomainRejections(t *testing.T) {
	buf := &recordingBuffer{}
	d := NewDispatcher(buf, staticHealth(false), nil)
	d.Register("complete-step", fail(domain.ErrInvalidDuration(-1)), true)

	_, buffered, err := d.Execute(context.Background(), "j1", "complete-step", nil)
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidDuration))
	assert.False(t, buffered)
	assert.Empty(t, buf.commands)
}

func TestDispatcherNeverBuffersLifecycleCommands(t *testing.T) {
	buf := &recordingBuffer{}
	d := NewDispatcher(buf, staticHealth(false), nil)
	infra := errors.New("dial tcp: connection refused")
	d.Register("start", fail(infra), false)

	_, buffered, err := d.Execute(context.Background(), "j1", "start", nil)
	assert.ErrorIs(t, err, infra)
	assert.False(t, buffered)
	assert.Empty(t, buf.commands)
}

func TestDispatcherDoesNotBufferWhileOnline(t *testing.T) {
	buf := &recordingBuffer{}
	d := NewDispatcher(buf, staticHealth(true), nil)
	infra := errors.New("query canceled")
	d.Register("toggle-checklist", fail(infra), true)

	_, buffered, err := d.Execute(context.Background(), "j1", "toggle-checklist", nil)
	assert.ErrorIs(t, err, infra)
	assert.False(t, buffered)
}

func TestDispatcherSurfacesErrorWhenBufferFails(t *testing.T) {
	infra := errors.New("storage down")
	buf := &recordingBuffer{err: errors.New("disk full")}
	d := NewDispatcher(buf, staticHealth(false), nil)
	d.Register("toggle-checklist", fail(infra), true)

	_, buffered, err := d.Execute(context.Background(), "j1", "toggle-checklist", nil)
	assert.ErrorIs(t, err, infra)
	assert.False(t, buffered)
}

func TestDispatcherNames(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	d.Register("start", succeed(nil), false)
	d.Register("pause", succeed(nil), false)

	assert.ElementsMatch(t, []string{"start", "pause"}, d.Names())
}
