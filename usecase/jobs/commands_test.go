package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/usecase"
)

func newCommandFixture(t *testing.T) (*usecase.Dispatcher, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	d := usecase.NewDispatcher(nil, nil, nil)
	RegisterCommands(d, env.engine)
	return d, env
}

func TestRegisterCommandsCoversDispatchSurface(t *testing.T) {
	d, _ := newCommandFixture(t)

	expected := []string{
		"schedule", "start", "pause", "resume", "complete", "cancel",
		"add-assignment", "remove-assignment", "link-time-entries", "recompute-actual-minutes",
		"upsert-step", "toggle-checklist", "record-quality", "complete-step",
		"add-material", "remove-material", "set-deliverables", "attach-invoice",
	}
	assert.ElementsMatch(t, expected, d.Names())
}

func TestCommandsDriveFullLifecycle(t *testing.T) {
	d, env := newCommandFixture(t)
	ctx := context.Background()
	job := env.createJob(t)

	exec := func(name, args string) (*domain.JobAggregate, error) {
		result, buffered, err := d.Execute(ctx, job.ID, name, json.RawMessage(args))
		require.False(t, buffered)
		return result, err
	}

	start := env.clock.Now().Format(time.RFC3339)
	end := env.clock.Now().Add(2 * time.Hour).Format(time.RFC3339)

	_, err := exec("upsert-step", `{"step_code":"prep","definition":{"type":"task","checklist":[{"text":"tools","required":true}]}}`)
	require.NoError(t, err)

	scheduled, err := exec("schedule", fmt.Sprintf(`{"planned_start":%q,"planned_end":%q}`, start, end))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, scheduled.Status)

	_, err = exec("add-assignment", `{"employee_ref":"emp-1","role":"lead","planned_minutes":120}`)
	require.NoError(t, err)

	running, err := exec("start", `{}`)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, running.Status)

	_, err = exec("toggle-checklist", `{"step_code":"prep","item_index":0,"checked":true}`)
	require.NoError(t, err)

	_, err = exec("record-quality", `{"step_code":"prep","key":"pressure","numeric":4.2}`)
	require.NoError(t, err)

	_, err = exec("complete-step", `{"step_code":"prep","elapsed_minutes":45}`)
	require.NoError(t, err)

	_, err = exec("add-material", `{"name":"Filter","quantity":2,"cost_per_unit":12.5,"charge_to":"customer"}`)
	require.NoError(t, err)

	completed, err := exec("complete", `{}`)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.Finance)
	assert.True(t, completed.Finance.Frozen)
	// Ad hoc revenue: 25 of customer materials plus the 49 service fee.
	assert.InDelta(t, 74, completed.Finance.RevenueAmountSnapshot, 1e-9)

	invoiced, err := exec("attach-invoice", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "inv-100", invoiced.Finance.InvoiceRef)
}

func TestCommandsRejectMalformedArgs(t *testing.T) {
	d, env := newCommandFixture(t)
	job := env.createJob(t)

	_, _, err := d.Execute(context.Background(), job.ID, "schedule", json.RawMessage(`{"planned_start":42}`))
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestCommandRefAcceptsObjectForm(t *testing.T) {
	d, env := newCommandFixture(t)
	ctx := context.Background()
	job := env.createJob(t)

	args := `{"employee_ref":{"_id":"emp-1","snapshot":{"name":"stale"}},"role":"member","planned_minutes":30}`
	result, _, err := d.Execute(ctx, job.ID, "add-assignment", json.RawMessage(args))
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	// Snapshots from the wire are stripped before storage.
	assert.Equal(t, "emp-1", result.Assignments[0].EmployeeRef.ID)
	assert.Nil(t, result.Assignments[0].EmployeeRef.Snapshot)
}
