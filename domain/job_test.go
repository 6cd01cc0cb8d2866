package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationMinutesExcludesPauses(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	paused := t0.Add(30 * time.Minute)
	resumed := t0.Add(45 * time.Minute)

	job := &JobAggregate{
		Status: StatusInProgress,
		Schedule: Schedule{
			StartedAt:      &t0,
			PausedAt:       &paused,
			ResumedAt:      &resumed,
			AccruedMinutes: 30,
		},
	}

	// 30 accrued before the pause plus 15 in the open interval.
	now := t0.Add(60 * time.Minute)
	assert.Equal(t, 45, job.DurationMinutes(now))
}

func TestDurationMinutesWhilePaused(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	paused := t0.Add(20 * time.Minute)

	job := &JobAggregate{
		Status: StatusPaused,
		Schedule: Schedule{
			StartedAt:      &t0,
			PausedAt:       &paused,
			AccruedMinutes: 20,
		},
	}

	// The clock does not run while paused.
	assert.Equal(t, 20, job.DurationMinutes(t0.Add(3*time.Hour)))
}

func TestOpenIntervalStart(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	paused := t0.Add(10 * time.Minute)
	resumed := t0.Add(25 * time.Minute)

	t.Run("not started", func(t *testing.T) {
		s := &Schedule{}
		assert.Nil(t, s.OpenIntervalStart())
	})

	t.Run("running since start", func(t *testing.T) {
		s := &Schedule{StartedAt: &t0}
		require.NotNil(t, s.OpenIntervalStart())
		assert.Equal(t, t0, *s.OpenIntervalStart())
	})

	t.Run("paused", func(t *testing.T) {
		s := &Schedule{StartedAt: &t0, PausedAt: &paused}
		assert.Nil(t, s.OpenIntervalStart())
	})

	t.Run("resumed", func(t *testing.T) {
		s := &Schedule{StartedAt: &t0, PausedAt: &paused, ResumedAt: &resumed}
		require.NotNil(t, s.OpenIntervalStart())
		assert.Equal(t, resumed, *s.OpenIntervalStart())
	})

	t.Run("resumed at the pause instant", func(t *testing.T) {
		s := &Schedule{StartedAt: &t0, PausedAt: &paused, ResumedAt: &paused}
		require.NotNil(t, s.OpenIntervalStart())
		assert.Equal(t, paused, *s.OpenIntervalStart())
	})
}

func TestIncompleteStepCodes(t *testing.T) {
	job := &JobAggregate{
		Steps: []StepResult{
			{StepCode: "prep", Completed: true},
			{StepCode: "install", Completed: false},
			{
				StepCode:  "inspect",
				Completed: true,
				Checklist: []ChecklistItem{
					{Text: "seals", Required: true, Checked: false},
				},
			},
		},
	}

	assert.Equal(t, []string{"install", "inspect"}, job.IncompleteStepCodes())
}

func TestMaterialTotals(t *testing.T) {
	job := &JobAggregate{
		Materials: []MaterialUsage{
			{Quantity: 2, CostPerUnit: 10, ChargeTo: ChargeExpense},
			{Quantity: 3, CostPerUnit: 5, ChargeTo: ChargeCustomer},
			{Quantity: 1, CostPerUnit: 7.5, ChargeTo: ChargeCustomer},
		},
	}

	assert.InDelta(t, 42.5, job.MaterialCostTotal(), 1e-9)
	assert.InDelta(t, 22.5, job.CustomerChargeableTotal(), 1e-9)
}

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 3, PriorityCritical.Rank())
	assert.Equal(t, 2, PriorityHigh.Rank())
	assert.Equal(t, 1, PriorityNormal.Rank())
	assert.Equal(t, 0, PriorityLow.Rank())
	assert.Equal(t, 0, JobPriority("bogus").Rank())
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusDraft.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestLeadAndFindAssignment(t *testing.T) {
	job := &JobAggregate{
		Assignments: []Assignment{
			{EmployeeRef: Ref{ID: "e1"}, Role: RoleMember},
			{EmployeeRef: Ref{ID: "e2"}, Role: RoleLead},
		},
	}

	lead := job.Lead()
	require.NotNil(t, lead)
	assert.Equal(t, "e2", lead.EmployeeRef.ID)

	assert.NotNil(t, job.FindAssignment("e1"))
	assert.Nil(t, job.FindAssignment("nobody"))
}
