package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/backend/domain"
)

func financeFixtures() (*FinanceRollup, *fakeDirectory, *fakeContracts) {
	directory := &fakeDirectory{employees: map[string]*EmployeeSnapshot{
		"emp-1": {ID: "emp-1", Name: "Dana", HourlyRate: 60},
	}}
	contracts := &fakeContracts{prices: map[string]float64{"c-1": 500}}
	return NewFinanceRollup(directory, contracts, 49), directory, contracts
}

func TestRecomputeAdHocPricing(t *testing.T) {
	rollup, _, _ := financeFixtures()
	job := &domain.JobAggregate{
		Status: domain.StatusInProgress,
		Materials: []domain.MaterialUsage{
			{Quantity: 2, CostPerUnit: 15, ChargeTo: domain.ChargeCustomer},
			{Quantity: 1, CostPerUnit: 80, ChargeTo: domain.ChargeExpense},
		},
		Assignments: []domain.Assignment{
			{EmployeeRef: domain.Ref{ID: "emp-1"}, Role: domain.RoleLead, ActualMinutes: 90},
		},
	}

	require.NoError(t, rollup.Recompute(context.Background(), job))
	require.NotNil(t, job.Finance)

	assert.InDelta(t, 110, job.Finance.MaterialCostSnapshot, 1e-9)
	// 90 minutes at 60/h.
	assert.InDelta(t, 90, job.Finance.LaborCostSnapshot, 1e-9)
	// Customer-chargeable materials plus the flat service fee.
	assert.InDelta(t, 30+49, job.Finance.RevenueAmountSnapshot, 1e-9)
}

func TestRecomputeContractPriceWins(t *testing.T) {
	rollup, _, _ := financeFixtures()
	job := &domain.JobAggregate{
		Status:      domain.StatusInProgress,
		ContractRef: domain.Ref{ID: "c-1"},
		Materials: []domain.MaterialUsage{
			{Quantity: 4, CostPerUnit: 25, ChargeTo: domain.ChargeCustomer},
		},
	}

	require.NoError(t, rollup.Recompute(context.Background(), job))
	assert.InDelta(t, 500, job.Finance.RevenueAmountSnapshot, 1e-9)
}

func TestRecomputeSkipsFrozenSnapshot(t *testing.T) {
	rollup, _, _ := financeFixtures()
	job := &domain.JobAggregate{
		Status: domain.StatusCompleted,
		Finance: &domain.JobFinance{
			Billable:              true,
			Frozen:                true,
			RevenueAmountSnapshot: 321,
		},
		Materials: []domain.MaterialUsage{
			{Quantity: 10, CostPerUnit: 10, ChargeTo: domain.ChargeCustomer},
		},
	}

	require.NoError(t, rollup.Recompute(context.Background(), job))
	assert.InDelta(t, 321, job.Finance.RevenueAmountSnapshot, 1e-9)
	assert.Zero(t, job.Finance.MaterialCostSnapshot)
}

func TestFreezeLocksSnapshot(t *testing.T) {
	rollup, _, _ := financeFixtures()
	job := &domain.JobAggregate{
		Status: domain.StatusInProgress,
		Materials: []domain.MaterialUsage{
			{Quantity: 1, CostPerUnit: 10, ChargeTo: domain.ChargeCustomer},
		},
	}

	require.NoError(t, rollup.Freeze(context.Background(), job))
	assert.True(t, job.Finance.Frozen)
	before := job.Finance.RevenueAmountSnapshot

	job.Materials = append(job.Materials, domain.MaterialUsage{
		Quantity: 100, CostPerUnit: 100, ChargeTo: domain.ChargeCustomer,
	})
	require.NoError(t, rollup.Recompute(context.Background(), job))
	assert.InDelta(t, before, job.Finance.RevenueAmountSnapshot, 1e-9)
}

func TestAttachInvoiceRules(t *testing.T) {
	rollup, _, _ := financeFixtures()

	unfrozen := &domain.JobAggregate{
		Status:  domain.StatusCompleted,
		Finance: &domain.JobFinance{Billable: true},
	}
	err := rollup.AttachInvoice(unfrozen, "inv-1", "line-1")
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidTransition))

	job := &domain.JobAggregate{
		Status:  domain.StatusCompleted,
		Finance: &domain.JobFinance{Billable: true, Frozen: true},
	}
	require.NoError(t, rollup.AttachInvoice(job, "inv-1", "line-1"))
	assert.Equal(t, "inv-1", job.Finance.InvoiceRef)

	err = rollup.AttachInvoice(job, "inv-2", "line-2")
	assert.True(t, domain.HasReason(err, domain.ReasonFinanceFrozen))
	assert.Equal(t, "inv-1", job.Finance.InvoiceRef)
}

func TestLaborCostUnknownRate(t *testing.T) {
	rollup, _, _ := financeFixtures()
	job := &domain.JobAggregate{
		Status: domain.StatusInProgress,
		Assignments: []domain.Assignment{
			{EmployeeRef: domain.Ref{ID: "ghost"}, Role: domain.RoleLead, ActualMinutes: 30},
		},
	}

	err := rollup.Recompute(context.Background(), job)
	assert.Error(t, err)
}
