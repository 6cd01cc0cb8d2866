package jobs

import (
	"github.com/google/uuid"

	"github.com/fieldops/backend/domain"
)

// MaterialLedger owns material usages. Line totals are derived on every
// write so quantity and price edits can never drift from stored totals.
type MaterialLedger struct{}

// NewMaterialLedger returns the ledger.
func NewMaterialLedger() *MaterialLedger {
	return &MaterialLedger{}
}

// Add records a usage against the job. TotalCost supplied by the caller is
// ignored and recomputed.
func (l *MaterialLedger) Add(job *domain.JobAggregate, usage domain.MaterialUsage) error {
	if job.Status.IsTerminal() {
		return domain.ErrInvalidTransition("add-material", job.Status)
	}
	if usage.Quantity < 0 || usage.CostPerUnit < 0 {
		return domain.ErrInvalidInput
	}
	if usage.ItemRef.IsZero() && usage.SKU == "" && usage.Name == "" {
		return domain.ErrInvalidInput
	}
	switch usage.ChargeTo {
	case domain.ChargeExpense, domain.ChargeCustomer, domain.ChargeInternal:
	case "":
		usage.ChargeTo = domain.ChargeExpense
	default:
		return domain.ErrInvalidInput
	}

	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	usage.ItemRef = usage.ItemRef.Normalized()
	usage.TotalCost = usage.ComputeTotal()

	job.Materials = append(job.Materials, usage)
	return nil
}

// Remove drops a usage by id.
func (l *MaterialLedger) Remove(job *domain.JobAggregate, usageID string) error {
	if job.Status.IsTerminal() {
		return domain.ErrInvalidTransition("remove-material", job.Status)
	}
	for i := range job.Materials {
		if job.Materials[i].ID == usageID {
			job.Materials = append(job.Materials[:i], job.Materials[i+1:]...)
			return nil
		}
	}
	return domain.ErrInvalidInput
}

// RecomputeTotals rewrites every line total from quantity and unit cost.
// Run before any rollup so stored numbers cannot go stale.
func (l *MaterialLedger) RecomputeTotals(job *domain.JobAggregate) {
	for i := range job.Materials {
		job.Materials[i].TotalCost = job.Materials[i].ComputeTotal()
	}
}
