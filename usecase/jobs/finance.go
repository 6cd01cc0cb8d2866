package jobs

import (
	"context"
	"errors"

	"github.com/fieldops/backend/domain"
)

// FinanceRollup derives the billing snapshot from the current aggregate.
// It is recomputed after every mutating command and frozen at completion;
// once an invoice reference is attached the numbers are immutable.
type FinanceRollup struct {
	directory  EmployeeDirectory
	contracts  ContractReader
	serviceFee float64
}

// NewFinanceRollup wires the rate and contract-price collaborators.
// serviceFee is the flat fee added to ad hoc pricing.
func NewFinanceRollup(directory EmployeeDirectory, contracts ContractReader, serviceFee float64) *FinanceRollup {
	return &FinanceRollup{
		directory:  directory,
		contracts:  contracts,
		serviceFee: serviceFee,
	}
}

// Recompute rewrites the snapshot from line items and external rates. A
// frozen snapshot is left untouched.
func (r *FinanceRollup) Recompute(ctx context.Context, job *domain.JobAggregate) error {
	if job.Finance == nil {
		job.Finance = &domain.JobFinance{Billable: true}
	}
	if job.Finance.Frozen || job.Finance.Invoiced() {
		return nil
	}

	materialCost := job.MaterialCostTotal()

	laborCost, err := r.laborCost(ctx, job)
	if err != nil {
		return err
	}

	revenue, err := r.revenue(ctx, job)
	if err != nil {
		return err
	}

	job.Finance.MaterialCostSnapshot = materialCost
	job.Finance.LaborCostSnapshot = laborCost
	job.Finance.RevenueAmountSnapshot = revenue
	return nil
}

// Freeze recomputes once more and then locks the snapshot. Called by the
// complete() transition.
func (r *FinanceRollup) Freeze(ctx context.Context, job *domain.JobAggregate) error {
	if err := r.Recompute(ctx, job); err != nil {
		return err
	}
	job.Finance.Frozen = true
	return nil
}

// AttachInvoice records the invoice reference. Only a frozen snapshot can be
// invoiced, and only once.
func (r *FinanceRollup) AttachInvoice(job *domain.JobAggregate, invoiceRef, lineID string) error {
	if job.Finance == nil || !job.Finance.Frozen {
		return domain.ErrInvalidTransition("attach-invoice", job.Status)
	}
	if job.Finance.Invoiced() {
		return domain.ErrFinanceFrozen(job.Finance.InvoiceRef)
	}
	job.Finance.InvoiceRef = invoiceRef
	job.Finance.InvoiceLineID = lineID
	return nil
}

func (r *FinanceRollup) laborCost(ctx context.Context, job *domain.JobAggregate) (float64, error) {
	var total float64
	for i := range job.Assignments {
		a := &job.Assignments[i]
		if a.ActualMinutes == 0 {
			continue
		}
		snapshot, err := r.directory.Resolve(ctx, a.EmployeeRef.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, domain.ErrExternalLookupTimeout("rate table", err)
			}
			return 0, domain.WrapError(domain.ErrCodeUnavailable, domain.ReasonExternalLookupTimeout,
				"rate lookup failed", err)
		}
		if snapshot == nil {
			return 0, domain.ErrUnknownEmployee(a.EmployeeRef.ID)
		}
		total += float64(a.ActualMinutes) / 60 * snapshot.HourlyRate
	}
	return total, nil
}

func (r *FinanceRollup) revenue(ctx context.Context, job *domain.JobAggregate) (float64, error) {
	if !job.ContractRef.IsZero() {
		price, err := r.contracts.Price(ctx, job.ContractRef.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, domain.ErrExternalLookupTimeout("contract reader", err)
			}
			return 0, domain.WrapError(domain.ErrCodeUnavailable, domain.ReasonExternalLookupTimeout,
				"contract price lookup failed", err)
		}
		return price, nil
	}
	// Ad hoc pricing: customer-chargeable materials plus the flat fee.
	return job.CustomerChargeableTotal() + r.serviceFee, nil
}
