package jobs

import (
	"context"

	"github.com/fieldops/backend/domain"
)

// EmployeeSnapshot is what the external directory knows about an employee.
type EmployeeSnapshot struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
}

// EmployeeDirectory resolves employee references. Implementations are remote
// and must respect the context deadline.
type EmployeeDirectory interface {
	Resolve(ctx context.Context, employeeID string) (*EmployeeSnapshot, error)
}

// TimeEntrySource resolves time-entry references to durations in minutes.
type TimeEntrySource interface {
	Durations(ctx context.Context, refs []string) (map[string]int, error)
}

// ContractReader exposes contract pricing and display labels.
type ContractReader interface {
	Price(ctx context.Context, contractID string) (float64, error)
	Label(ctx context.Context, contractID string) (string, error)
}

// EntityReader resolves an external entity reference to a display label.
// Apartments, services and categories all share this shape.
type EntityReader interface {
	Label(ctx context.Context, id string) (string, error)
}

// InvoiceWriter attaches a completed job's finance snapshot to an invoice.
type InvoiceWriter interface {
	Attach(ctx context.Context, jobID string, finance domain.JobFinance) (invoiceRef, lineID string, err error)
}

// BoardCache caches dispatch-board pages. Mutations invalidate per tenant.
type BoardCache interface {
	GetPage(ctx context.Context, key string) ([]byte, bool)
	SetPage(ctx context.Context, tenant, key string, payload []byte) error
	Invalidate(ctx context.Context, tenant string) error
}
