package repository

import (
	"context"
	"time"

	"github.com/fieldops/backend/domain"
)

// JobFilter narrows a dispatch-board listing. Zero values mean "any".
type JobFilter struct {
	Tenant       string
	Status       domain.JobStatus
	Source       domain.JobSource
	Priority     domain.JobPriority
	ApartmentRef string
	ServiceRef   string
	ContractRef  string
	EmployeeRef  string
	Query        string
	PlannedFrom  *time.Time
	PlannedTo    *time.Time
	DueFrom      *time.Time
	DueTo        *time.Time
	IsActive     *bool
	Page         int
	Limit        int
}

// JobPage is one page of dispatch-board results.
type JobPage struct {
	Items []domain.JobAggregate `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// JobRepository persists whole aggregates with optimistic concurrency.
// Save replaces the aggregate atomically; it fails with VersionConflict
// when the stored version differs from expectedVersion, and increments the
// version on success. Delete is administrative and bypasses the lifecycle.
type JobRepository interface {
	FindByID(ctx context.Context, id string) (*domain.JobAggregate, error)
	Save(ctx context.Context, job *domain.JobAggregate, expectedVersion int) error
	List(ctx context.Context, filter JobFilter) (*JobPage, error)
	Delete(ctx context.Context, id string) error
}
