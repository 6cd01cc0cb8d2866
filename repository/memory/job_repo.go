package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/repository"
)

type jobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobAggregate
}

// NewJobRepository returns an in-memory JobRepository. It backs unit tests
// and single-node deployments; semantics match the Postgres implementation,
// including version checking.
func NewJobRepository() repository.JobRepository {
	return &jobRepository{jobs: make(map[string]*domain.JobAggregate)}
}

func (r *jobRepository) FindByID(ctx context.Context, id string) (*domain.JobAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return clone(job), nil
}

func (r *jobRepository) Save(ctx context.Context, job *domain.JobAggregate, expectedVersion int) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobs[job.ID]
	if !exists {
		if expectedVersion != 0 {
			return domain.ErrVersionConflict(expectedVersion, 0)
		}
		// Codes are unique per tenant, like the jobs table constraint.
		for _, other := range r.jobs {
			if other.Tenant == job.Tenant && other.Code == job.Code {
				return domain.ErrDuplicateCode(job.Code)
			}
		}
		job.Version = 1
		r.jobs[job.ID] = clone(job)
		return nil
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict(expectedVersion, stored.Version)
	}
	job.Version = expectedVersion + 1
	r.jobs[job.ID] = clone(job)
	return nil
}

func (r *jobRepository) List(ctx context.Context, filter repository.JobFilter) (*repository.JobPage, error) {
	r.mu.RLock()
	matched := make([]*domain.JobAggregate, 0, len(r.jobs))
	for _, job := range r.jobs {
		if matches(job, filter) {
			matched = append(matched, clone(job))
		}
	}
	r.mu.RUnlock()

	sortForBoard(matched)

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]domain.JobAggregate, 0, end-start)
	for _, job := range matched[start:end] {
		items = append(items, *job)
	}
	return &repository.JobPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

// sortForBoard orders by due date ascending with nulls last, then priority
// descending, then creation time, with id as the stable tiebreak.
func sortForBoard(jobs []*domain.JobAggregate) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		ad, bd := a.Schedule.DueAt, b.Schedule.DueAt
		switch {
		case ad != nil && bd == nil:
			return true
		case ad == nil && bd != nil:
			return false
		case ad != nil && bd != nil && !ad.Equal(*bd):
			return ad.Before(*bd)
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func matches(job *domain.JobAggregate, f repository.JobFilter) bool {
	if f.Tenant != "" && job.Tenant != f.Tenant {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Source != "" && job.Source != f.Source {
		return false
	}
	if f.Priority != "" && job.Priority != f.Priority {
		return false
	}
	if f.ApartmentRef != "" && job.ApartmentRef.ID != f.ApartmentRef {
		return false
	}
	if f.ServiceRef != "" && job.ServiceRef.ID != f.ServiceRef {
		return false
	}
	if f.ContractRef != "" && job.ContractRef.ID != f.ContractRef {
		return false
	}
	if f.EmployeeRef != "" && job.FindAssignment(f.EmployeeRef) == nil {
		return false
	}
	if f.IsActive != nil && job.IsActive != *f.IsActive {
		return false
	}
	if f.Query != "" && !matchesQuery(job, f.Query) {
		return false
	}
	if f.PlannedFrom != nil && (job.Schedule.PlannedStart == nil || job.Schedule.PlannedStart.Before(*f.PlannedFrom)) {
		return false
	}
	if f.PlannedTo != nil && (job.Schedule.PlannedStart == nil || job.Schedule.PlannedStart.After(*f.PlannedTo)) {
		return false
	}
	if f.DueFrom != nil && (job.Schedule.DueAt == nil || job.Schedule.DueAt.Before(*f.DueFrom)) {
		return false
	}
	if f.DueTo != nil && (job.Schedule.DueAt == nil || job.Schedule.DueAt.After(*f.DueTo)) {
		return false
	}
	return true
}

func matchesQuery(job *domain.JobAggregate, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(job.Code), q) {
		return true
	}
	for _, title := range job.Title {
		if strings.Contains(strings.ToLower(title), q) {
			return true
		}
	}
	return false
}

func clone(job *domain.JobAggregate) *domain.JobAggregate {
	raw, _ := json.Marshal(job)
	var copied domain.JobAggregate
	_ = json.Unmarshal(raw, &copied)
	return &copied
}
