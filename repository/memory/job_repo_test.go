package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/repository"
)

func newJob(id, tenant string) *domain.JobAggregate {
	job := &domain.JobAggregate{
		ID:       id,
		Tenant:   tenant,
		Code:     "JOB-" + id,
		Status:   domain.StatusDraft,
		Priority: domain.PriorityNormal,
		IsActive: true,
	}
	job.Touch()
	return job
}

func TestSaveInsertAndVersioning(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	job := newJob("j1", "acme")

	require.NoError(t, repo.Save(ctx, job, 0))
	assert.Equal(t, 1, job.Version)

	stored, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)

	stored.Status = domain.StatusScheduled
	require.NoError(t, repo.Save(ctx, stored, 1))
	assert.Equal(t, 2, stored.Version)
}

func TestSaveRejectsDuplicateCodePerTenant(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newJob("j1", "acme"), 0))

	dup := newJob("j2", "acme")
	dup.Code = "JOB-j1"
	err := repo.Save(ctx, dup, 0)
	require.True(t, domain.HasReason(err, domain.ReasonDuplicateCode))
	var dErr *domain.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "JOB-j1", dErr.Details["code"])

	// Another tenant may reuse the code.
	other := newJob("j3", "globex")
	other.Code = "JOB-j1"
	require.NoError(t, repo.Save(ctx, other, 0))
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newJob("j1", "acme"), 0))

	first, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)

	first.Status = domain.StatusScheduled
	require.NoError(t, repo.Save(ctx, first, 1))

	// The slower writer loses and must reload.
	second.Status = domain.StatusCancelled
	err = repo.Save(ctx, second, 1)
	require.True(t, domain.HasReason(err, domain.ReasonVersionConflict))
	var dErr *domain.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, 1, dErr.Details["expected"])
	assert.Equal(t, 2, dErr.Details["actual"])

	// The stored state is the winner's.
	stored, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, stored.Status)

	// Reload-and-retry succeeds.
	reloaded, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	reloaded.Status = domain.StatusCancelled
	require.NoError(t, repo.Save(ctx, reloaded, 2))
}

func TestSaveUpdateOfMissingJobConflicts(t *testing.T) {
	repo := NewJobRepository()
	err := repo.Save(context.Background(), newJob("ghost", "acme"), 3)
	assert.True(t, domain.HasReason(err, domain.ReasonVersionConflict))
}

func TestFindByIDReturnsCopy(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newJob("j1", "acme"), 0))

	a, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	a.Status = domain.StatusCancelled

	b, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, b.Status)
}

func TestDelete(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newJob("j1", "acme"), 0))

	require.NoError(t, repo.Delete(ctx, "j1"))
	_, err := repo.FindByID(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "j1"), domain.ErrJobNotFound)
}

func TestListFilters(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	a := newJob("j1", "acme")
	a.Status = domain.StatusScheduled
	a.Title = map[string]string{"en": "Boiler inspection"}
	a.Assignments = []domain.Assignment{{EmployeeRef: domain.Ref{ID: "emp-1"}, Role: domain.RoleLead}}
	require.NoError(t, repo.Save(ctx, a, 0))

	b := newJob("j2", "acme")
	b.Status = domain.StatusDraft
	b.ApartmentRef = domain.Ref{ID: "apt-1"}
	require.NoError(t, repo.Save(ctx, b, 0))

	c := newJob("j3", "globex")
	c.Status = domain.StatusScheduled
	require.NoError(t, repo.Save(ctx, c, 0))

	page, err := repo.List(ctx, repository.JobFilter{Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = repo.List(ctx, repository.JobFilter{Tenant: "acme", Status: domain.StatusScheduled})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "j1", page.Items[0].ID)

	page, err = repo.List(ctx, repository.JobFilter{EmployeeRef: "emp-1"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "j1", page.Items[0].ID)

	page, err = repo.List(ctx, repository.JobFilter{ApartmentRef: "apt-1"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "j2", page.Items[0].ID)

	page, err = repo.List(ctx, repository.JobFilter{Query: "boiler"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "j1", page.Items[0].ID)

	page, err = repo.List(ctx, repository.JobFilter{Query: "JOB-j2"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestListDueWindowFilter(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	early := newJob("j1", "acme")
	at := base.Add(time.Hour)
	early.Schedule.DueAt = &at
	require.NoError(t, repo.Save(ctx, early, 0))

	late := newJob("j2", "acme")
	at2 := base.Add(48 * time.Hour)
	late.Schedule.DueAt = &at2
	require.NoError(t, repo.Save(ctx, late, 0))

	from := base
	to := base.Add(24 * time.Hour)
	page, err := repo.List(ctx, repository.JobFilter{DueFrom: &from, DueTo: &to})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "j1", page.Items[0].ID)
}

func TestListPaginationIsStable(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := newJob(string(rune('a'+i)), "acme")
		job.CreatedAt = base
		job.UpdatedAt = base
		due := base.Add(time.Duration(i) * time.Hour)
		job.Schedule.DueAt = &due
		require.NoError(t, repo.Save(ctx, job, 0))
	}

	first, err := repo.List(ctx, repository.JobFilter{Tenant: "acme", Page: 1, Limit: 2})
	require.NoError(t, err)
	second, err := repo.List(ctx, repository.JobFilter{Tenant: "acme", Page: 2, Limit: 2})
	require.NoError(t, err)
	third, err := repo.List(ctx, repository.JobFilter{Tenant: "acme", Page: 3, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, first.Total)
	require.Len(t, first.Items, 2)
	require.Len(t, second.Items, 2)
	require.Len(t, third.Items, 1)

	seen := map[string]bool{}
	for _, page := range []*repository.JobPage{first, second, third} {
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], item.ID)
			seen[item.ID] = true
		}
	}
	assert.Equal(t, "a", first.Items[0].ID)
	assert.Equal(t, "e", third.Items[0].ID)
}
