package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/repository"
)

// QueryService is the read side. It never mutates aggregates; reference
// snapshots are resolved here, at the boundary, and nowhere else.
type QueryService struct {
	repo       repository.JobRepository
	directory  EmployeeDirectory
	apartments EntityReader
	services   EntityReader
	contracts  ContractReader
	cache      BoardCache
	logger     *zap.Logger
}

// NewQueryService wires the read side. Readers and cache may be nil; missing
// readers simply leave references unresolved.
func NewQueryService(
	repo repository.JobRepository,
	directory EmployeeDirectory,
	apartments EntityReader,
	services EntityReader,
	contracts ContractReader,
	cache BoardCache,
	logger *zap.Logger,
) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		repo:       repo,
		directory:  directory,
		apartments: apartments,
		services:   services,
		contracts:  contracts,
		cache:      cache,
		logger:     logger,
	}
}

// Get returns one job with display snapshots attached.
func (q *QueryService) Get(ctx context.Context, id string) (*domain.JobAggregate, error) {
	job, err := q.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	q.resolveRefs(ctx, job)
	return job, nil
}

// List returns a dispatch-board page: soonest-due and most-critical first,
// stable across pages. Pages are served from the board cache when warm.
func (q *QueryService) List(ctx context.Context, filter repository.JobFilter) (*repository.JobPage, error) {
	// Invalidation is per tenant, so only tenant-scoped pages may be cached.
	// A cross-tenant listing would otherwise stay stale for the full TTL.
	cacheable := q.cache != nil && filter.Tenant != ""
	key := q.cacheKey(filter)
	if cacheable {
		if payload, ok := q.cache.GetPage(ctx, key); ok {
			var page repository.JobPage
			if err := json.Unmarshal(payload, &page); err == nil {
				return &page, nil
			}
		}
	}

	page, err := q.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range page.Items {
		q.resolveRefs(ctx, &page.Items[i])
	}

	if cacheable {
		if payload, err := json.Marshal(page); err == nil {
			if err := q.cache.SetPage(ctx, filter.Tenant, key, payload); err != nil {
				q.logger.Debug("board cache write failed", zap.Error(err))
			}
		}
	}
	return page, nil
}

// resolveRefs attaches display labels. Failures degrade to bare ids; a read
// must not fail because a collaborator is slow.
func (q *QueryService) resolveRefs(ctx context.Context, job *domain.JobAggregate) {
	if q.apartments != nil && !job.ApartmentRef.IsZero() {
		if label, err := q.apartments.Label(ctx, job.ApartmentRef.ID); err == nil {
			job.ApartmentRef = job.ApartmentRef.WithSnapshot(map[string]string{"label": label})
		}
	}
	if q.services != nil && !job.ServiceRef.IsZero() {
		if label, err := q.services.Label(ctx, job.ServiceRef.ID); err == nil {
			job.ServiceRef = job.ServiceRef.WithSnapshot(map[string]string{"label": label})
		}
	}
	if q.contracts != nil && !job.ContractRef.IsZero() {
		if label, err := q.contracts.Label(ctx, job.ContractRef.ID); err == nil {
			job.ContractRef = job.ContractRef.WithSnapshot(map[string]string{"label": label})
		}
	}
	if q.directory != nil {
		for i := range job.Assignments {
			ref := &job.Assignments[i].EmployeeRef
			if snapshot, err := q.directory.Resolve(ctx, ref.ID); err == nil && snapshot != nil {
				*ref = ref.WithSnapshot(map[string]string{"name": snapshot.Name})
			}
		}
	}
}

func (q *QueryService) cacheKey(filter repository.JobFilter) string {
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("board:%s:%s", filter.Tenant, hex.EncodeToString(sum[:16]))
}
