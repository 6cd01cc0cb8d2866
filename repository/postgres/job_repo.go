package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/repository"
)

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository returns a Postgres-backed implementation of JobRepository.
func NewJobRepository(pool *pgxpool.Pool) repository.JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `
	id, tenant, code, title, description, source, status, priority, tags,
	is_active, pause_reason, cancel_reason,
	apartment_ref, service_ref, contract_ref, category_ref,
	schedule, assignments, steps, materials, deliverables, finance,
	due_at, planned_start, version, created_at, updated_at
`

func (r *jobRepository) FindByID(ctx context.Context, id string) (*domain.JobAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanJob(row)
}

// Save replaces the whole aggregate atomically. An insert expects version 0;
// an update expects the version the caller loaded and bumps it by one.
func (r *jobRepository) Save(ctx context.Context, job *domain.JobAggregate, expectedVersion int) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}

	if expectedVersion == 0 {
		return r.insert(ctx, job)
	}
	return r.update(ctx, job, expectedVersion)
}

func (r *jobRepository) insert(ctx context.Context, job *domain.JobAggregate) error {
	const query = `
	INSERT INTO jobs (
		id, tenant, code, title, description, source, status, priority, tags,
		is_active, pause_reason, cancel_reason,
		apartment_ref, service_ref, contract_ref, category_ref,
		schedule, assignments, steps, materials, deliverables, finance,
		due_at, planned_start, version
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,1)
	RETURNING created_at, updated_at
	`
	job.Version = 1
	if err := r.pool.QueryRow(ctx, query, r.writeArgs(job)...).
		Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCode(job.Code)
		}
		return err
	}
	return nil
}

func (r *jobRepository) update(ctx context.Context, job *domain.JobAggregate, expectedVersion int) error {
	const query = `
	UPDATE jobs SET
		tenant = $2, code = $3, title = $4, description = $5, source = $6,
		status = $7, priority = $8, tags = $9, is_active = $10,
		pause_reason = $11, cancel_reason = $12,
		apartment_ref = $13, service_ref = $14, contract_ref = $15, category_ref = $16,
		schedule = $17, assignments = $18, steps = $19, materials = $20,
		deliverables = $21, finance = $22, due_at = $23, planned_start = $24,
		version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $25
	RETURNING version, updated_at
	`
	args := append(r.writeArgs(job), expectedVersion)
	if err := r.pool.QueryRow(ctx, query, args...).
		Scan(&job.Version, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.conflictOrMissing(ctx, job.ID, expectedVersion)
		}
		return err
	}
	return nil
}

// conflictOrMissing distinguishes a lost version race from a deleted row.
func (r *jobRepository) conflictOrMissing(ctx context.Context, id string, expectedVersion int) error {
	var actual int
	err := r.pool.QueryRow(ctx, `SELECT version FROM jobs WHERE id = $1`, id).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict(expectedVersion, actual)
}

func (r *jobRepository) List(ctx context.Context, filter repository.JobFilter) (*repository.JobPage, error) {
	where, args := buildWhere(filter)

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	// Dispatch-board order: soonest due first (undated last), then most
	// critical, then oldest, with id as the stable pagination tiebreak.
	query := fmt.Sprintf(`
	SELECT %s, COUNT(*) OVER() AS total
	FROM jobs
	%s
	ORDER BY due_at ASC NULLS LAST,
		CASE priority
			WHEN 'critical' THEN 3
			WHEN 'high' THEN 2
			WHEN 'normal' THEN 1
			ELSE 0
		END DESC,
		created_at ASC,
		id ASC
	LIMIT $%d OFFSET $%d
	`, jobColumns, where, len(args)+1, len(args)+2)

	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		items []domain.JobAggregate
		total int
	)
	for rows.Next() {
		job, rowTotal, err := scanJobWithTotal(rows)
		if err != nil {
			return nil, err
		}
		total = rowTotal
		items = append(items, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.JobPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *jobRepository) writeArgs(job *domain.JobAggregate) []interface{} {
	return []interface{}{
		job.ID,
		job.Tenant,
		job.Code,
		marshalLocaleMap(job.Title),
		marshalLocaleMap(job.Descr),
		string(job.Source),
		string(job.Status),
		string(job.Priority),
		job.Tags,
		job.IsActive,
		job.PauseReason,
		job.CancelReason,
		job.ApartmentRef.ID,
		job.ServiceRef.ID,
		job.ContractRef.ID,
		job.CategoryRef.ID,
		marshalJSON(job.Schedule),
		marshalJSON(job.Assignments),
		marshalJSON(job.Steps),
		marshalJSON(job.Materials),
		marshalJSON(job.Deliverables),
		marshalJSON(job.Finance),
		nullTimePtr(job.Schedule.DueAt),
		nullTimePtr(job.Schedule.PlannedStart),
	}
}

func buildWhere(f repository.JobFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Tenant != "" {
		add("tenant = $%d", f.Tenant)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Source != "" {
		add("source = $%d", string(f.Source))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.ApartmentRef != "" {
		add("apartment_ref = $%d", f.ApartmentRef)
	}
	if f.ServiceRef != "" {
		add("service_ref = $%d", f.ServiceRef)
	}
	if f.ContractRef != "" {
		add("contract_ref = $%d", f.ContractRef)
	}
	if f.EmployeeRef != "" {
		add(`assignments @> format('[{"employee_ref": %%s}]', to_json($%d::text))::jsonb`, f.EmployeeRef)
	}
	if f.Query != "" {
		args = append(args, f.Query)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(code ILIKE '%%' || $%d || '%%' OR title::text ILIKE '%%' || $%d || '%%')", n, n))
	}
	if f.PlannedFrom != nil {
		add("planned_start >= $%d", *f.PlannedFrom)
	}
	if f.PlannedTo != nil {
		add("planned_start <= $%d", *f.PlannedTo)
	}
	if f.DueFrom != nil {
		add("due_at >= $%d", *f.DueFrom)
	}
	if f.DueTo != nil {
		add("due_at <= $%d", *f.DueTo)
	}
	if f.IsActive != nil {
		add("is_active = $%d", *f.IsActive)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.JobAggregate, error) {
	job, _, err := scanInto(row, false)
	return job, err
}

func scanJobWithTotal(row rowScanner) (*domain.JobAggregate, int, error) {
	return scanInto(row, true)
}

func scanInto(row rowScanner, withTotal bool) (*domain.JobAggregate, int, error) {
	var (
		job                       domain.JobAggregate
		title, descr              []byte
		schedule, assignments     []byte
		steps, materials          []byte
		deliverables, finance     []byte
		apartment, service        string
		contract, category        string
		source, status, priority  string
		dueAt, plannedStart       *time.Time
		total                     int
	)

	dest := []interface{}{
		&job.ID, &job.Tenant, &job.Code, &title, &descr,
		&source, &status, &priority, &job.Tags,
		&job.IsActive, &job.PauseReason, &job.CancelReason,
		&apartment, &service, &contract, &category,
		&schedule, &assignments, &steps, &materials, &deliverables, &finance,
		&dueAt, &plannedStart, &job.Version, &job.CreatedAt, &job.UpdatedAt,
	}
	if withTotal {
		dest = append(dest, &total)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, domain.ErrJobNotFound
		}
		return nil, 0, err
	}

	job.Source = domain.JobSource(source)
	job.Status = domain.JobStatus(status)
	job.Priority = domain.JobPriority(priority)
	job.ApartmentRef = domain.Ref{ID: apartment}
	job.ServiceRef = domain.Ref{ID: service}
	job.ContractRef = domain.Ref{ID: contract}
	job.CategoryRef = domain.Ref{ID: category}

	unmarshalInto(title, &job.Title)
	unmarshalInto(descr, &job.Descr)
	unmarshalInto(schedule, &job.Schedule)
	unmarshalInto(assignments, &job.Assignments)
	unmarshalInto(steps, &job.Steps)
	unmarshalInto(materials, &job.Materials)
	unmarshalInto(deliverables, &job.Deliverables)
	unmarshalInto(finance, &job.Finance)

	return &job, total, nil
}
