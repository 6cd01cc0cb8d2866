package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/internal/services"
)

type recurrenceRepository struct {
	pool *pgxpool.Pool
}

// NewRecurrenceRepository returns a Postgres-backed template source for the
// recurrence scheduler.
func NewRecurrenceRepository(pool *pgxpool.Pool) services.TemplateSource {
	return &recurrenceRepository{pool: pool}
}

func (r *recurrenceRepository) Due(ctx context.Context, now time.Time) ([]services.RecurrenceTemplate, error) {
	const query = `
	SELECT id, tenant, code_prefix, title, description, priority, tags,
		apartment_ref, service_ref, contract_ref, category_ref,
		interval_days, next_run_at
	FROM job_recurrences
	WHERE active AND next_run_at <= $1
	ORDER BY next_run_at ASC
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []services.RecurrenceTemplate
	for rows.Next() {
		var (
			tpl          services.RecurrenceTemplate
			title, descr []byte
			priority     string
		)
		if err := rows.Scan(
			&tpl.ID, &tpl.Tenant, &tpl.CodePrefix, &title, &descr, &priority, &tpl.Tags,
			&tpl.ApartmentRef, &tpl.ServiceRef, &tpl.ContractRef, &tpl.CategoryRef,
			&tpl.IntervalDays, &tpl.NextRunAt,
		); err != nil {
			return nil, err
		}
		tpl.Priority = domain.JobPriority(priority)
		unmarshalInto(title, &tpl.Title)
		unmarshalInto(descr, &tpl.Description)
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *recurrenceRepository) MarkRun(ctx context.Context, templateID string, ranAt time.Time) error {
	const query = `
	UPDATE job_recurrences
	SET last_run_at = $2,
		next_run_at = $2 + make_interval(days => interval_days)
	WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, templateID, ranAt)
	return err
}
