package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/usecase/jobs"
)

// RecurrenceTemplate is a stored pattern that spawns draft jobs on a cadence.
type RecurrenceTemplate struct {
	ID           string
	Tenant       string
	CodePrefix   string
	Title        map[string]string
	Description  map[string]string
	Priority     domain.JobPriority
	Tags         []string
	ApartmentRef string
	ServiceRef   string
	ContractRef  string
	CategoryRef  string
	IntervalDays int
	NextRunAt    time.Time
}

// TemplateSource lists templates whose next run is due and advances them.
type TemplateSource interface {
	Due(ctx context.Context, now time.Time) ([]RecurrenceTemplate, error)
	MarkRun(ctx context.Context, templateID string, ranAt time.Time) error
}

// JobCreator is the slice of the engine the scheduler needs.
type JobCreator interface {
	Create(ctx context.Context, input jobs.CreateJobInput) (*domain.JobAggregate, error)
}

// RecurrenceScheduler materializes draft jobs from recurrence templates.
type RecurrenceScheduler struct {
	source  TemplateSource
	creator JobCreator
	logger  *zap.Logger
	cron    *cron.Cron
}

// NewRecurrenceScheduler polls for due templates on the given interval.
func NewRecurrenceScheduler(source TemplateSource, creator JobCreator, interval time.Duration, logger *zap.Logger) *RecurrenceScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RecurrenceScheduler{
		source:  source,
		creator: creator,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	_, _ = s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if err := s.Run(ctx); err != nil {
			s.logger.Error("recurrence run failed", zap.Error(err))
		}
	})

	return s
}

// Start launches the cron scheduler.
func (s *RecurrenceScheduler) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("recurrence scheduler started")
}

// Stop gracefully stops the scheduler.
func (s *RecurrenceScheduler) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("recurrence scheduler stopped")
}

// Run creates a draft job for every due template and advances its schedule.
func (s *RecurrenceScheduler) Run(ctx context.Context) error {
	now := time.Now()
	due, err := s.source.Due(ctx, now)
	if err != nil {
		return err
	}

	for _, tpl := range due {
		input := jobs.CreateJobInput{
			Tenant:       tpl.Tenant,
			Code:         fmt.Sprintf("%s-%s", tpl.CodePrefix, now.Format("20060102")),
			Title:        tpl.Title,
			Description:  tpl.Description,
			Source:       domain.SourceRecurrence,
			Priority:     tpl.Priority,
			Tags:         tpl.Tags,
			ApartmentRef: domain.Ref{ID: tpl.ApartmentRef},
			ServiceRef:   domain.Ref{ID: tpl.ServiceRef},
			ContractRef:  domain.Ref{ID: tpl.ContractRef},
			CategoryRef:  domain.Ref{ID: tpl.CategoryRef},
		}

		job, err := s.creator.Create(ctx, input)
		if err != nil {
			s.logger.Error("recurrence job creation failed",
				zap.String("template_id", tpl.ID), zap.Error(err))
			continue
		}
		if err := s.source.MarkRun(ctx, tpl.ID, now); err != nil {
			s.logger.Error("failed to advance recurrence template",
				zap.String("template_id", tpl.ID), zap.Error(err))
			continue
		}
		s.logger.Info("recurrence job created",
			zap.String("template_id", tpl.ID),
			zap.String("job_id", job.ID),
			zap.String("code", job.Code))
	}
	return nil
}
