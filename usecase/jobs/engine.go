package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/repository"
)

// Engine is the single mutation path for job aggregates. Every command
// loads the aggregate, validates it against the transition table, delegates
// to the owning sub-component, recomputes derived figures and saves with the
// version it loaded. A command either applies completely or not at all.
type Engine struct {
	repo        repository.JobRepository
	assignments *AssignmentManager
	steps       *StepExecutionTracker
	materials   *MaterialLedger
	finance     *FinanceRollup
	invoices    InvoiceWriter
	cache       BoardCache
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*jobLock
}

// jobLock serializes writers of one aggregate. The holder count lets the
// engine drop the map entry once the last writer releases, so the lock map
// stays bounded by in-flight commands rather than by every job ever touched.
type jobLock struct {
	mu      sync.Mutex
	holders int
}

// NewEngine wires the engine with its sub-components and collaborators.
// cache and invoices may be nil.
func NewEngine(
	repo repository.JobRepository,
	assignments *AssignmentManager,
	steps *StepExecutionTracker,
	materials *MaterialLedger,
	finance *FinanceRollup,
	invoices InvoiceWriter,
	cache BoardCache,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:        repo,
		assignments: assignments,
		steps:       steps,
		materials:   materials,
		finance:     finance,
		invoices:    invoices,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[string]*jobLock),
	}
}

// WithClock overrides the engine clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateJobInput carries the creatable fields of an aggregate. Server-owned
// fields (id, version, timestamps, status, derived figures) are absent by
// construction and therefore cannot be smuggled in.
type CreateJobInput struct {
	Tenant       string             `json:"tenant"`
	Code         string             `json:"code"`
	Title        map[string]string  `json:"title,omitempty"`
	Description  map[string]string  `json:"description,omitempty"`
	Source       domain.JobSource   `json:"source,omitempty"`
	Priority     domain.JobPriority `json:"priority,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	ApartmentRef domain.Ref         `json:"apartment_ref,omitempty"`
	ServiceRef   domain.Ref         `json:"service_ref,omitempty"`
	ContractRef  domain.Ref         `json:"contract_ref,omitempty"`
	CategoryRef  domain.Ref         `json:"category_ref,omitempty"`
	Billable     *bool              `json:"billable,omitempty"`
}

// Create builds a draft aggregate and persists it.
func (e *Engine) Create(ctx context.Context, input CreateJobInput) (*domain.JobAggregate, error) {
	if input.Tenant == "" {
		return nil, domain.ErrInvalidInput
	}
	source := input.Source
	if source == "" {
		source = domain.SourceManual
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	code := input.Code
	if code == "" {
		code = "JOB-" + uuid.NewString()[:8]
	}

	billable := true
	if input.Billable != nil {
		billable = *input.Billable
	}

	job := &domain.JobAggregate{
		ID:           uuid.NewString(),
		Tenant:       input.Tenant,
		Code:         code,
		Title:        input.Title,
		Descr:        input.Description,
		Source:       source,
		Status:       domain.StatusDraft,
		Priority:     priority,
		Tags:         input.Tags,
		IsActive:     true,
		ApartmentRef: input.ApartmentRef.Normalized(),
		ServiceRef:   input.ServiceRef.Normalized(),
		ContractRef:  input.ContractRef.Normalized(),
		CategoryRef:  input.CategoryRef.Normalized(),
		Finance:      &domain.JobFinance{Billable: billable},
	}
	job.Touch()

	if err := e.repo.Save(ctx, job, 0); err != nil {
		return nil, err
	}
	e.invalidateBoard(ctx, job.Tenant)
	e.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("code", job.Code),
		zap.String("source", string(job.Source)))
	return job, nil
}

// JobPatch covers the fields a plain update may touch. Everything else is
// governed by lifecycle commands.
type JobPatch struct {
	Title       map[string]string   `json:"title,omitempty"`
	Description map[string]string   `json:"description,omitempty"`
	Priority    *domain.JobPriority `json:"priority,omitempty"`
	Tags        *[]string           `json:"tags,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

// patchableFields is the closed allow-list for ValidatePatchKeys.
var patchableFields = map[string]struct{}{
	"title":       {},
	"description": {},
	"priority":    {},
	"tags":        {},
	"is_active":   {},
}

// ValidatePatchKeys rejects any patched field outside the allow-list with
// UseLifecycleCommand so callers cannot bypass the state machine.
func ValidatePatchKeys(keys []string) error {
	for _, key := range keys {
		if _, ok := patchableFields[key]; !ok {
			return domain.ErrUseLifecycleCommand(key)
		}
	}
	return nil
}

// Update applies a plain patch.
func (e *Engine) Update(ctx context.Context, id string, patch JobPatch) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "update", func(ctx context.Context, job *domain.JobAggregate) error {
		if patch.Priority != nil {
			switch *patch.Priority {
			case domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityCritical:
				job.Priority = *patch.Priority
			default:
				return domain.ErrInvalidInput
			}
		}
		if patch.Title != nil {
			job.Title = patch.Title
		}
		if patch.Description != nil {
			job.Descr = patch.Description
		}
		if patch.Tags != nil {
			job.Tags = *patch.Tags
		}
		if patch.IsActive != nil {
			job.IsActive = *patch.IsActive
		}
		return nil
	})
}

// Schedule moves draft → scheduled, writing the planned window.
func (e *Engine) Schedule(ctx context.Context, id string, plannedStart, plannedEnd time.Time, dueAt *time.Time) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "schedule", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusDraft {
			return domain.ErrInvalidTransition("schedule", job.Status)
		}
		if !plannedStart.Before(plannedEnd) {
			return domain.ErrInvalidSchedule("planned start must be before planned end")
		}
		if dueAt != nil && dueAt.Before(plannedStart) {
			return domain.ErrInvalidSchedule("due date cannot precede the planned start")
		}

		job.Schedule.PlannedStart = &plannedStart
		job.Schedule.PlannedEnd = &plannedEnd
		job.Schedule.DueAt = dueAt
		job.Status = domain.StatusScheduled
		return nil
	})
}

// Start moves scheduled → in_progress. A lead assignment is required.
func (e *Engine) Start(ctx context.Context, id string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "start", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusScheduled {
			return domain.ErrInvalidTransition("start", job.Status)
		}
		if job.Lead() == nil {
			return domain.ErrLeadRequired()
		}
		now := e.now()
		job.Schedule.StartedAt = &now
		job.Status = domain.StatusInProgress
		return nil
	})
}

// Pause moves in_progress → paused and closes the running interval.
func (e *Engine) Pause(ctx context.Context, id, reason string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "pause", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusInProgress {
			return domain.ErrInvalidTransition("pause", job.Status)
		}
		now := e.now()
		if open := job.Schedule.OpenIntervalStart(); open != nil {
			job.Schedule.AccruedMinutes += int(now.Sub(*open).Minutes())
		}
		job.Schedule.PausedAt = &now
		job.PauseReason = reason
		job.Status = domain.StatusPaused
		return nil
	})
}

// Resume moves paused → in_progress, opening a fresh interval.
func (e *Engine) Resume(ctx context.Context, id string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "resume", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusPaused {
			return domain.ErrInvalidTransition("resume", job.Status)
		}
		now := e.now()
		job.Schedule.ResumedAt = &now
		job.PauseReason = ""
		job.Status = domain.StatusInProgress
		return nil
	})
}

// Complete closes the job. Every step must be complete with all required
// checklist items checked; offenders are reported, never auto-completed.
func (e *Engine) Complete(ctx context.Context, id string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "complete", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusInProgress && job.Status != domain.StatusPaused {
			return domain.ErrInvalidTransition("complete", job.Status)
		}
		if codes := job.IncompleteStepCodes(); len(codes) > 0 {
			return domain.ErrIncompleteSteps(codes)
		}

		now := e.now()
		if job.Status == domain.StatusInProgress {
			if open := job.Schedule.OpenIntervalStart(); open != nil {
				job.Schedule.AccruedMinutes += int(now.Sub(*open).Minutes())
			}
		}
		job.Schedule.CompletedAt = &now

		duration := job.Schedule.AccruedMinutes
		job.Schedule.ActualDurationMinutes = &duration
		if job.Schedule.DueAt != nil {
			onTime := !now.After(*job.Schedule.DueAt)
			job.Schedule.OnTime = &onTime
		}

		job.Status = domain.StatusCompleted
		return e.finance.Freeze(ctx, job)
	})
}

// Cancel terminates the job from any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "cancel", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status.IsTerminal() {
			return domain.ErrInvalidTransition("cancel", job.Status)
		}
		now := e.now()
		job.Schedule.CancelledAt = &now
		job.CancelReason = reason
		job.Status = domain.StatusCancelled
		return nil
	})
}

// AddAssignment binds an employee to the job.
func (e *Engine) AddAssignment(ctx context.Context, id string, employeeRef domain.Ref, role domain.AssignmentRole, plannedMinutes int) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "add-assignment", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status.IsTerminal() {
			return domain.ErrInvalidTransition("add-assignment", job.Status)
		}
		return e.assignments.Add(ctx, job, employeeRef, role, plannedMinutes)
	})
}

// RemoveAssignment unbinds an employee from the job.
func (e *Engine) RemoveAssignment(ctx context.Context, id, employeeID string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "remove-assignment", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status.IsTerminal() {
			return domain.ErrInvalidTransition("remove-assignment", job.Status)
		}
		return e.assignments.Remove(ctx, job, employeeID)
	})
}

// LinkTimeEntries attaches time-entry refs and refreshes actual minutes.
func (e *Engine) LinkTimeEntries(ctx context.Context, id, employeeID string, refs []string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "link-time-entries", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status.IsTerminal() {
			return domain.ErrInvalidTransition("link-time-entries", job.Status)
		}
		return e.assignments.LinkTimeEntries(ctx, job, employeeID, refs)
	})
}

// RecomputeActualMinutes refreshes one assignment from the time store.
func (e *Engine) RecomputeActualMinutes(ctx context.Context, id, employeeID string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "recompute-actual-minutes", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.assignments.RecomputeActualMinutes(ctx, job, employeeID)
	})
}

// UpsertStep creates or replaces a step definition before work starts.
func (e *Engine) UpsertStep(ctx context.Context, id, stepCode string, def StepDefinition) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "upsert-step", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.steps.Upsert(job, stepCode, def)
	})
}

// ToggleChecklist flips a checklist item during execution.
func (e *Engine) ToggleChecklist(ctx context.Context, id, stepCode string, itemIndex int, checked bool, photoURLs []string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "toggle-checklist", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.steps.ToggleChecklist(job, stepCode, itemIndex, checked, photoURLs)
	})
}

// RecordQuality records a quality result during execution.
func (e *Engine) RecordQuality(ctx context.Context, id, stepCode, key string, passed *bool, numeric *float64) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "record-quality", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.steps.RecordQuality(job, stepCode, key, passed, numeric)
	})
}

// CompleteStep closes one step; re-applying it is a no-op.
func (e *Engine) CompleteStep(ctx context.Context, id, stepCode string, elapsedMinutes int) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "complete-step", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.steps.CompleteStep(job, stepCode, elapsedMinutes)
	})
}

// AddMaterial records a material usage.
func (e *Engine) AddMaterial(ctx context.Context, id string, usage domain.MaterialUsage) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "add-material", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.materials.Add(job, usage)
	})
}

// RemoveMaterial drops a material usage by id.
func (e *Engine) RemoveMaterial(ctx context.Context, id, usageID string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "remove-material", func(ctx context.Context, job *domain.JobAggregate) error {
		return e.materials.Remove(job, usageID)
	})
}

// SetDeliverables records execution evidence while the job is running.
func (e *Engine) SetDeliverables(ctx context.Context, id string, deliverables domain.DeliverableResult) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "set-deliverables", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusInProgress && job.Status != domain.StatusPaused {
			return domain.ErrInvalidTransition("set-deliverables", job.Status)
		}
		job.Deliverables = &deliverables
		return nil
	})
}

// AttachInvoice hands the frozen snapshot to the invoice writer and records
// the returned references. Allowed only after completion, only once.
func (e *Engine) AttachInvoice(ctx context.Context, id string) (*domain.JobAggregate, error) {
	return e.mutate(ctx, id, "attach-invoice", func(ctx context.Context, job *domain.JobAggregate) error {
		if job.Status != domain.StatusCompleted {
			return domain.ErrInvalidTransition("attach-invoice", job.Status)
		}
		if e.invoices == nil {
			return domain.NewError(domain.ErrCodeUnavailable, domain.ReasonExternalLookupTimeout, "invoice writer not configured")
		}
		if job.Finance != nil && job.Finance.Invoiced() {
			return domain.ErrFinanceFrozen(job.Finance.InvoiceRef)
		}
		ref, lineID, err := e.invoices.Attach(ctx, job.ID, *job.Finance)
		if err != nil {
			return domain.WrapError(domain.ErrCodeUnavailable, domain.ReasonExternalLookupTimeout,
				"invoice writer failed", err)
		}
		return e.finance.AttachInvoice(job, ref, lineID)
	})
}

// AdministrativeDelete removes the aggregate outright, bypassing the
// lifecycle. Audited; not reachable as a dispatch command.
func (e *Engine) AdministrativeDelete(ctx context.Context, id, actorID string) error {
	job, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	e.logger.Warn("administrative job delete",
		zap.String("job_id", id),
		zap.String("code", job.Code),
		zap.String("actor", actorID))
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.invalidateBoard(ctx, job.Tenant)
	return nil
}

// mutate serializes per-job writers in-process, applies the command, rolls
// up derived figures, and saves against the loaded version. One reload-retry
// covers a conflict with another instance; every command is idempotent, so
// reapplying is safe.
func (e *Engine) mutate(ctx context.Context, id, command string, apply func(context.Context, *domain.JobAggregate) error) (*domain.JobAggregate, error) {
	unlock := e.lock(id)
	defer unlock()

	job, err := e.attempt(ctx, id, apply)
	if err != nil {
		if domain.HasReason(err, domain.ReasonVersionConflict) {
			e.logger.Debug("retrying command after version conflict",
				zap.String("job_id", id), zap.String("command", command))
			job, err = e.attempt(ctx, id, apply)
		}
		if err != nil {
			return nil, err
		}
	}

	e.invalidateBoard(ctx, job.Tenant)
	e.logger.Info("job command applied",
		zap.String("job_id", id),
		zap.String("command", command),
		zap.String("status", string(job.Status)),
		zap.Int("version", job.Version))
	return job, nil
}

func (e *Engine) attempt(ctx context.Context, id string, apply func(context.Context, *domain.JobAggregate) error) (*domain.JobAggregate, error) {
	job, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := job.Version

	if err := apply(ctx, job); err != nil {
		return nil, err
	}

	e.materials.RecomputeTotals(job)
	if err := e.finance.Recompute(ctx, job); err != nil {
		return nil, err
	}
	job.Touch()

	if err := e.repo.Save(ctx, job, loadedVersion); err != nil {
		return nil, err
	}
	return job, nil
}

func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &jobLock{}
		e.locks[id] = l
	}
	l.holders++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.holders--
		if l.holders == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) invalidateBoard(ctx context.Context, tenant string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, tenant); err != nil {
		e.logger.Warn("board cache invalidation failed", zap.Error(err))
	}
}
