package jobs

import (
	"github.com/fieldops/backend/domain"
)

// maxStepMinutes caps a single step's claimed elapsed time at 24 hours.
const maxStepMinutes = 24 * 60

// StepDefinition is the editable part of a step. Execution results
// (checked items, quality records, actual minutes) never travel through it.
type StepDefinition struct {
	Type             domain.StepType `json:"type"`
	Checklist        []ChecklistSpec `json:"checklist,omitempty"`
	EstimatedMinutes int             `json:"estimated_minutes"`
}

// ChecklistSpec defines one checklist entry.
type ChecklistSpec struct {
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

// StepExecutionTracker owns the ordered step list and its checklist and
// quality gates.
type StepExecutionTracker struct{}

// NewStepExecutionTracker returns the tracker. It has no collaborators; all
// of its rules are local to the aggregate.
func NewStepExecutionTracker() *StepExecutionTracker {
	return &StepExecutionTracker{}
}

// Upsert creates or replaces a step definition. Definitions are frozen once
// work starts so the execution record stays auditable.
func (t *StepExecutionTracker) Upsert(job *domain.JobAggregate, stepCode string, def StepDefinition) error {
	if job.Status != domain.StatusDraft && job.Status != domain.StatusScheduled {
		return domain.ErrStepsLocked(job.Status)
	}
	if stepCode == "" {
		return domain.ErrInvalidInput
	}

	checklist := make([]domain.ChecklistItem, 0, len(def.Checklist))
	for _, spec := range def.Checklist {
		checklist = append(checklist, domain.ChecklistItem{
			Text:     spec.Text,
			Required: spec.Required,
		})
	}

	stepType := def.Type
	if stepType == "" {
		stepType = domain.StepTask
	}

	next := domain.StepResult{
		StepCode:         stepCode,
		Type:             stepType,
		Checklist:        checklist,
		EstimatedMinutes: def.EstimatedMinutes,
	}

	if existing := job.FindStep(stepCode); existing != nil {
		*existing = next
		return nil
	}
	job.Steps = append(job.Steps, next)
	return nil
}

// ToggleChecklist sets a checklist item's checked flag and optionally attaches
// photo evidence. Only legal while the job is being executed. Toggling to the
// value an item already has is a no-op, so retried requests are harmless.
func (t *StepExecutionTracker) ToggleChecklist(job *domain.JobAggregate, stepCode string, itemIndex int, checked bool, photoURLs []string) error {
	step, err := t.executableStep(job, stepCode)
	if err != nil {
		return err
	}
	if itemIndex < 0 || itemIndex >= len(step.Checklist) {
		return domain.ErrInvalidInput
	}

	item := &step.Checklist[itemIndex]
	item.Checked = checked
	for _, url := range photoURLs {
		if !containsString(item.PhotoURLs, url) {
			item.PhotoURLs = append(item.PhotoURLs, url)
		}
	}
	return nil
}

// RecordQuality upserts a typed quality result on a step.
func (t *StepExecutionTracker) RecordQuality(job *domain.JobAggregate, stepCode, key string, passed *bool, numeric *float64) error {
	step, err := t.executableStep(job, stepCode)
	if err != nil {
		return err
	}
	if key == "" {
		return domain.ErrInvalidInput
	}

	for i := range step.Quality {
		if step.Quality[i].Key == key {
			step.Quality[i].Passed = passed
			step.Quality[i].Numeric = numeric
			return nil
		}
	}
	step.Quality = append(step.Quality, domain.QualityResult{Key: key, Passed: passed, Numeric: numeric})
	return nil
}

// CompleteStep marks a step done and records the technician-reported elapsed
// time. Completing an already-completed step is a no-op; the first recorded
// duration wins.
func (t *StepExecutionTracker) CompleteStep(job *domain.JobAggregate, stepCode string, elapsedMinutes int) error {
	step, err := t.executableStep(job, stepCode)
	if err != nil {
		return err
	}
	if step.Completed {
		return nil
	}
	if elapsedMinutes < 0 || elapsedMinutes > maxStepMinutes {
		return domain.ErrInvalidDuration(elapsedMinutes)
	}
	if pending := step.PendingRequired(); len(pending) > 0 {
		return domain.ErrRequiredItemsPending(stepCode, pending)
	}

	step.Completed = true
	step.ActualMinutes = elapsedMinutes
	return nil
}

func (t *StepExecutionTracker) executableStep(job *domain.JobAggregate, stepCode string) (*domain.StepResult, error) {
	if job.Status != domain.StatusInProgress && job.Status != domain.StatusPaused {
		return nil, domain.ErrInvalidTransition("step execution", job.Status)
	}
	step := job.FindStep(stepCode)
	if step == nil {
		return nil, domain.ErrStepNotFound(stepCode)
	}
	return step, nil
}
