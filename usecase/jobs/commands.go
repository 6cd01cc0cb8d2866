package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/usecase"
)

// Command argument payloads for the dispatch surface.

type ScheduleArgs struct {
	PlannedStart time.Time  `json:"planned_start"`
	PlannedEnd   time.Time  `json:"planned_end"`
	DueAt        *time.Time `json:"due_at,omitempty"`
}

type ReasonArgs struct {
	Reason string `json:"reason,omitempty"`
}

type AssignmentArgs struct {
	EmployeeRef    domain.Ref            `json:"employee_ref"`
	Role           domain.AssignmentRole `json:"role"`
	PlannedMinutes int                   `json:"planned_minutes"`
}

type RemoveAssignmentArgs struct {
	EmployeeID string `json:"employee_id"`
}

type TimeEntryArgs struct {
	EmployeeID    string   `json:"employee_id"`
	TimeEntryRefs []string `json:"time_entry_refs,omitempty"`
}

type UpsertStepArgs struct {
	StepCode   string         `json:"step_code"`
	Definition StepDefinition `json:"definition"`
}

type ToggleChecklistArgs struct {
	StepCode  string   `json:"step_code"`
	ItemIndex int      `json:"item_index"`
	Checked   bool     `json:"checked"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
}

type RecordQualityArgs struct {
	StepCode string   `json:"step_code"`
	Key      string   `json:"key"`
	Passed   *bool    `json:"passed,omitempty"`
	Numeric  *float64 `json:"numeric,omitempty"`
}

type CompleteStepArgs struct {
	StepCode       string `json:"step_code"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
}

type RemoveMaterialArgs struct {
	UsageID string `json:"usage_id"`
}

// RegisterCommands binds every lifecycle and sub-entity command to the
// dispatcher. Only the naturally idempotent field commands are marked
// bufferable for offline replay.
func RegisterCommands(d *usecase.Dispatcher, e *Engine) {
	d.Register("schedule", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args ScheduleArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.Schedule(ctx, jobID, args.PlannedStart, args.PlannedEnd, args.DueAt)
	}, false)

	d.Register("start", func(ctx context.Context, jobID string, _ json.RawMessage) (*domain.JobAggregate, error) {
		return e.Start(ctx, jobID)
	}, false)

	d.Register("pause", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args ReasonArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.Pause(ctx, jobID, args.Reason)
	}, false)

	d.Register("resume", func(ctx context.Context, jobID string, _ json.RawMessage) (*domain.JobAggregate, error) {
		return e.Resume(ctx, jobID)
	}, false)

	d.Register("complete", func(ctx context.Context, jobID string, _ json.RawMessage) (*domain.JobAggregate, error) {
		return e.Complete(ctx, jobID)
	}, false)

	d.Register("cancel", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args ReasonArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.Cancel(ctx, jobID, args.Reason)
	}, false)

	d.Register("add-assignment", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args AssignmentArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.AddAssignment(ctx, jobID, args.EmployeeRef, args.Role, args.PlannedMinutes)
	}, false)

	d.Register("remove-assignment", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args RemoveAssignmentArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.RemoveAssignment(ctx, jobID, args.EmployeeID)
	}, false)

	d.Register("link-time-entries", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args TimeEntryArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.LinkTimeEntries(ctx, jobID, args.EmployeeID, args.TimeEntryRefs)
	}, false)

	d.Register("recompute-actual-minutes", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args TimeEntryArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.RecomputeActualMinutes(ctx, jobID, args.EmployeeID)
	}, false)

	d.Register("upsert-step", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args UpsertStepArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.UpsertStep(ctx, jobID, args.StepCode, args.Definition)
	}, false)

	d.Register("toggle-checklist", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args ToggleChecklistArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.ToggleChecklist(ctx, jobID, args.StepCode, args.ItemIndex, args.Checked, args.PhotoURLs)
	}, true)

	d.Register("record-quality", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args RecordQualityArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.RecordQuality(ctx, jobID, args.StepCode, args.Key, args.Passed, args.Numeric)
	}, true)

	d.Register("complete-step", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args CompleteStepArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.CompleteStep(ctx, jobID, args.StepCode, args.ElapsedMinutes)
	}, true)

	d.Register("add-material", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var usage domain.MaterialUsage
		if err := decode(raw, &usage); err != nil {
			return nil, err
		}
		return e.AddMaterial(ctx, jobID, usage)
	}, false)

	d.Register("remove-material", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var args RemoveMaterialArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return e.RemoveMaterial(ctx, jobID, args.UsageID)
	}, false)

	d.Register("set-deliverables", func(ctx context.Context, jobID string, raw json.RawMessage) (*domain.JobAggregate, error) {
		var deliverables domain.DeliverableResult
		if err := decode(raw, &deliverables); err != nil {
			return nil, err
		}
		return e.SetDeliverables(ctx, jobID, deliverables)
	}, false)

	d.Register("attach-invoice", func(ctx context.Context, jobID string, _ json.RawMessage) (*domain.JobAggregate, error) {
		return e.AttachInvoice(ctx, jobID)
	}, false)
}

func decode(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return domain.ErrInvalidInput
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "", "malformed command arguments", err)
	}
	return nil
}
