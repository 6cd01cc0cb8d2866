package jobs

import (
	"context"
	"errors"

	"github.com/fieldops/backend/domain"
)

// AssignmentManager owns the assignment list of an aggregate. ActualMinutes
// has exactly one writer: RecomputeActualMinutes.
type AssignmentManager struct {
	directory   EmployeeDirectory
	timeEntries TimeEntrySource
}

// NewAssignmentManager wires the external collaborators the manager needs.
func NewAssignmentManager(directory EmployeeDirectory, timeEntries TimeEntrySource) *AssignmentManager {
	return &AssignmentManager{
		directory:   directory,
		timeEntries: timeEntries,
	}
}

// Add appends an assignment after resolving the employee against the
// directory. A second lead is rejected.
func (m *AssignmentManager) Add(ctx context.Context, job *domain.JobAggregate, employeeRef domain.Ref, role domain.AssignmentRole, plannedMinutes int) error {
	if employeeRef.IsZero() {
		return domain.ErrUnknownEmployee("")
	}
	if role == domain.RoleLead && job.Lead() != nil {
		return domain.ErrDuplicateLead(employeeRef.ID)
	}
	if role != domain.RoleLead && role != domain.RoleMember {
		return domain.ErrInvalidInput
	}
	if existing := job.FindAssignment(employeeRef.ID); existing != nil {
		// Re-assigning the same employee updates the plan instead of
		// duplicating the row.
		if role == domain.RoleLead && existing.Role != domain.RoleLead && job.Lead() != nil {
			return domain.ErrDuplicateLead(employeeRef.ID)
		}
		existing.Role = role
		existing.PlannedMinutes = plannedMinutes
		return nil
	}

	if err := m.resolve(ctx, employeeRef.ID); err != nil {
		return err
	}

	job.Assignments = append(job.Assignments, domain.Assignment{
		EmployeeRef:    employeeRef.Normalized(),
		Role:           role,
		PlannedMinutes: plannedMinutes,
	})
	return nil
}

// Remove drops an assignment. A job that has started execution must always
// keep at least one assignee.
func (m *AssignmentManager) Remove(ctx context.Context, job *domain.JobAggregate, employeeID string) error {
	idx := -1
	for i := range job.Assignments {
		if job.Assignments[i].EmployeeRef.ID == employeeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrUnknownEmployee(employeeID)
	}

	started := job.Status == domain.StatusInProgress || job.Status == domain.StatusPaused
	if started && len(job.Assignments) == 1 {
		return domain.ErrLastLeadRemoval(employeeID)
	}

	job.Assignments = append(job.Assignments[:idx], job.Assignments[idx+1:]...)
	return nil
}

// LinkTimeEntries attaches external time-entry references to an assignment
// and recomputes its actual minutes from the time-tracking store.
func (m *AssignmentManager) LinkTimeEntries(ctx context.Context, job *domain.JobAggregate, employeeID string, refs []string) error {
	a := job.FindAssignment(employeeID)
	if a == nil {
		return domain.ErrUnknownEmployee(employeeID)
	}
	for _, ref := range refs {
		if !containsString(a.TimeEntryRefs, ref) {
			a.TimeEntryRefs = append(a.TimeEntryRefs, ref)
		}
	}
	return m.RecomputeActualMinutes(ctx, job, employeeID)
}

// RecomputeActualMinutes overwrites ActualMinutes with the sum of the linked
// time entries' durations. On collaborator failure the aggregate is left
// untouched and the caller's command is rejected.
func (m *AssignmentManager) RecomputeActualMinutes(ctx context.Context, job *domain.JobAggregate, employeeID string) error {
	a := job.FindAssignment(employeeID)
	if a == nil {
		return domain.ErrUnknownEmployee(employeeID)
	}
	if len(a.TimeEntryRefs) == 0 {
		a.ActualMinutes = 0
		return nil
	}

	durations, err := m.timeEntries.Durations(ctx, a.TimeEntryRefs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrExternalLookupTimeout("time-entry store", err)
		}
		return domain.ErrTimeSourceUnavailable(err)
	}

	total := 0
	for _, ref := range a.TimeEntryRefs {
		total += durations[ref]
	}
	a.ActualMinutes = total
	return nil
}

func (m *AssignmentManager) resolve(ctx context.Context, employeeID string) error {
	snapshot, err := m.directory.Resolve(ctx, employeeID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrExternalLookupTimeout("employee directory", err)
		}
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return domain.ErrUnknownEmployee(employeeID)
		}
		return domain.WrapError(domain.ErrCodeUnavailable, domain.ReasonExternalLookupTimeout,
			"employee directory unavailable", err)
	}
	if snapshot == nil {
		return domain.ErrUnknownEmployee(employeeID)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
