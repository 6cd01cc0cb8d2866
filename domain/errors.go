package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodePrecondition ErrorCode = "PRECONDITION"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Reason identifies the exact rule a command violated. Codes group reasons
// for transport mapping; reasons are what the UI keys its messages on.
type Reason string

const (
	ReasonInvalidTransition     Reason = "InvalidTransition"
	ReasonInvalidSchedule       Reason = "InvalidSchedule"
	ReasonInvalidDuration       Reason = "InvalidDuration"
	ReasonDuplicateLead         Reason = "DuplicateLead"
	ReasonDuplicateCode         Reason = "DuplicateCode"
	ReasonUnknownEmployee       Reason = "UnknownEmployee"
	ReasonUseLifecycleCommand   Reason = "UseLifecycleCommand"
	ReasonIncompleteSteps       Reason = "IncompleteSteps"
	ReasonRequiredItemsPending  Reason = "RequiredItemsPending"
	ReasonLastLeadRemoval       Reason = "LastLeadRemoval"
	ReasonLeadRequired          Reason = "LeadRequired"
	ReasonStepsLocked           Reason = "StepsLocked"
	ReasonFinanceFrozen         Reason = "FinanceFrozen"
	ReasonVersionConflict       Reason = "VersionConflict"
	ReasonTimeSourceUnavailable Reason = "TimeSourceUnavailable"
	ReasonExternalLookupTimeout Reason = "ExternalLookupTimeout"
	ReasonJobNotFound           Reason = "JobNotFound"
	ReasonStepNotFound          Reason = "StepNotFound"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Reason  Reason
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may retry the same command without
// changing anything first.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code == ErrCodeConflict || e.Code == ErrCodeUnavailable
}

// NewError builds a domain error.
func NewError(code ErrorCode, reason Reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, reason Reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}

// Common domain errors.
var (
	ErrJobNotFound  = NewError(ErrCodeNotFound, ReasonJobNotFound, "job not found")
	ErrInvalidInput = NewError(ErrCodeInvalid, "", "invalid payload")
)

// ErrInvalidTransition rejects a command issued from a state it is not legal in.
func ErrInvalidTransition(command string, from JobStatus) *Error {
	e := NewError(ErrCodeInvalid, ReasonInvalidTransition,
		fmt.Sprintf("command %q is not allowed while job is %s", command, from))
	e.Details = map[string]interface{}{"command": command, "status": string(from)}
	return e
}

// ErrInvalidSchedule rejects an inconsistent planned window.
func ErrInvalidSchedule(message string) *Error {
	return NewError(ErrCodeInvalid, ReasonInvalidSchedule, message)
}

// ErrInvalidDuration rejects negative or absurd elapsed-time claims.
func ErrInvalidDuration(minutes int) *Error {
	e := NewError(ErrCodeInvalid, ReasonInvalidDuration,
		fmt.Sprintf("%d minutes is not an acceptable step duration", minutes))
	e.Details = map[string]interface{}{"minutes": minutes}
	return e
}

// ErrDuplicateLead rejects a second lead assignment.
func ErrDuplicateLead(employeeID string) *Error {
	e := NewError(ErrCodeInvalid, ReasonDuplicateLead, "job already has a lead assignment")
	e.Details = map[string]interface{}{"employee": employeeID}
	return e
}

// ErrDuplicateCode rejects a job code already taken within the tenant.
// Unlike a version conflict, retrying cannot clear it.
func ErrDuplicateCode(code string) *Error {
	e := NewError(ErrCodeInvalid, ReasonDuplicateCode,
		fmt.Sprintf("job code %q is already in use", code))
	e.Details = map[string]interface{}{"code": code}
	return e
}

// ErrUnknownEmployee rejects a reference the directory cannot resolve.
func ErrUnknownEmployee(employeeID string) *Error {
	e := NewError(ErrCodeInvalid, ReasonUnknownEmployee,
		fmt.Sprintf("employee %q is not known to the directory", employeeID))
	e.Details = map[string]interface{}{"employee": employeeID}
	return e
}

// ErrUseLifecycleCommand rejects direct patches of lifecycle-owned fields.
func ErrUseLifecycleCommand(field string) *Error {
	e := NewError(ErrCodeInvalid, ReasonUseLifecycleCommand,
		fmt.Sprintf("field %q is governed by lifecycle commands", field))
	e.Details = map[string]interface{}{"field": field}
	return e
}

// ErrIncompleteSteps rejects complete() while steps remain open, naming them.
func ErrIncompleteSteps(codes []string) *Error {
	e := NewError(ErrCodePrecondition, ReasonIncompleteSteps,
		fmt.Sprintf("steps not complete: %s", strings.Join(codes, ", ")))
	e.Details = map[string]interface{}{"steps": codes}
	return e
}

// ErrRequiredItemsPending rejects completing a step with unchecked required items.
func ErrRequiredItemsPending(stepCode string, items []int) *Error {
	e := NewError(ErrCodePrecondition, ReasonRequiredItemsPending,
		fmt.Sprintf("step %q has required checklist items pending", stepCode))
	e.Details = map[string]interface{}{"step": stepCode, "items": items}
	return e
}

// ErrLeadRequired rejects starting execution with no lead assigned.
func ErrLeadRequired() *Error {
	return NewError(ErrCodePrecondition, ReasonLeadRequired,
		"job needs a lead assignment before it can start")
}

// ErrLastLeadRemoval protects a running job from losing its last assignee.
func ErrLastLeadRemoval(employeeID string) *Error {
	e := NewError(ErrCodePrecondition, ReasonLastLeadRemoval,
		"a job in progress must keep at least one assignee")
	e.Details = map[string]interface{}{"employee": employeeID}
	return e
}

// ErrStepsLocked rejects step definition edits after work has started.
func ErrStepsLocked(status JobStatus) *Error {
	e := NewError(ErrCodeInvalid, ReasonStepsLocked,
		fmt.Sprintf("step definitions are locked while job is %s", status))
	e.Details = map[string]interface{}{"status": string(status)}
	return e
}

// ErrFinanceFrozen rejects mutation of an invoiced finance snapshot.
func ErrFinanceFrozen(invoiceRef string) *Error {
	e := NewError(ErrCodePrecondition, ReasonFinanceFrozen,
		"finance snapshot is frozen by an attached invoice")
	e.Details = map[string]interface{}{"invoice": invoiceRef}
	return e
}

// ErrVersionConflict signals a lost optimistic-concurrency race.
func ErrVersionConflict(expected, actual int) *Error {
	e := NewError(ErrCodeConflict, ReasonVersionConflict,
		fmt.Sprintf("aggregate version is %d, expected %d", actual, expected))
	e.Details = map[string]interface{}{"expected": expected, "actual": actual}
	return e
}

// ErrTimeSourceUnavailable signals a failed time-entry lookup.
func ErrTimeSourceUnavailable(err error) *Error {
	return WrapError(ErrCodeUnavailable, ReasonTimeSourceUnavailable,
		"time-entry store unavailable", err)
}

// ErrExternalLookupTimeout signals an expired collaborator deadline.
func ErrExternalLookupTimeout(collaborator string, err error) *Error {
	e := WrapError(ErrCodeUnavailable, ReasonExternalLookupTimeout,
		fmt.Sprintf("%s lookup timed out", collaborator), err)
	e.Details = map[string]interface{}{"collaborator": collaborator}
	return e
}

// ErrStepNotFound signals an unknown step code.
func ErrStepNotFound(code string) *Error {
	e := NewError(ErrCodeNotFound, ReasonStepNotFound, fmt.Sprintf("step %q not found", code))
	e.Details = map[string]interface{}{"step": code}
	return e
}

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// HasReason checks the precise rejection reason regardless of code.
func HasReason(err error, reason Reason) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Reason == reason
	}
	return false
}
