package domain

import "time"

// JobStatus enumerates the lifecycle states of a job.
type JobStatus string

const (
	StatusDraft      JobStatus = "draft"
	StatusScheduled  JobStatus = "scheduled"
	StatusInProgress JobStatus = "in_progress"
	StatusPaused     JobStatus = "paused"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// JobSource describes how a job came into existence.
type JobSource string

const (
	SourceManual     JobSource = "manual"
	SourceRecurrence JobSource = "recurrence"
	SourceContract   JobSource = "contract"
	SourceAdhoc      JobSource = "adhoc"
)

// JobPriority orders jobs on the dispatch board.
type JobPriority string

const (
	PriorityLow      JobPriority = "low"
	PriorityNormal   JobPriority = "normal"
	PriorityHigh     JobPriority = "high"
	PriorityCritical JobPriority = "critical"
)

// Rank returns a sortable weight, higher is more urgent.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// AssignmentRole distinguishes the responsible lead from supporting members.
type AssignmentRole string

const (
	RoleLead   AssignmentRole = "lead"
	RoleMember AssignmentRole = "member"
)

// StepType classifies a unit of work within a job.
type StepType string

const (
	StepTask       StepType = "task"
	StepInspection StepType = "inspection"
	StepSafety     StepType = "safety"
	StepHandover   StepType = "handover"
)

// ChargeTarget says who absorbs a material cost.
type ChargeTarget string

const (
	ChargeExpense  ChargeTarget = "expense"
	ChargeCustomer ChargeTarget = "customer"
	ChargeInternal ChargeTarget = "internal"
)

// Schedule holds the planned window and the actual execution timestamps.
// Actual timestamps are written exclusively by lifecycle commands.
type Schedule struct {
	PlannedStart *time.Time `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ResumedAt   *time.Time `json:"resumed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// AccruedMinutes is the sum of closed in-progress intervals. Paused
	// spans never count. Maintained by pause/complete commands only.
	AccruedMinutes int `json:"accrued_minutes"`

	ActualDurationMinutes *int  `json:"actual_duration_minutes,omitempty"`
	OnTime                *bool `json:"on_time,omitempty"`
}

// OpenIntervalStart returns the start of the currently running in-progress
// interval, or nil when the job is not actively running.
func (s *Schedule) OpenIntervalStart() *time.Time {
	if s == nil || s.StartedAt == nil {
		return nil
	}
	if s.ResumedAt != nil && (s.PausedAt == nil || !s.ResumedAt.Before(*s.PausedAt)) {
		return s.ResumedAt
	}
	if s.PausedAt == nil {
		return s.StartedAt
	}
	return nil
}

// Assignment binds an employee to a job. ActualMinutes is derived from the
// external time-entry store and must never be accepted from a client.
type Assignment struct {
	EmployeeRef    Ref            `json:"employee_ref"`
	Role           AssignmentRole `json:"role"`
	PlannedMinutes int            `json:"planned_minutes"`
	ActualMinutes  int            `json:"actual_minutes"`
	TimeEntryRefs  []string       `json:"time_entry_refs,omitempty"`
}

// ChecklistItem is one gate inside a step.
type ChecklistItem struct {
	Text      string   `json:"text"`
	Required  bool     `json:"required"`
	Checked   bool     `json:"checked"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// QualityResult is a typed inspection outcome recorded against a step.
type QualityResult struct {
	Key     string   `json:"key"`
	Passed  *bool    `json:"passed,omitempty"`
	Numeric *float64 `json:"numeric,omitempty"`
}

// StepResult is an ordered unit of work with its checklist and quality gates.
type StepResult struct {
	StepCode         string          `json:"step_code"`
	Type             StepType        `json:"type"`
	Checklist        []ChecklistItem `json:"checklist,omitempty"`
	Quality          []QualityResult `json:"quality,omitempty"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	ActualMinutes    int             `json:"actual_minutes"`
	Completed        bool            `json:"completed"`
}

// PendingRequired lists the indexes of required checklist items that are
// still unchecked.
func (s *StepResult) PendingRequired() []int {
	var pending []int
	for i, item := range s.Checklist {
		if item.Required && !item.Checked {
			pending = append(pending, i)
		}
	}
	return pending
}

// MaterialUsage records a consumable charged against the job. TotalCost is
// always quantity*cost_per_unit, recomputed by the ledger on every write.
type MaterialUsage struct {
	ID          string       `json:"id"`
	ItemRef     Ref          `json:"item_ref,omitempty"`
	SKU         string       `json:"sku,omitempty"`
	Name        string       `json:"name,omitempty"`
	Quantity    float64      `json:"quantity"`
	Unit        string       `json:"unit,omitempty"`
	CostPerUnit float64      `json:"cost_per_unit"`
	Currency    string       `json:"currency,omitempty"`
	TotalCost   float64      `json:"total_cost"`
	ChargeTo    ChargeTarget `json:"charge_to"`
}

// ComputeTotal derives the line total from quantity and unit cost.
func (u MaterialUsage) ComputeTotal() float64 {
	return u.Quantity * u.CostPerUnit
}

// Signature captures an on-site sign-off.
type Signature struct {
	Name      string     `json:"name"`
	SignerRef Ref        `json:"signer_ref,omitempty"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
}

// DeliverableResult aggregates the evidence produced during execution.
type DeliverableResult struct {
	BeforePhotos        []string   `json:"before_photos,omitempty"`
	AfterPhotos         []string   `json:"after_photos,omitempty"`
	CustomerSignature   *Signature `json:"customer_signature,omitempty"`
	SupervisorSignature *Signature `json:"supervisor_signature,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	Attachments         []string   `json:"attachments,omitempty"`
}

// JobFinance is the billing snapshot. Once an invoice reference is attached
// the snapshot numbers are immutable.
type JobFinance struct {
	Billable               bool    `json:"billable"`
	RevenueAmountSnapshot  float64 `json:"revenue_amount_snapshot"`
	LaborCostSnapshot      float64 `json:"labor_cost_snapshot"`
	MaterialCostSnapshot   float64 `json:"material_cost_snapshot"`
	Frozen                 bool    `json:"frozen"`
	InvoiceRef             string  `json:"invoice_ref,omitempty"`
	InvoiceLineID          string  `json:"invoice_line_id,omitempty"`
}

// Invoiced reports whether the snapshot has been attached to an invoice.
func (f *JobFinance) Invoiced() bool {
	return f != nil && f.InvoiceRef != ""
}

// JobAggregate is one field-service work order. It is mutated exclusively
// through lifecycle commands and persisted as a whole with optimistic
// concurrency on Version.
type JobAggregate struct {
	ID       string            `json:"id"`
	Tenant   string            `json:"tenant"`
	Code     string            `json:"code"`
	Title    map[string]string `json:"title,omitempty"`
	Descr    map[string]string `json:"description,omitempty"`
	Source   JobSource         `json:"source"`
	Status   JobStatus         `json:"status"`
	Priority JobPriority       `json:"priority"`
	Tags     []string          `json:"tags,omitempty"`
	IsActive bool              `json:"is_active"`

	PauseReason  string `json:"pause_reason,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	ApartmentRef Ref `json:"apartment_ref,omitempty"`
	ServiceRef   Ref `json:"service_ref,omitempty"`
	ContractRef  Ref `json:"contract_ref,omitempty"`
	CategoryRef  Ref `json:"category_ref,omitempty"`

	Schedule     Schedule           `json:"schedule"`
	Assignments  []Assignment       `json:"assignments,omitempty"`
	Steps        []StepResult       `json:"steps,omitempty"`
	Materials    []MaterialUsage    `json:"materials,omitempty"`
	Deliverables *DeliverableResult `json:"deliverables,omitempty"`
	Finance      *JobFinance        `json:"finance,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch refreshes the update timestamp, setting CreatedAt on first use.
func (j *JobAggregate) Touch() {
	if j == nil {
		return
	}
	j.UpdatedAt = time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = j.UpdatedAt
	}
}

// Lead returns the lead assignment, or nil when none exists.
func (j *JobAggregate) Lead() *Assignment {
	for i := range j.Assignments {
		if j.Assignments[i].Role == RoleLead {
			return &j.Assignments[i]
		}
	}
	return nil
}

// FindAssignment returns the assignment for the given employee id.
func (j *JobAggregate) FindAssignment(employeeID string) *Assignment {
	for i := range j.Assignments {
		if j.Assignments[i].EmployeeRef.ID == employeeID {
			return &j.Assignments[i]
		}
	}
	return nil
}

// FindStep returns the step with the given code, or nil.
func (j *JobAggregate) FindStep(code string) *StepResult {
	for i := range j.Steps {
		if j.Steps[i].StepCode == code {
			return &j.Steps[i]
		}
	}
	return nil
}

// IncompleteStepCodes lists steps that are not completed or still have
// required checklist items unchecked.
func (j *JobAggregate) IncompleteStepCodes() []string {
	var codes []string
	for i := range j.Steps {
		if !j.Steps[i].Completed || len(j.Steps[i].PendingRequired()) > 0 {
			codes = append(codes, j.Steps[i].StepCode)
		}
	}
	return codes
}

// MaterialCostTotal sums all recomputed line totals.
func (j *JobAggregate) MaterialCostTotal() float64 {
	var total float64
	for _, u := range j.Materials {
		total += u.ComputeTotal()
	}
	return total
}

// CustomerChargeableTotal sums line totals flagged for customer billing.
func (j *JobAggregate) CustomerChargeableTotal() float64 {
	var total float64
	for _, u := range j.Materials {
		if u.ChargeTo == ChargeCustomer {
			total += u.ComputeTotal()
		}
	}
	return total
}

// DurationMinutes returns the accrued in-progress minutes including the
// currently open interval measured against now.
func (j *JobAggregate) DurationMinutes(now time.Time) int {
	total := j.Schedule.AccruedMinutes
	if open := j.Schedule.OpenIntervalStart(); open != nil && j.Status == StatusInProgress {
		total += int(now.Sub(*open).Minutes())
	}
	return total
}
