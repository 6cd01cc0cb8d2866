package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fieldops/backend/api/transport"
	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/pkg/httpcontext"
	"github.com/fieldops/backend/repository"
	"github.com/fieldops/backend/usecase/jobs"
)

type JobHandler struct {
	baseHandler
	engine *jobs.Engine
	query  *jobs.QueryService
}

// NewJobHandler wires the job CRUD surface.
func NewJobHandler(engine *jobs.Engine, query *jobs.QueryService, adapter *httpcontext.Adapter, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		baseHandler: newBaseHandler(adapter, logger),
		engine:      engine,
		query:       query,
	}
}

// @Summary Create job
// @Tags jobs
// @Router /api/v1/jobs [post]
func (h *JobHandler) Create(ctx *fasthttp.RequestCtx) {
	var input jobs.CreateJobInput
	if err := json.Unmarshal(ctx.PostBody(), &input); err != nil {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.engine.Create(stdCtx, input)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Get job
// @Tags jobs
// @Router /api/v1/jobs/{id} [get]
func (h *JobHandler) Get(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	job, err := h.query.Get(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, job)
}

// @Summary Update job
// @Tags jobs
// @Router /api/v1/jobs/{id} [patch]
func (h *JobHandler) Update(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	// Decode into a key map first: patching a lifecycle-owned field must
	// fail loudly, not be silently dropped.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(ctx.PostBody(), &raw); err != nil {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	if err := jobs.ValidatePatchKeys(keys); err != nil {
		h.respondError(ctx, err)
		return
	}

	var patch jobs.JobPatch
	if err := json.Unmarshal(ctx.PostBody(), &patch); err != nil {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.engine.Update(stdCtx, id, patch)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary List jobs
// @Tags jobs
// @Router /api/v1/jobs [get]
func (h *JobHandler) List(ctx *fasthttp.RequestCtx) {
	filter := parseFilter(ctx)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	page, err := h.query.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(page.Items, transport.ListMeta{
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}))
}

// @Summary Delete job (administrative)
// @Tags jobs
// @Router /api/v1/jobs/{id} [delete]
func (h *JobHandler) Delete(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.engine.AdministrativeDelete(stdCtx, id, h.actorID(ctx)); err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}

func parseFilter(ctx *fasthttp.RequestCtx) repository.JobFilter {
	args := ctx.QueryArgs()
	filter := repository.JobFilter{
		Tenant:       string(args.Peek("tenant")),
		Status:       domain.JobStatus(args.Peek("status")),
		Source:       domain.JobSource(args.Peek("source")),
		Priority:     domain.JobPriority(args.Peek("priority")),
		ApartmentRef: string(args.Peek("apartment")),
		ServiceRef:   string(args.Peek("service")),
		ContractRef:  string(args.Peek("contract")),
		EmployeeRef:  string(args.Peek("employee")),
		Query:        string(args.Peek("q")),
		Page:         parseInt(string(args.Peek("page")), 1),
		Limit:        parseInt(string(args.Peek("limit")), 50),
	}

	filter.PlannedFrom = parseTime(string(args.Peek("planned_from")))
	filter.PlannedTo = parseTime(string(args.Peek("planned_to")))
	filter.DueFrom = parseTime(string(args.Peek("due_from")))
	filter.DueTo = parseTime(string(args.Peek("due_to")))

	if active := string(args.Peek("is_active")); active != "" {
		if parsed, err := strconv.ParseBool(active); err == nil {
			filter.IsActive = &parsed
		}
	}
	return filter
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return &parsed
	}
	return nil
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
