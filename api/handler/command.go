package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fieldops/backend/api/transport"
	"github.com/fieldops/backend/domain"
	"github.com/fieldops/backend/pkg/httpcontext"
	"github.com/fieldops/backend/usecase"
)

type CommandHandler struct {
	baseHandler
	dispatcher *usecase.Dispatcher
}

// NewCommandHandler wires the lifecycle/field command surface.
func NewCommandHandler(dispatcher *usecase.Dispatcher, adapter *httpcontext.Adapter, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dispatcher:  dispatcher,
	}
}

// @Summary Execute job command
// @Tags jobs
// @Router /api/v1/jobs/{id}/commands/{name} [post]
func (h *CommandHandler) Execute(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	name, _ := ctx.UserValue("name").(string)
	if id == "" || name == "" {
		h.respondError(ctx, domain.ErrInvalidInput)
		return
	}

	var req transport.CommandRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.respondError(ctx, domain.ErrInvalidInput)
			return
		}
	}
	args := req.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	job, buffered, err := h.dispatcher.Execute(stdCtx, id, name, args)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if buffered {
		h.respondJSON(ctx, http.StatusAccepted, transport.NewAccepted())
		return
	}
	h.respondSuccess(ctx, http.StatusOK, job)
}
