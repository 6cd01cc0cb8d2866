package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fieldops/backend/api/handler"
	"github.com/fieldops/backend/internal/middleware"
)

type Handlers struct {
	Job     *apiHandler.JobHandler
	Command *apiHandler.CommandHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Job CRUD
	r.POST("/api/v1/jobs", authMiddleware(handlers.Job.Create))
	r.GET("/api/v1/jobs", authMiddleware(handlers.Job.List))
	r.GET("/api/v1/jobs/{id}", authMiddleware(handlers.Job.Get))
	r.PATCH("/api/v1/jobs/{id}", authMiddleware(handlers.Job.Update))

	// Administrative delete is dispatcher-only.
	r.DELETE("/api/v1/jobs/{id}",
		authMiddleware(middleware.RequireRole(middleware.RoleDispatcher, handlers.Job.Delete)))

	// Lifecycle and field commands
	r.POST("/api/v1/jobs/{id}/commands/{name}", authMiddleware(handlers.Command.Execute))

	return r
}
