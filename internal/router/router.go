package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	PromptHandler     *handler.PromptHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
	GradeRateLimit    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.EvaluationHandler != nil {
		var gradeMiddleware []fiber.Handler
		if deps.GradeRateLimit != nil {
			gradeMiddleware = append(gradeMiddleware, deps.GradeRateLimit)
		}
		deps.EvaluationHandler.Register(api.Group("/evaluations", jwtMiddleware), gradeMiddleware...)
	}

	// Prompts are answered by graders only
	if deps.PromptHandler != nil {
		deps.PromptHandler.Register(api.Group("/prompts", jwtMiddleware, middleware.RequireStaff()))
	}
}
