package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classdesk-api/internal/config"
	"github.com/noah-isme/classdesk-api/internal/handler"
	"github.com/noah-isme/classdesk-api/internal/middleware"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	DeliveryHandler   *handler.DeliveryHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AssignmentHandler != nil {
		classes := api.Group("/classes", jwtMiddleware)
		deps.AssignmentHandler.RegisterClassRoutes(classes)

		assignments := api.Group("/assignments", jwtMiddleware)
		deps.AssignmentHandler.Register(assignments)

		if deps.SubmissionHandler != nil {
			deps.SubmissionHandler.RegisterAssignmentRoutes(assignments)

			submissions := api.Group("/submissions", jwtMiddleware)
			deps.SubmissionHandler.Register(submissions)
		}
	}

	if deps.ActivityHandler != nil {
		activities := api.Group("/activities", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.ActivityHandler.Register(activities)
	}

	if deps.DeliveryHandler != nil {
		internal := api.Group("/internal/deliveries", middleware.CronSecret(cfg.CronSecret))
		deps.DeliveryHandler.Register(internal)
	}
}
