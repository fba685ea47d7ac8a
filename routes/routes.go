package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	controller "raiseflow/controllers"
	"raiseflow/middleware"
)

type Dependencies struct {
	Sequences *controller.SequenceController
	Progress  *controller.ProgressHub

	// TriggerRateLimit is the per-minute cap on manual passes; 0 disables it.
	TriggerRateLimit int
	LimiterStorage   fiber.Storage
	Log              *logrus.Entry
}

func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	// WebSocket route for scheduler progress
	app.Get("/api/v1/sequences/progress", deps.Progress.Upgrade, websocket.New(deps.Progress.Handle))

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence engine routes
	sequences := api.Group("/sequences")
	trigger := []fiber.Handler{}
	if deps.TriggerRateLimit > 0 {
		trigger = append(trigger, middleware.TriggerRateLimiter(deps.TriggerRateLimit, deps.LimiterStorage, deps.Log))
	}
	sequences.Post("/process", append(trigger, deps.Sequences.ProcessDue)...)
	sequences.Get("/stats", deps.Sequences.GetStats)

	// Enrollment operator routes
	enrollments := api.Group("/enrollments")
	enrollments.Post("/:id/pause", deps.Sequences.PauseEnrollment)
	enrollments.Post("/:id/resume", deps.Sequences.ResumeEnrollment)
	enrollments.Post("/:id/cancel", deps.Sequences.CancelEnrollment)
	enrollments.Post("/:id/retry", deps.Sequences.RetryEnrollment)

	deps.Log.Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupAPIRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not Found",
		})
	})
}
