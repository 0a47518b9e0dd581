package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bilgisen/feedcaster/internal/middleware"
	"github.com/bilgisen/feedcaster/internal/models"
)

// NewApp builds the fiber application with the shared error handler.
func NewApp(cfg fiber.Config) *fiber.App {
	cfg.ErrorHandler = middleware.ErrorHandler
	cfg.DisableStartupMessage = true
	return fiber.New(cfg)
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers, adminKey string) {
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	app.Get("/health", h.HealthCheck)

	api := app.Group("/api/v1")
	api.Get("/health", h.HealthCheck)

	admin := api.Group("/admin", middleware.AdminOnly(adminKey))
	{
		admin.Get("/channels", h.ListChannels)
		admin.Post("/channels", middleware.ValidateBody[createChannelRequest](), h.CreateChannel)
		admin.Get("/channels/:id", h.GetChannel)
		admin.Patch("/channels/:id", middleware.ValidateBody[models.ChannelUpdate](), h.UpdateChannel)
		admin.Delete("/channels/:id", h.DeleteChannel)
		admin.Post("/channels/:id/toggle", h.ToggleChannel)

		admin.Get("/channels/:id/sources", h.ListSources)
		admin.Post("/channels/:id/sources", middleware.ValidateBody[addSourceRequest](), h.AddSource)
		admin.Delete("/sources/:id", h.DeleteSource)

		admin.Get("/channels/:id/queue", h.ListQueue)
		admin.Delete("/channels/:id/queue", h.ClearQueue)
		admin.Post("/channels/:id/manual-post", h.ManualPost)

		admin.Get("/moderation", h.ModerationQueue)
		admin.Post("/posts/:id/approve", h.ApprovePost)
		admin.Post("/posts/:id/reject", h.RejectPost)
		admin.Patch("/posts/:id", middleware.ValidateBody[editPostRequest](), h.EditPost)
		admin.Delete("/posts/:id", h.DeletePost)

		admin.Post("/cycles/:name", h.RunCycle)
		admin.Post("/discover", middleware.ValidateBody[discoverRequest](), h.Discover)
	}

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
