package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/VeloBillHQ/VeloBill/app/controllers"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// Payment provider callbacks
	api.Post("/webhook/stripe", controllers.HandleStripeWebhook)

	// Code-event intake and background status
	api.Post("/queue/messages", controllers.HandleQueueEnqueue)
	api.Get("/queue/status", controllers.HandleQueueStatus)

	// Payment reminders
	api.Post("/invoices/:id/reminder", controllers.HandleScheduleReminder)
	api.Delete("/invoices/:id/reminder", controllers.HandleCancelReminder)

	// Business profile
	api.Get("/settings", controllers.HandleGetSettings)
	api.Post("/settings", controllers.HandleUpdateSettings)
	api.Post("/settings/logo", controllers.HandleLogoUpload)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
