package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/VeloBillHQ/VeloBill/app/controllers"
)

type PublicRouter struct {
}

func (h PublicRouter) InstallRouter(app *fiber.App) {
	// Tokenized invoice surface for clients without an account
	app.Get("/invoice/:token", controllers.HandlePublicInvoiceView)
	app.Post("/invoice/:token/pay", controllers.HandlePublicInvoicePay)
}

func NewPublicRouter() *PublicRouter {
	return &PublicRouter{}
}
