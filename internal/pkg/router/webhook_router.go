package router

import (
	"github.com/ManuelReschke/SubGate/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// WebhookRouter mounts gateway callbacks. They are authenticated by signature
// and never rate limited, since the gateway retries rejected deliveries.
type WebhookRouter struct {
	payments *controllers.PaymentController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	hooks := app.Group("/webhooks")
	hooks.Post("/nowpayments", h.payments.HandleNOWPaymentsWebhook)
}

func NewWebhookRouter(payments *controllers.PaymentController) *WebhookRouter {
	return &WebhookRouter{payments: payments}
}
