package router

import (
	"time"

	"github.com/ManuelReschke/SubGate/app/controllers"
	"github.com/ManuelReschke/SubGate/internal/pkg/env"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	payments *controllers.PaymentController
	storage  fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetInt("API_RATE_LIMIT", 30),
		Expiration: time.Minute,
		Storage:    h.storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/payments/confirm", h.payments.HandleConfirmPayment)
	v1.Get("/payments/confirm", h.payments.HandleConfirmPayment)
	v1.Get("/payments/:payment_id/status", h.payments.HandlePaymentStatus)
}

func NewApiRouter(payments *controllers.PaymentController, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{payments: payments, storage: storage}
}
