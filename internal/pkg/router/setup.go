package router

import (
	"github.com/ManuelReschke/SubGate/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers the routers mount.
type Dependencies struct {
	Payments *controllers.PaymentController
	// Limiter stores rate limiter counters. Nil keeps them in memory.
	Limiter fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Ops routes go first so they stay outside the API rate limiter.
	setup(app, NewOpsRouter(), NewWebhookRouter(deps.Payments), NewApiRouter(deps.Payments, deps.Limiter))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
