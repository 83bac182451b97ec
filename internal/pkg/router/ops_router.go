package router

import (
	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OpsRouter struct {
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// fiber monitor is only mounted when credentials are configured
	user := env.GetEnv("MONITOR_USER", "")
	password := env.GetEnv("MONITOR_PASSWORD", "")
	if user != "" && password != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{user: password},
		}), monitor.New())
	}
}

func NewOpsRouter() *OpsRouter {
	return &OpsRouter{}
}
