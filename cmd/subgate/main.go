package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/SubGate/app/controllers"
	"github.com/ManuelReschke/SubGate/app/repository"
	"github.com/ManuelReschke/SubGate/internal/pkg/access"
	"github.com/ManuelReschke/SubGate/internal/pkg/billing"
	"github.com/ManuelReschke/SubGate/internal/pkg/cache"
	"github.com/ManuelReschke/SubGate/internal/pkg/database"
	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/ManuelReschke/SubGate/internal/pkg/mail"
	"github.com/ManuelReschke/SubGate/internal/pkg/router"
	"github.com/ManuelReschke/SubGate/internal/pkg/telegram"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := billing.ConfigFromEnv()
	if cfg.Production && cfg.IPNSecret == "" {
		log.Warn("[Billing] NOWPAYMENTS_IPN_SECRET is not set, webhooks will be ignored")
	}
	store := cache.NewStoreFromEnv(5 * time.Minute)

	repository.InitializeFactory(database.GetDB())
	factory := repository.GetGlobalFactory()

	svc := billing.NewServiceFromDB(database.GetDB(), billing.Dependencies{
		Verifier: cfg.Verifier(),
		Gateway:  billing.NewNOWPaymentsClientFromEnv(),
		Grants:   newGrants(cfg),
		Notifier: &billing.Notifier{
			Sender:        newMessageSender(),
			Operators:     factory.GetOperatorDirectory(store),
			ChatInviteURL: cfg.ChatInviteURL,
		},
		Cache: store,
	})

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	// ROUTER
	deps := router.Dependencies{Payments: controllers.NewPaymentController(svc, cfg)}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if cache.Available(ctx) {
		deps.Limiter = cache.NewLimiterStorage()
	}
	cancel()
	router.InstallRouter(app, deps)

	return app
}

// newGrants wires the access systems that are configured. An unconfigured
// system stays nil so the grant is skipped and its flag left untouched.
func newGrants(cfg billing.Config) *billing.Grants {
	grants := &billing.Grants{Timeout: cfg.GrantTimeout}

	if discord := access.NewDiscordClientFromEnv(); discord.Configured() {
		grants.Chat = discord
	} else {
		log.Warn("[Access] discord is not configured, chat role grants are disabled")
	}

	if kb := access.NewKnowledgeBaseClientFromEnv(); kb.Configured() {
		grants.KnowledgeBase = kb
	} else {
		log.Warn("[Access] knowledge base is not configured, its grants are disabled")
	}

	mailer := mail.NewSMTPMailerFromEnv()
	storageCfg, err := access.LoadFileStorageConfig()
	switch {
	case err != nil:
		log.Warnf("[Access] file storage grants are disabled: %v", err)
	case !mailer.Configured():
		log.Warn("[Access] SMTP is not configured, file storage grants are disabled")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := access.NewFileStorageClient(ctx, storageCfg, mailer)
		if err != nil {
			log.Errorf("[Access] file storage client: %v", err)
		} else {
			grants.FileStorage = client
		}
	}

	return grants
}

func newMessageSender() billing.MessageSender {
	sender, err := telegram.NewSenderFromEnv()
	if err != nil {
		log.Warnf("[Telegram] notifications are disabled: %v", err)
		return nil
	}
	return sender
}

func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/subgate to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	log.Warn("OpenAPI document not found, /docs/api/v1 is disabled")
	return ""
}
