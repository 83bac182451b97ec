package controllers

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/billing"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const confirmTimeout = 30 * time.Second

// PaymentService is the part of the billing service the HTTP layer uses.
type PaymentService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*billing.Outcome, error)
	ConfirmPayment(ctx context.Context, paymentID string) (*billing.Outcome, error)
	PaymentStatus(ctx context.Context, paymentID string) (*billing.StatusView, error)
}

// PaymentController serves the gateway webhook and the operator endpoints.
type PaymentController struct {
	Service           PaymentService
	ConfirmSecret     string
	Production        bool
	ProcessingTimeout time.Duration

	validate *validator.Validate
}

func NewPaymentController(svc PaymentService, cfg billing.Config) *PaymentController {
	return &PaymentController{
		Service:           svc,
		ConfirmSecret:     cfg.ConfirmSecret,
		Production:        cfg.Production,
		ProcessingTimeout: cfg.ProcessingTimeout,
		validate:          validator.New(),
	}
}

// ConfirmRequest is accepted as JSON body or query string.
type ConfirmRequest struct {
	PaymentID string `json:"payment_id" query:"payment_id" form:"payment_id" validate:"required,max=64"`
	Secret    string `json:"secret" query:"secret" form:"secret" validate:"max=256"`
}

// HandleNOWPaymentsWebhook processes a gateway IPN. Once accepted the event is
// processed to completion even if the gateway disconnects.
func (pc *PaymentController) HandleNOWPaymentsWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("x-nowpayments-sig"))

	timeout := pc.ProcessingTimeout
	if timeout <= 0 {
		timeout = billing.DefaultProcessingTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), timeout)
	defer cancel()

	out, err := pc.Service.HandleWebhook(ctx, rawBody, signature)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": string(out.Status)})
	case errors.Is(err, billing.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrSecretNotConfigured):
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": "ignored"})
	case errors.Is(err, billing.ErrPaymentNotFound):
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": "payment_not_found"})
	case errors.Is(err, billing.ErrInvalidPayload):
		// acknowledged so the gateway stops redelivering a body that will never parse
		log.Errorf("[Webhook] unparseable payload acknowledged: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "status": "invalid_payload"})
	default:
		log.Errorf("[Webhook] processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
}

// HandleConfirmPayment re-checks a payment with the gateway on operator request.
func (pc *PaymentController) HandleConfirmPayment(c *fiber.Ctx) error {
	var req ConfirmRequest
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
	}
	if req.PaymentID == "" || req.Secret == "" {
		var q ConfirmRequest
		if err := c.QueryParser(&q); err == nil {
			if req.PaymentID == "" {
				req.PaymentID = q.PaymentID
			}
			if req.Secret == "" {
				req.Secret = q.Secret
			}
		}
	}
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.Secret == "" {
		req.Secret = c.Get("X-Confirm-Secret")
	}

	if err := pc.requestValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "details": err.Error()})
	}
	if !pc.authorized(req.Secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), confirmTimeout)
	defer cancel()

	out, err := pc.Service.ConfirmPayment(ctx, req.PaymentID)
	if err != nil {
		return pc.confirmError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":           true,
		"payment_id":        req.PaymentID,
		"already_completed": out.AlreadyCompleted,
		"skipped":           out.Skipped,
	})
}

// HandlePaymentStatus returns the stored and live state of a payment.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	secret := c.Query("secret")
	if secret == "" {
		secret = c.Get("X-Confirm-Secret")
	}
	if !pc.authorized(secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), confirmTimeout)
	defer cancel()

	view, err := pc.Service.PaymentStatus(ctx, c.Params("payment_id"))
	if err != nil {
		var nf *billing.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found", "attempted": nf.Attempted})
		}
		log.Errorf("[Billing] payment status failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

func (pc *PaymentController) confirmError(c *fiber.Ctx, err error) error {
	var notFinished *billing.NotFinishedError
	var notFound *billing.NotFoundError
	switch {
	case errors.As(err, &notFinished):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":          "payment_not_finished",
			"payment_status": notFinished.Status,
		})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":     "payment_not_found_in_store",
			"attempted": notFound.Attempted,
		})
	default:
		log.Errorf("[Billing] manual confirm failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "confirm_failed"})
	}
}

// authorized checks the operator secret. Without a configured secret the
// endpoints are only open outside production.
func (pc *PaymentController) authorized(secret string) bool {
	if pc.ConfirmSecret == "" {
		return !pc.Production
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(pc.ConfirmSecret)) == 1
}

func (pc *PaymentController) requestValidator() *validator.Validate {
	if pc.validate == nil {
		pc.validate = validator.New()
	}
	return pc.validate
}
