package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ManuelReschke/SubGate/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaymentService struct {
	webhookOut *billing.Outcome
	webhookErr error
	confirmOut *billing.Outcome
	confirmErr error
	statusView *billing.StatusView
	statusErr  error

	gotBody      string
	gotSignature string
	gotPaymentID string
	ctxErr       error
}

func (f *fakePaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*billing.Outcome, error) {
	f.gotBody, f.gotSignature = string(body), signature
	f.ctxErr = ctx.Err()
	return f.webhookOut, f.webhookErr
}

func (f *fakePaymentService) ConfirmPayment(_ context.Context, paymentID string) (*billing.Outcome, error) {
	f.gotPaymentID = paymentID
	return f.confirmOut, f.confirmErr
}

func (f *fakePaymentService) PaymentStatus(_ context.Context, paymentID string) (*billing.StatusView, error) {
	f.gotPaymentID = paymentID
	return f.statusView, f.statusErr
}

func newPaymentTestApp(svc *fakePaymentService, secret string, production bool) *fiber.App {
	pc := NewPaymentController(svc, billing.Config{ConfirmSecret: secret, Production: production})
	app := fiber.New()
	app.Post("/webhooks/nowpayments", pc.HandleNOWPaymentsWebhook)
	app.Post("/api/v1/payments/confirm", pc.HandleConfirmPayment)
	app.Get("/api/v1/payments/confirm", pc.HandleConfirmPayment)
	app.Get("/api/v1/payments/:payment_id/status", pc.HandlePaymentStatus)
	return app
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/nowpayments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-nowpayments-sig", "abc")
	return req
}

func TestWebhook_Success(t *testing.T) {
	svc := &fakePaymentService{webhookOut: &billing.Outcome{Status: billing.StatusFinished}}
	app := newPaymentTestApp(svc, "", true)

	code, body := doJSON(t, app, webhookRequest(`{"payment_status":"Finished"}`))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "finished", body["status"])
	assert.Equal(t, `{"payment_status":"Finished"}`, svc.gotBody)
	assert.Equal(t, "abc", svc.gotSignature)
	assert.NoError(t, svc.ctxErr)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status string
		errKey string
	}{
		{"invalid signature", billing.ErrInvalidSignature, http.StatusUnauthorized, "", "invalid_signature"},
		{"secret missing", billing.ErrSecretNotConfigured, http.StatusOK, "ignored", ""},
		{"not found", &billing.NotFoundError{Attempted: billing.Identifiers{InvoiceID: "x"}}, http.StatusOK, "payment_not_found", ""},
		{"malformed", billing.ErrInvalidPayload, http.StatusOK, "invalid_payload", ""},
		{"unhandled", errors.New("db down"), http.StatusInternalServerError, "", "processing_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakePaymentService{webhookOut: &billing.Outcome{}, webhookErr: tc.err}
			app := newPaymentTestApp(svc, "", true)

			code, body := doJSON(t, app, webhookRequest(`{}`))

			assert.Equal(t, tc.code, code)
			if tc.status != "" {
				assert.Equal(t, tc.status, body["status"])
				assert.Equal(t, true, body["received"])
			}
			if tc.errKey != "" {
				assert.Equal(t, tc.errKey, body["error"])
			}
		})
	}
}

func TestConfirm_JSONBody(t *testing.T) {
	svc := &fakePaymentService{confirmOut: &billing.Outcome{}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm", strings.NewReader(`{"payment_id":"5077","secret":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["already_completed"])
	assert.Equal(t, "5077", svc.gotPaymentID)
}

func TestConfirm_QueryAndAlreadyCompleted(t *testing.T) {
	svc := &fakePaymentService{confirmOut: &billing.Outcome{AlreadyCompleted: true}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["already_completed"])
	assert.Equal(t, "42", svc.gotPaymentID)
}

func TestConfirm_RefundedPaymentReportsSkipped(t *testing.T) {
	svc := &fakePaymentService{confirmOut: &billing.Outcome{Skipped: true}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, false, body["already_completed"])
}

func TestConfirm_RejectsWrongSecret(t *testing.T) {
	svc := &fakePaymentService{confirmOut: &billing.Outcome{}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=nope", nil)
	code, _ := doJSON(t, app, req)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Empty(t, svc.gotPaymentID)
}

func TestConfirm_NoSecretConfigured(t *testing.T) {
	req := func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42", nil)
	}

	code, _ := doJSON(t, newPaymentTestApp(&fakePaymentService{confirmOut: &billing.Outcome{}}, "", true), req())
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, newPaymentTestApp(&fakePaymentService{confirmOut: &billing.Outcome{}}, "", false), req())
	assert.Equal(t, http.StatusOK, code)
}

func TestConfirm_MissingPaymentID(t *testing.T) {
	app := newPaymentTestApp(&fakePaymentService{}, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestConfirm_NotFinished(t *testing.T) {
	svc := &fakePaymentService{confirmErr: &billing.NotFinishedError{PaymentID: "42", Status: "waiting"}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "payment_not_finished", body["error"])
	assert.Equal(t, "waiting", body["payment_status"])
}

func TestConfirm_NotFoundInStore(t *testing.T) {
	svc := &fakePaymentService{confirmErr: &billing.NotFoundError{
		Attempted: billing.Identifiers{ExternalID: "42", GatewayPaymentID: "42"},
		Manual:    true,
	}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "payment_not_found_in_store", body["error"])
	attempted, ok := body["attempted"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "42", attempted["external_id"])
	assert.Equal(t, "42", attempted["payment_id"])
}

func TestConfirm_GatewayFailure(t *testing.T) {
	svc := &fakePaymentService{confirmErr: errors.New("gateway timeout")}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?payment_id=42&secret=s3cret", nil)
	code, _ := doJSON(t, app, req)

	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestPaymentStatus(t *testing.T) {
	svc := &fakePaymentService{statusView: &billing.StatusView{PaymentID: "42", LocalStatus: "pending", GatewayStatus: "confirming"}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/42/status?secret=s3cret", nil)
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirming", body["gateway_status"])
	assert.Equal(t, "42", svc.gotPaymentID)
}

func TestPaymentStatus_NotFound(t *testing.T) {
	svc := &fakePaymentService{statusErr: &billing.NotFoundError{}}
	app := newPaymentTestApp(svc, "s3cret", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/42/status", nil)
	req.Header.Set("X-Confirm-Secret", "s3cret")
	code, body := doJSON(t, app, req)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "payment_not_found", body["error"])
}
