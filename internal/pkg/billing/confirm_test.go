package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"github.com/ManuelReschke/SubGate/internal/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmPayment_CompletesFinishedPayment(t *testing.T) {
	h := newHarness(t)
	h.gateway.events["5077"] = &IPNEvent{PaymentStatus: "finished", ActuallyPaid: 30}

	out, err := h.svc.ConfirmPayment(context.Background(), "5077")
	require.NoError(t, err)
	assert.False(t, out.AlreadyCompleted)
	assert.Equal(t, models.PaymentStatusCompleted, h.store.payment(h.paymentID).Status)

	h.store.mu.Lock()
	sources := map[string]bool{}
	for _, l := range h.store.logs {
		sources[l.Source] = true
	}
	h.store.mu.Unlock()
	assert.Equal(t, map[string]bool{models.PaymentLogSourceManual: true}, sources)
	assert.Contains(t, h.sender.to(operatorChatID)[0], "manual")

	again, err := h.svc.ConfirmPayment(context.Background(), "5077")
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	assert.Equal(t, 1, h.chat.count())
}

func TestConfirmPayment_NotFinished(t *testing.T) {
	h := newHarness(t)
	h.gateway.events["5077"] = &IPNEvent{PaymentStatus: "confirming"}

	_, err := h.svc.ConfirmPayment(context.Background(), "5077")
	var nf *NotFinishedError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "confirming", nf.Status)
	assert.ErrorIs(t, err, ErrPaymentNotFinished)
	assert.Equal(t, models.PaymentStatusPending, h.store.payment(h.paymentID).Status)
}

func TestConfirmPayment_NotFoundInStore(t *testing.T) {
	h := newHarness(t)
	h.gateway.events["424242"] = &IPNEvent{PaymentStatus: "finished"}

	_, err := h.svc.ConfirmPayment(context.Background(), "424242")
	assert.ErrorIs(t, err, ErrPaymentNotFoundInStore)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "424242", nf.Attempted.ExternalID)
	assert.Equal(t, "424242", nf.Attempted.GatewayPaymentID)
}

func TestConfirmPayment_GatewayError(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("timeout")

	_, err := h.svc.ConfirmPayment(context.Background(), "5077")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentStatus_CachesLiveStatus(t *testing.T) {
	h := newHarness(t)
	h.svc.cache = cache.NewMemoryStore(time.Minute, time.Minute)
	h.gateway.events["5077"] = &IPNEvent{PaymentStatus: "Confirming"}

	view, err := h.svc.PaymentStatus(context.Background(), "5077")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, view.LocalStatus)
	assert.Equal(t, "confirming", view.GatewayStatus)
	assert.Equal(t, "inv-1", view.Provider.InvoiceID)

	_, err = h.svc.PaymentStatus(context.Background(), "5077")
	require.NoError(t, err)
	assert.Equal(t, 1, h.gateway.calls)
}

func TestPaymentStatus_GatewayErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("unreachable")

	view, err := h.svc.PaymentStatus(context.Background(), "5077")
	require.NoError(t, err)
	assert.Equal(t, "unreachable", view.GatewayError)
	assert.Empty(t, view.GatewayStatus)
}

func TestPaymentStatus_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.PaymentStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
