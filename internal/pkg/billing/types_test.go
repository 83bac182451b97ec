package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPN_NumericAndStringIDs(t *testing.T) {
	ev, err := ParseIPN([]byte(`{"payment_id":4522625843,"invoice_id":"6200","order_id":null,"payment_status":"Finished","price_amount":"30.5","actually_paid":30.5}`))
	require.NoError(t, err)

	assert.Equal(t, "4522625843", ev.PaymentID.String())
	assert.Equal(t, "6200", ev.InvoiceID.String())
	assert.Empty(t, ev.OrderID.String())
	assert.Equal(t, StatusFinished, ev.Status())
	assert.InDelta(t, 30.5, float64(ev.PriceAmount), 1e-9)
	assert.InDelta(t, 30.5, float64(ev.ActuallyPaid), 1e-9)
}

func TestParseIPN_AlternativeKeys(t *testing.T) {
	ev, err := ParseIPN([]byte(`{"paymentId":"p1","iid":77,"orderId":"o1","status":"waiting","payCurrency":"btc"}`))
	require.NoError(t, err)

	assert.Equal(t, Identifiers{InvoiceID: "77", OrderID: "o1", GatewayPaymentID: "p1"}, ev.Identifiers())
	assert.Equal(t, StatusWaiting, ev.Status())
	assert.Equal(t, "btc", ev.PayCurrency)
}

func TestParseIPN_Invalid(t *testing.T) {
	_, err := ParseIPN([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseIPN([]byte(`{"price_amount":"abc"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestIPNEvent_Snapshot(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := &IPNEvent{PaymentID: "1", InvoiceID: "2", OrderID: "3", PaymentStatus: " partially_paid ", PayCurrency: "USDT", PriceAmount: 10, ActuallyPaid: 4}

	snap := ev.Snapshot(at)
	assert.Equal(t, "partially_paid", snap.LastStatus)
	assert.Equal(t, "usdt", snap.PayCurrency)
	assert.Equal(t, at, *snap.UpdatedAt)
	assert.InDelta(t, 6, ev.Remaining(), 1e-9)
}

func TestHandlerFor(t *testing.T) {
	cases := map[string]Handler{
		"finished":       HandlerSuccess,
		"FINISHED":       HandlerSuccess,
		" failed ":       HandlerFailure,
		"expired":        HandlerFailure,
		"refunded":       HandlerRefund,
		"partially_paid": HandlerPartial,
		"waiting":        HandlerInProgress,
		"confirming":     HandlerInProgress,
		"confirmed":      HandlerInProgress,
		"sending":        HandlerInProgress,
		"":               HandlerIgnore,
		"chargeback":     HandlerIgnore,
	}
	for raw, want := range cases {
		assert.Equal(t, want, HandlerFor(NormalizeStatus(raw)), raw)
	}
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Время оплаты истекло", failureMessage(StatusExpired))
	assert.Equal(t, "Платеж не прошел", failureMessage(StatusFailed))
}
