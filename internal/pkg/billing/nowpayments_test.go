package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNOWPaymentsClient_FetchPaymentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment/5077", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"payment_id":5077,"invoice_id":6200,"payment_status":"finished","actually_paid":"30"}`))
	}))
	defer srv.Close()

	c := &NOWPaymentsClient{APIKey: "key", APIBaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()}
	ev, err := c.FetchPaymentStatus(context.Background(), " 5077 ")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, ev.Status())
	assert.Equal(t, "6200", ev.InvoiceID.String())
	assert.InDelta(t, 30, float64(ev.ActuallyPaid), 1e-9)
}

func TestNOWPaymentsClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/missing-status":
			_, _ = w.Write([]byte(`{"payment_id":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	defer srv.Close()

	c := &NOWPaymentsClient{APIKey: "key", APIBaseURL: srv.URL, HTTPClient: srv.Client()}

	_, err := c.FetchPaymentStatus(context.Background(), "404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")

	_, err = c.FetchPaymentStatus(context.Background(), "missing-status")
	assert.Error(t, err)

	_, err = (&NOWPaymentsClient{APIBaseURL: srv.URL}).FetchPaymentStatus(context.Background(), "1")
	assert.Error(t, err)
}
