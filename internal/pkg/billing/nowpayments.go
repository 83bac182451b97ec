package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
)

const defaultNOWPaymentsAPIBaseURL = "https://api.nowpayments.io/v1"

// StatusFetcher returns the gateway's authoritative view of a payment.
type StatusFetcher interface {
	FetchPaymentStatus(ctx context.Context, paymentID string) (*IPNEvent, error)
}

type NOWPaymentsClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewNOWPaymentsClientFromEnv() *NOWPaymentsClient {
	return &NOWPaymentsClient{
		APIKey:     strings.TrimSpace(env.GetEnv("NOWPAYMENTS_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("NOWPAYMENTS_API_BASE_URL", defaultNOWPaymentsAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchPaymentStatus calls GET /payment/{id}. The response carries the same
// fields as an IPN body, so it decodes into IPNEvent.
func (c *NOWPaymentsClient) FetchPaymentStatus(ctx context.Context, paymentID string) (*IPNEvent, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("NOWPAYMENTS_API_KEY is not configured")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment id is required")
	}

	baseURL := strings.TrimRight(c.APIBaseURL, "/")
	u, err := url.Parse(baseURL + "/payment/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("invalid NOWPAYMENTS_API_BASE_URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nowpayments status request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out IPNEvent
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		out.PaymentID = FlexString(id)
	}
	if strings.TrimSpace(out.PaymentStatus) == "" {
		return nil, errors.New("nowpayments status response missing payment_status")
	}
	return &out, nil
}
