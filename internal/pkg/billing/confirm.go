package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"github.com/ManuelReschke/SubGate/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const liveStatusTTL = 30 * time.Second

// ConfirmPayment re-checks a payment with the gateway and, when the gateway
// reports it finished, runs the same success path as a webhook would.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID string) (*Outcome, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment_id is required")
	}
	if s.gateway == nil {
		return nil, errors.New("gateway client is not configured")
	}

	ev, err := s.gateway.FetchPaymentStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", id, err)
	}
	if ev.Status() != StatusFinished {
		return nil, &NotFinishedError{PaymentID: id, Status: string(ev.Status())}
	}
	if ev.PaymentID == "" {
		ev.PaymentID = FlexString(id)
	}

	ids := ev.Identifiers()
	ids.ExternalID = id

	meta := eventMeta{source: models.PaymentLogSourceManual, correlationID: uuid.NewString()}
	out, err := s.process(ctx, ev, ids, meta)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		nf.Manual = true
		return out, nf
	}
	if err != nil {
		return out, err
	}
	log.Infof("[Billing] %s manual confirm of %s: payment %d (already_completed=%t)",
		meta.correlationID, id, out.PaymentID, out.AlreadyCompleted)
	return out, nil
}

// StatusView is the stored and live state of a gateway payment.
type StatusView struct {
	PaymentID     string              `json:"payment_id"`
	LocalStatus   string              `json:"local_status,omitempty"`
	Provider      models.ProviderData `json:"provider_data"`
	GatewayStatus string              `json:"gateway_status,omitempty"`
	GatewayError  string              `json:"gateway_error,omitempty"`
}

// PaymentStatus returns the local payment for a gateway payment id together
// with the gateway's current status. Gateway responses are cached briefly.
func (s *Service) PaymentStatus(ctx context.Context, paymentID string) (*StatusView, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment_id is required")
	}

	payment, err := s.resolver.Resolve(ctx, Identifiers{ExternalID: id, GatewayPaymentID: id})
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		PaymentID:   id,
		LocalStatus: payment.Status,
		Provider:    payment.ProviderData,
	}
	live, err := s.liveStatus(ctx, id)
	if err != nil {
		view.GatewayError = err.Error()
		return view, nil
	}
	view.GatewayStatus = live
	return view, nil
}

type cachedStatus struct {
	Status string `json:"status"`
}

func (s *Service) liveStatus(ctx context.Context, id string) (string, error) {
	if s.gateway == nil {
		return "", errors.New("gateway client is not configured")
	}
	key := "payment_status:" + id
	if s.cache != nil {
		if b, err := s.cache.Get(ctx, key); err == nil {
			var c cachedStatus
			if json.Unmarshal(b, &c) == nil && c.Status != "" {
				return c.Status, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("[Billing] status cache read %s: %v", key, err)
		}
	}

	ev, err := s.gateway.FetchPaymentStatus(ctx, id)
	if err != nil {
		return "", err
	}
	status := string(ev.Status())
	if s.cache != nil {
		b, _ := json.Marshal(cachedStatus{Status: status})
		if err := s.cache.Set(ctx, key, b, liveStatusTTL); err != nil {
			log.Warnf("[Billing] status cache write %s: %v", key, err)
		}
	}
	return status, nil
}
