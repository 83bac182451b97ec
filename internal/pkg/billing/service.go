package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"github.com/ManuelReschke/SubGate/internal/pkg/cache"
	"github.com/ManuelReschke/SubGate/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dependencies are the collaborators of the billing service. Nil grants or
// notifier disable that side effect.
type Dependencies struct {
	Verifier Verifier
	Gateway  StatusFetcher
	Grants   *Grants
	Notifier *Notifier
	Cache    cache.Store
	Now      func() time.Time
}

// Service reconciles gateway payment events with local payments and subscriptions.
type Service struct {
	repo     Repository
	resolver *Resolver
	verifier Verifier
	gateway  StatusFetcher
	grants   *Grants
	notifier *Notifier
	cache    cache.Store
	now      func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, deps Dependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		resolver: NewResolver(repo),
		verifier: deps.Verifier,
		gateway:  deps.Gateway,
		grants:   deps.Grants,
		notifier: deps.Notifier,
		cache:    deps.Cache,
		now:      now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, deps Dependencies) *Service {
	return NewService(NewRepository(db), deps)
}

// Outcome describes what processing an event did.
type Outcome struct {
	CorrelationID    string
	Status           Status
	Handler          Handler
	PaymentID        uint
	AlreadyCompleted bool
	Renewal          bool
	Skipped          bool
	Grants           GrantReport
}

type eventMeta struct {
	source         string
	correlationID  string
	providerStatus string
}

// HandleWebhook verifies, records and processes a raw gateway notification.
// ErrSecretNotConfigured is returned together with an ignored outcome so the
// caller can acknowledge the delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Outcome, error) {
	meta := eventMeta{source: models.PaymentLogSourceIPN, correlationID: uuid.NewString()}

	verifyErr := s.verifier.Verify(body, signature)
	ev, parseErr := ParseIPN(body)

	delivery := &models.WebhookDelivery{
		Provider:       models.PaymentProviderNOWPayments,
		CorrelationID:  meta.correlationID,
		PayloadJSON:    string(body),
		SignatureValid: verifyErr == nil && s.verifier.Secret != "",
	}
	if parseErr == nil {
		delivery.ProviderPaymentID = ev.PaymentID.String()
		delivery.PaymentStatus = string(ev.Status())
	}
	if err := s.repo.RecordDelivery(ctx, delivery); err != nil {
		log.Warnf("[Webhook] %s record delivery: %v", meta.correlationID, err)
		delivery.ID = 0
	}

	switch {
	case errors.Is(verifyErr, ErrInvalidSignature):
		metrics.WebhooksReceived.WithLabelValues("invalid_signature").Inc()
		log.Warnf("[Webhook] %s rejected: %v", meta.correlationID, verifyErr)
		s.markDelivery(ctx, delivery.ID, verifyErr)
		return nil, verifyErr
	case verifyErr != nil:
		metrics.WebhooksReceived.WithLabelValues("ignored").Inc()
		log.Errorf("[Webhook] %s not processed: %v", meta.correlationID, verifyErr)
		s.markDelivery(ctx, delivery.ID, verifyErr)
		return &Outcome{CorrelationID: meta.correlationID, Handler: HandlerIgnore, Skipped: true}, verifyErr
	}

	if parseErr != nil {
		metrics.WebhooksReceived.WithLabelValues("malformed").Inc()
		s.markDelivery(ctx, delivery.ID, parseErr)
		return nil, parseErr
	}

	out, err := s.process(ctx, ev, ev.Identifiers(), meta)
	s.markDelivery(ctx, delivery.ID, err)
	metrics.WebhooksReceived.WithLabelValues(webhookOutcomeLabel(out, err)).Inc()
	return out, err
}

// HandleEvent processes an already verified event.
func (s *Service) HandleEvent(ctx context.Context, ev *IPNEvent) (*Outcome, error) {
	meta := eventMeta{source: models.PaymentLogSourceIPN, correlationID: uuid.NewString()}
	return s.process(ctx, ev, ev.Identifiers(), meta)
}

func (s *Service) process(ctx context.Context, ev *IPNEvent, ids Identifiers, meta eventMeta) (*Outcome, error) {
	status := ev.Status()
	meta.providerStatus = ev.PaymentStatus
	out := &Outcome{CorrelationID: meta.correlationID, Status: status, Handler: HandlerFor(status)}

	payment, err := s.resolver.Resolve(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warnf("[Billing] %s %v, status=%s", meta.correlationID, err, status)
		}
		return out, err
	}
	out.PaymentID = payment.ID
	return out, s.dispatch(ctx, payment, ev, meta, out)
}

// dispatch persists the provider snapshot and runs the handler for the status.
func (s *Service) dispatch(ctx context.Context, payment *models.Payment, ev *IPNEvent, meta eventMeta, out *Outcome) error {
	if err := s.repo.SaveProviderSnapshot(ctx, payment.ID, ev.Snapshot(s.now())); err != nil {
		return fmt.Errorf("save provider snapshot for payment %d: %w", payment.ID, err)
	}

	switch out.Handler {
	case HandlerSuccess:
		return s.handleSuccess(ctx, payment, meta, out)
	case HandlerFailure:
		return s.handleFailure(ctx, payment, out.Status, meta, out)
	case HandlerRefund:
		return s.handleRefund(ctx, payment, meta, out)
	case HandlerPartial:
		return s.handlePartial(ctx, payment, ev, meta, out)
	case HandlerInProgress:
		log.Infof("[Billing] %s payment %d is %s", meta.correlationID, payment.ID, out.Status)
		return nil
	default:
		log.Warnf("[Billing] %s payment %d: %v %q, ignoring", meta.correlationID, payment.ID, ErrUnknownStatus, ev.PaymentStatus)
		out.Skipped = true
		return nil
	}
}

func (s *Service) handleSuccess(ctx context.Context, payment *models.Payment, meta eventMeta, out *Outcome) error {
	var (
		locked *models.Payment
		window Window
	)
	err := s.repo.Transact(ctx, func(tx TxRepository) error {
		p, err := tx.LockPayment(payment.ID)
		if err != nil {
			return err
		}
		if p.IsCompleted() {
			out.AlreadyCompleted = true
			return nil
		}
		// the money went back, a late success must not reactivate access
		if p.Status == models.PaymentStatusRefunded {
			out.Skipped = true
			return nil
		}

		extra := 0
		promo, err := tx.PromoExtraDays(p.SubscriptionID)
		if err != nil {
			log.Warnf("[Billing] %s subscription %d: promocode bonus unreadable, granting none: %v", meta.correlationID, p.SubscriptionID, err)
		} else {
			extra = promo.For(p.Period())
		}

		now := s.now()
		fromPayment, fromSub := p.Status, p.Subscription.Status
		window = NextWindow(&p.Subscription, p.Subscription.IsActive(), p.Period(), now, extra)

		p.Status = models.PaymentStatusCompleted
		p.PaidAt = &now
		p.ErrorMessage = ""
		if err := tx.SavePayment(p); err != nil {
			return err
		}
		window.Apply(&p.Subscription)
		if err := tx.SaveSubscription(&p.Subscription); err != nil {
			return err
		}

		subEvent := models.PaymentLogEventActivated
		if window.Renewal {
			subEvent = models.PaymentLogEventRenewed
		}
		entries := []*models.PaymentLog{
			s.logEntry(p, models.PaymentLogEventCompleted, fromPayment, p.Status, meta, ""),
			s.logEntry(p, subEvent, fromSub, p.Subscription.Status, meta,
				fmt.Sprintf("period_months=%d extra_days=%d end_date=%s", p.Period(), extra, window.End.UTC().Format(time.RFC3339))),
		}
		for _, e := range entries {
			if err := tx.AppendLog(e); err != nil {
				return err
			}
		}
		locked = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete payment %d: %w", payment.ID, err)
	}
	if out.AlreadyCompleted {
		log.Infof("[Billing] %s payment %d: %v, nothing to do", meta.correlationID, payment.ID, ErrPaymentAlreadyCompleted)
		return nil
	}
	if out.Skipped {
		log.Infof("[Billing] %s payment %d: ignoring %s, payment is %s", meta.correlationID, payment.ID, out.Status, models.PaymentStatusRefunded)
		return nil
	}

	out.Renewal = window.Renewal
	metrics.PaymentTransitions.WithLabelValues(models.PaymentLogEventCompleted, meta.source).Inc()
	log.Infof("[Billing] %s payment %d completed, subscription %d active until %s (renewal=%t)",
		meta.correlationID, locked.ID, locked.SubscriptionID, window.End.Format(time.RFC3339), window.Renewal)

	if s.grants != nil {
		out.Grants = s.grants.GrantAll(ctx, &locked.Subscription, window.Renewal)
		s.persistGrants(ctx, locked, out.Grants, meta)
	}
	if s.notifier != nil {
		s.notifier.PaymentConfirmed(ctx, SuccessNotice{
			Subscription: &locked.Subscription,
			Payment:      locked,
			Window:       window,
			Grants:       out.Grants,
			Source:       meta.source,
		})
	}
	return nil
}

// persistGrants stores the outcome of attempted systems. A failed update is
// logged as an alert; the payment itself is already committed.
func (s *Service) persistGrants(ctx context.Context, p *models.Payment, report GrantReport, meta eventMeta) {
	if !report.AnyAttempted() {
		return
	}
	flags := report.Flags(p.Subscription.Flags())
	if err := s.repo.UpdateAccessFlags(ctx, p.SubscriptionID, flags); err != nil {
		log.Errorf("[Billing] %s subscription %d: persist access flags %+v failed (check migrations): %v",
			meta.correlationID, p.SubscriptionID, flags, err)
		return
	}
	p.Subscription.ApplyFlags(flags)

	details := fmt.Sprintf("chat_role=%t knowledge_base=%t file_storage=%t", flags.ChatRole, flags.KnowledgeBase, flags.FileStorage)
	entry := s.logEntry(p, models.PaymentLogEventAccessUpdated, p.Subscription.Status, p.Subscription.Status, meta, details)
	if err := s.repo.AppendLog(ctx, entry); err != nil {
		log.Warnf("[Billing] %s append access log: %v", meta.correlationID, err)
	}
}

func (s *Service) handleFailure(ctx context.Context, payment *models.Payment, status Status, meta eventMeta, out *Outcome) error {
	var (
		locked  *models.Payment
		current string
	)
	err := s.repo.Transact(ctx, func(tx TxRepository) error {
		p, err := tx.LockPayment(payment.ID)
		if err != nil {
			return err
		}
		current = p.Status
		if p.IsCompleted() || p.Status == models.PaymentStatusFailed || p.Status == models.PaymentStatusRefunded {
			out.Skipped = true
			return nil
		}
		from := p.Status
		p.Status = models.PaymentStatusFailed
		p.ErrorMessage = failureMessage(status)
		if err := tx.SavePayment(p); err != nil {
			return err
		}
		if err := tx.AppendLog(s.logEntry(p, models.PaymentLogEventFailed, from, p.Status, meta, p.ErrorMessage)); err != nil {
			return err
		}
		locked = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail payment %d: %w", payment.ID, err)
	}
	if out.Skipped {
		log.Infof("[Billing] %s payment %d: ignoring %s, payment is %s", meta.correlationID, payment.ID, status, current)
		return nil
	}

	metrics.PaymentTransitions.WithLabelValues(models.PaymentLogEventFailed, meta.source).Inc()
	log.Infof("[Billing] %s payment %d failed: %s", meta.correlationID, locked.ID, status)
	if s.notifier != nil {
		s.notifier.PaymentFailed(ctx, &locked.Subscription, locked)
	}
	return nil
}

func (s *Service) handleRefund(ctx context.Context, payment *models.Payment, meta eventMeta, out *Outcome) error {
	var locked *models.Payment
	err := s.repo.Transact(ctx, func(tx TxRepository) error {
		p, err := tx.LockPayment(payment.ID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusRefunded {
			out.Skipped = true
			return nil
		}
		fromPayment, fromSub := p.Status, p.Subscription.Status
		p.Status = models.PaymentStatusRefunded
		if err := tx.SavePayment(p); err != nil {
			return err
		}
		p.Subscription.Status = models.SubscriptionStatusCancelled
		if err := tx.SaveSubscription(&p.Subscription); err != nil {
			return err
		}
		if err := tx.AppendLog(s.logEntry(p, models.PaymentLogEventRefunded, fromPayment, p.Status, meta, "")); err != nil {
			return err
		}
		if err := tx.AppendLog(s.logEntry(p, models.PaymentLogEventCancelled, fromSub, p.Subscription.Status, meta, "access not revoked")); err != nil {
			return err
		}
		locked = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("refund payment %d: %w", payment.ID, err)
	}
	if out.Skipped {
		log.Infof("[Billing] %s payment %d already refunded", meta.correlationID, payment.ID)
		return nil
	}

	metrics.PaymentTransitions.WithLabelValues(models.PaymentLogEventRefunded, meta.source).Inc()
	log.Infof("[Billing] %s payment %d refunded, subscription %d cancelled", meta.correlationID, locked.ID, locked.SubscriptionID)
	if s.notifier != nil {
		s.notifier.PaymentRefunded(ctx, &locked.Subscription, locked)
	}
	return nil
}

// handlePartial logs every partial payment event but only messages the user
// when the paid amount moved since the previous snapshot.
func (s *Service) handlePartial(ctx context.Context, payment *models.Payment, ev *IPNEvent, meta eventMeta, out *Outcome) error {
	if payment.IsCompleted() || payment.Status == models.PaymentStatusRefunded {
		log.Infof("[Billing] %s payment %d: ignoring %s, payment is %s", meta.correlationID, payment.ID, out.Status, payment.Status)
		out.Skipped = true
		return nil
	}
	prev := payment.ProviderData
	repeated := NormalizeStatus(prev.LastStatus) == StatusPartiallyPaid && prev.ActuallyPaid == float64(ev.ActuallyPaid)

	details := fmt.Sprintf("price_amount=%s actually_paid=%s pay_currency=%s",
		formatAmount(float64(ev.PriceAmount)), formatAmount(float64(ev.ActuallyPaid)), ev.PayCurrency)
	entry := s.logEntry(payment, models.PaymentLogEventPartial, payment.Status, payment.Status, meta, details)
	if err := s.repo.AppendLog(ctx, entry); err != nil {
		log.Warnf("[Billing] %s append partial log: %v", meta.correlationID, err)
	}
	log.Infof("[Billing] %s payment %d partially paid, remaining %s %s",
		meta.correlationID, payment.ID, formatAmount(ev.Remaining()), ev.PayCurrency)

	if repeated {
		log.Infof("[Billing] %s payment %d: paid amount unchanged, user already notified", meta.correlationID, payment.ID)
		return nil
	}
	if s.notifier != nil {
		s.notifier.PartialPayment(ctx, &payment.Subscription, ev)
	}
	return nil
}

func (s *Service) logEntry(p *models.Payment, event, from, to string, meta eventMeta, details string) *models.PaymentLog {
	return &models.PaymentLog{
		PaymentID:      p.ID,
		SubscriptionID: p.SubscriptionID,
		Event:          event,
		FromStatus:     from,
		ToStatus:       to,
		ProviderStatus: meta.providerStatus,
		Source:         meta.source,
		CorrelationID:  meta.correlationID,
		Details:        details,
	}
}

func (s *Service) markDelivery(ctx context.Context, id uint, processingErr error) {
	if id == 0 {
		return
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repo.MarkDeliveryProcessed(ctx, id, msg); err != nil {
		log.Warnf("[Webhook] mark delivery %d processed: %v", id, err)
	}
}

func webhookOutcomeLabel(out *Outcome, err error) string {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return "payment_not_found"
	case err != nil:
		return "error"
	case out.AlreadyCompleted:
		return "duplicate"
	default:
		return string(out.Handler)
	}
}
