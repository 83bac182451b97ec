package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindByExternalOrInvoiceID(ctx context.Context, ids []string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	SaveProviderSnapshot(ctx context.Context, paymentID uint, snap models.ProviderData) error
	Transact(ctx context.Context, fn func(tx TxRepository) error) error
	UpdateAccessFlags(ctx context.Context, subscriptionID uint, flags models.AccessFlags) error
	AppendLog(ctx context.Context, entry *models.PaymentLog) error
	RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	MarkDeliveryProcessed(ctx context.Context, id uint, processingError string) error
}

// TxRepository is the view of the store inside a single event transaction.
// LockPayment reads the payment and its subscription fresh and holds both rows
// until the transaction ends, so two payments of one subscription cannot
// extend it from the same stale end date.
type TxRepository interface {
	LockPayment(id uint) (*models.Payment, error)
	SavePayment(p *models.Payment) error
	SaveSubscription(s *models.Subscription) error
	PromoExtraDays(subscriptionID uint) (models.ExtraDays, error)
	AppendLog(entry *models.PaymentLog) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func withPaymentGraph(db *gorm.DB) *gorm.DB {
	return db.Preload("Subscription.User").Preload("Subscription.Tariff")
}

func (r *gormRepository) FindByExternalOrInvoiceID(ctx context.Context, ids []string) (*models.Payment, error) {
	if len(ids) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var p models.Payment
	err := withPaymentGraph(r.db.WithContext(ctx)).
		Where("external_id IN ? OR provider_invoice_id IN ?", ids, ids).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := withPaymentGraph(r.db.WithContext(ctx)).
		Where("provider_order_id = ?", orderID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByGatewayPaymentID also matches external_id for payments created before
// the gateway id was known and stored there by the checkout flow.
func (r *gormRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := withPaymentGraph(r.db.WithContext(ctx)).
		Where("provider_payment_id = ? OR external_id = ?", gatewayPaymentID, gatewayPaymentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SaveProviderSnapshot(ctx context.Context, paymentID uint, snap models.ProviderData) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, paymentID).Error; err != nil {
			return err
		}
		merged := p.ProviderData.Merge(snap)
		return tx.Model(&models.Payment{}).Where("id = ?", paymentID).Updates(providerColumns(merged)).Error
	})
}

func providerColumns(d models.ProviderData) map[string]interface{} {
	return map[string]interface{}{
		"provider_data_version":  d.Version,
		"provider_payment_id":    d.PaymentID,
		"provider_invoice_id":    d.InvoiceID,
		"provider_order_id":      d.OrderID,
		"provider_last_status":   d.LastStatus,
		"provider_pay_currency":  d.PayCurrency,
		"provider_pay_address":   d.PayAddress,
		"provider_price_amount":  d.PriceAmount,
		"provider_actually_paid": d.ActuallyPaid,
		"provider_updated_at":    d.UpdatedAt,
	}
}

func (r *gormRepository) Transact(ctx context.Context, fn func(tx TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (r *gormRepository) UpdateAccessFlags(ctx context.Context, subscriptionID uint, flags models.AccessFlags) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"chat_role_granted":      flags.ChatRole,
			"knowledge_base_granted": flags.KnowledgeBase,
			"file_storage_granted":   flags.FileStorage,
		}).Error
}

func (r *gormRepository) AppendLog(ctx context.Context, entry *models.PaymentLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *gormRepository) MarkDeliveryProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", id).Updates(updates).Error
}

type gormTx struct {
	db *gorm.DB
}

// LockPayment locks the payment row, then its subscription row. Preloads run
// as separate plain selects, so the subscription is locked explicitly.
func (t *gormTx) LockPayment(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
		return nil, err
	}
	var sub models.Subscription
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("User").Preload("Tariff").
		First(&sub, p.SubscriptionID).Error
	if err != nil {
		return nil, err
	}
	p.Subscription = sub
	return &p, nil
}

func (t *gormTx) SavePayment(p *models.Payment) error {
	return t.db.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":        p.Status,
		"paid_at":       p.PaidAt,
		"error_message": p.ErrorMessage,
	}).Error
}

func (t *gormTx) SaveSubscription(s *models.Subscription) error {
	return t.db.Model(&models.Subscription{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"status":     s.Status,
		"start_date": s.StartDate,
		"end_date":   s.EndDate,
	}).Error
}

// PromoExtraDays reads the raw column so a malformed value surfaces as a
// parse error instead of failing the whole query.
func (t *gormTx) PromoExtraDays(subscriptionID uint) (models.ExtraDays, error) {
	var raw sql.NullString
	err := t.db.Table("promocode_usages").
		Select("promocodes.extra_days").
		Joins("JOIN promocodes ON promocodes.id = promocode_usages.promocode_id").
		Where("promocode_usages.subscription_id = ?", subscriptionID).
		Order("promocode_usages.id DESC").
		Limit(1).
		Row().Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ExtraDays{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid {
		return models.ExtraDays{}, nil
	}
	return models.ParseExtraDays([]byte(raw.String))
}

func (t *gormTx) AppendLog(entry *models.PaymentLog) error {
	return t.db.Create(entry).Error
}
