package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const PaymentProviderNOWPayments = "nowpayments"

// ProviderDataVersion is bumped whenever the meaning of a ProviderData field changes.
const ProviderDataVersion = 1

// ProviderData is the gateway side channel of a payment. Ids may arrive under
// different keys across deliveries; they are normalized before they get here.
type ProviderData struct {
	Version      int        `gorm:"column:provider_data_version;not null;default:1" json:"version"`
	PaymentID    string     `gorm:"column:provider_payment_id;type:varchar(64);default:'';index" json:"payment_id,omitempty"`
	InvoiceID    string     `gorm:"column:provider_invoice_id;type:varchar(64);default:'';index" json:"invoice_id,omitempty"`
	OrderID      string     `gorm:"column:provider_order_id;type:varchar(191);default:'';index" json:"order_id,omitempty"`
	LastStatus   string     `gorm:"column:provider_last_status;type:varchar(32);default:''" json:"last_status,omitempty"`
	PayCurrency  string     `gorm:"column:provider_pay_currency;type:varchar(20);default:''" json:"pay_currency,omitempty"`
	PayAddress   string     `gorm:"column:provider_pay_address;type:varchar(191);default:''" json:"pay_address,omitempty"`
	PriceAmount  float64    `gorm:"column:provider_price_amount;default:0" json:"price_amount,omitempty"`
	ActuallyPaid float64    `gorm:"column:provider_actually_paid;default:0" json:"actually_paid,omitempty"`
	UpdatedAt    *time.Time `gorm:"column:provider_updated_at;type:timestamp;default:null" json:"updated_at,omitempty"`
}

// Merge overlays the non-empty fields of next onto d. Ids that were known
// before are never erased by a delivery that omits them.
func (d ProviderData) Merge(next ProviderData) ProviderData {
	out := d
	out.Version = ProviderDataVersion
	if next.PaymentID != "" {
		out.PaymentID = next.PaymentID
	}
	if next.InvoiceID != "" {
		out.InvoiceID = next.InvoiceID
	}
	if next.OrderID != "" {
		out.OrderID = next.OrderID
	}
	if next.LastStatus != "" {
		out.LastStatus = next.LastStatus
	}
	if next.PayCurrency != "" {
		out.PayCurrency = next.PayCurrency
	}
	if next.PayAddress != "" {
		out.PayAddress = next.PayAddress
	}
	if next.PriceAmount != 0 {
		out.PriceAmount = next.PriceAmount
	}
	if next.ActuallyPaid != 0 {
		out.ActuallyPaid = next.ActuallyPaid
	}
	if next.UpdatedAt != nil {
		out.UpdatedAt = next.UpdatedAt
	}
	return out
}

// Payment is a single purchase attempt for a subscription.
type Payment struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	SubscriptionID uint         `gorm:"not null;index" json:"subscription_id"`
	Subscription   Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
	UserID         uint         `gorm:"not null;index" json:"user_id"`
	Provider       string       `gorm:"type:varchar(20);not null;default:'nowpayments'" json:"provider"`
	Status         string       `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExternalID     string       `gorm:"type:varchar(191);default:'';index" json:"external_id"`
	Amount         float64      `gorm:"not null;default:0" json:"amount"`
	Currency       string       `gorm:"type:varchar(10);default:'usd'" json:"currency"`
	PeriodMonths   int          `gorm:"not null;default:0" json:"period_months"`
	ProviderData   ProviderData `gorm:"embedded" json:"provider_data"`
	PaidAt         *time.Time   `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ErrorMessage   string       `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// Period returns the purchased period in months, falling back to the
// subscription's period for rows created before the column existed.
func (p *Payment) Period() int {
	if p.PeriodMonths > 0 {
		return p.PeriodMonths
	}
	if p.Subscription.PeriodMonths > 0 {
		return p.Subscription.PeriodMonths
	}
	return 1
}
