package models

import "time"

const (
	PaymentLogSourceIPN    = "ipn"
	PaymentLogSourceManual = "manual"
)

// Events written to the payment audit trail.
const (
	PaymentLogEventCompleted     = "payment.completed"
	PaymentLogEventFailed        = "payment.failed"
	PaymentLogEventRefunded      = "payment.refunded"
	PaymentLogEventPartial       = "payment.partially_paid"
	PaymentLogEventActivated     = "subscription.activated"
	PaymentLogEventRenewed       = "subscription.renewed"
	PaymentLogEventCancelled     = "subscription.cancelled"
	PaymentLogEventAccessUpdated = "subscription.access_updated"
)

// PaymentLog is an append-only audit row. Rows are never updated or deleted.
type PaymentLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PaymentID      uint      `gorm:"not null;index" json:"payment_id"`
	SubscriptionID uint      `gorm:"not null;index" json:"subscription_id"`
	Event          string    `gorm:"type:varchar(64);not null;index" json:"event"`
	FromStatus     string    `gorm:"type:varchar(20);default:''" json:"from_status"`
	ToStatus       string    `gorm:"type:varchar(20);default:''" json:"to_status"`
	ProviderStatus string    `gorm:"type:varchar(32);default:''" json:"provider_status"`
	Source         string    `gorm:"type:varchar(16);not null;default:'ipn'" json:"source"`
	CorrelationID  string    `gorm:"type:varchar(36);index" json:"correlation_id"`
	Details        string    `gorm:"type:text" json:"details"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
