package models

import "time"

// WebhookDelivery stores every inbound gateway notification for audit. It is
// not the idempotence source: the payment row is.
type WebhookDelivery struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	CorrelationID     string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"correlation_id"`
	ProviderPaymentID string     `gorm:"type:varchar(64);default:'';index" json:"provider_payment_id"`
	PaymentStatus     string     `gorm:"type:varchar(32);default:'';index" json:"payment_status"`
	PayloadJSON       string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid    bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
