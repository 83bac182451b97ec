package models

import "time"

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription links a user to a tariff and tracks the validity window plus the
// access that was provisioned in external systems.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	User                 User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TariffID             uint       `gorm:"not null;index" json:"tariff_id"`
	Tariff               Tariff     `gorm:"foreignKey:TariffID" json:"tariff,omitempty"`
	Status               string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PeriodMonths         int        `gorm:"not null;default:1" json:"period_months"`
	StartDate            *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate              *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	ChatRoleGranted      bool       `gorm:"default:false" json:"chat_role_granted"`
	KnowledgeBaseGranted bool       `gorm:"default:false" json:"knowledge_base_granted"`
	FileStorageGranted   bool       `gorm:"default:false" json:"file_storage_granted"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccessFlags is the per-system grant state stored on a subscription.
type AccessFlags struct {
	ChatRole      bool
	KnowledgeBase bool
	FileStorage   bool
}

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// Flags returns the access flags currently stored on the subscription.
func (s *Subscription) Flags() AccessFlags {
	return AccessFlags{
		ChatRole:      s.ChatRoleGranted,
		KnowledgeBase: s.KnowledgeBaseGranted,
		FileStorage:   s.FileStorageGranted,
	}
}

// ApplyFlags copies flags onto the subscription.
func (s *Subscription) ApplyFlags(f AccessFlags) {
	s.ChatRoleGranted = f.ChatRole
	s.KnowledgeBaseGranted = f.KnowledgeBase
	s.FileStorageGranted = f.FileStorage
}
