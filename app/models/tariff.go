package models

import "time"

// Tariff is a named pricing plan. Prices and period options are managed by the
// admin panel; this service only needs the name and the optional chat role.
type Tariff struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name"`
	Slug       string    `gorm:"type:varchar(150);uniqueIndex" json:"slug"`
	ChatRoleID string    `gorm:"type:varchar(32);default:''" json:"chat_role_id"` // overrides DISCORD_ROLE_ID when set
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
