package models

import (
	"strconv"
	"strings"
	"time"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// User carries the identifiers a member may have on file. Any of them may be
// empty: a user created from the bot only has a TelegramID, one created from
// the website may only have an Email.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(150);default:''" json:"username" validate:"max=150"`
	TelegramID   *int64    `gorm:"uniqueIndex" json:"telegram_id,omitempty"`
	DiscordID    string    `gorm:"type:varchar(32);default:'';index" json:"discord_id" validate:"omitempty,numeric,max=32"`
	Email        string    `gorm:"type:varchar(200);default:'';index" json:"email" validate:"omitempty,email,max=200"`
	StorageEmail string    `gorm:"type:varchar(200);default:''" json:"storage_email" validate:"omitempty,email,max=200"`
	Role         string    `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOperator reports whether the user receives operator notifications.
func (u *User) IsOperator() bool {
	return u.Role == ROLE_ADMIN && u.TelegramID != nil && *u.TelegramID != 0
}

// HasTelegram reports whether the user can be reached in the bot.
func (u *User) HasTelegram() bool {
	return u.TelegramID != nil && *u.TelegramID != 0
}

func (u *User) HasDiscord() bool {
	return strings.TrimSpace(u.DiscordID) != ""
}

func (u *User) HasEmail() bool {
	return strings.TrimSpace(u.Email) != ""
}

func (u *User) HasStorageEmail() bool {
	return strings.TrimSpace(u.StorageEmail) != ""
}

// DisplayName returns a short human label for operator messages.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return "@" + strings.TrimPrefix(name, "@")
	}
	if u.HasTelegram() {
		return "tg:" + strconv.FormatInt(*u.TelegramID, 10)
	}
	if u.HasEmail() {
		return u.Email
	}
	return "user#" + strconv.FormatUint(uint64(u.ID), 10)
}
