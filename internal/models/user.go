package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile carries the wallet and public identity of a user. Created in the
// same transaction as the user row; there is never a user without a profile.
type Profile struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Slug           string          `json:"slug"`
	Bio            string          `json:"bio"`
	AvatarURL      string          `json:"avatar_url"`
	Balance        decimal.Decimal `json:"balance"`
	FrozenBalance  decimal.Decimal `json:"frozen_balance"`
	IsVerified     bool            `json:"is_verified"`
	TelegramChatID *int64          `json:"-"`
	LastActivity   *time.Time      `json:"last_activity,omitempty"`
}
