package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase statuses. hold -> completed (buyer confirm or timed release),
// hold -> disputed (buyer), disputed -> completed|canceled (admin).
// completed and canceled are terminal.
const (
	PurchaseHold      = "hold"
	PurchaseCompleted = "completed"
	PurchaseCanceled  = "canceled"
	PurchaseDisputed  = "disputed"
)

// Purchase is one escrowed sale: the amount sits on the seller's frozen
// balance until the entry leaves hold.
type Purchase struct {
	ID        uuid.UUID       `json:"id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	ListingID uuid.UUID       `json:"listing_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	ReleaseAt *time.Time      `json:"release_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
