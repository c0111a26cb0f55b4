package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Shared statuses for deposits and withdrawals. approved and rejected are
// terminal; only pending rows ever change balances when processed.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// Deposit is a user-submitted top-up with a receipt image awaiting admin
// review. Approval credits the available balance exactly once.
type Deposit struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceiptURL string          `json:"receipt_url,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Withdrawal is a cash-out request. The amount is debited from the available
// balance at submission and re-credited if the request is rejected.
type Withdrawal struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	CardNumber string          `json:"-"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MaskedCard returns the destination card masked to its last four digits.
func (w *Withdrawal) MaskedCard() string {
	if len(w.CardNumber) <= 4 {
		return w.CardNumber
	}
	return "**** " + w.CardNumber[len(w.CardNumber)-4:]
}
