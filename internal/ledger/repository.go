package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit would take a balance below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Repository mutates the balance columns on profiles. Every method takes the
// caller's transaction so a balance change is always atomic with the sibling
// record write (purchase, deposit, withdrawal row). Concurrent debits against
// one profile serialize on the Postgres row lock taken by UPDATE.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Credit adds amount to the available balance.
func (r *Repository) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles SET balance = balance + $1 WHERE user_id = $2
	`, amount, userID)
	return err
}

// Debit removes amount from the available balance. The WHERE guard makes the
// check-and-deduct a single atomic statement; zero rows means the balance was
// too low and nothing changed.
func (r *Repository) Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	result, err := tx.Exec(ctx, `
		UPDATE profiles SET balance = balance - $1
		WHERE user_id = $2 AND balance >= $1
	`, amount, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// CreditFrozen adds amount to the frozen (escrow) balance.
func (r *Repository) CreditFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles SET frozen_balance = frozen_balance + $1 WHERE user_id = $2
	`, amount, userID)
	return err
}

// DebitFrozen removes amount from the frozen balance, guarded the same way as
// Debit. A failure here during escrow release means the ledger is split
// inconsistently and must be surfaced, not swallowed.
func (r *Repository) DebitFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	result, err := tx.Exec(ctx, `
		UPDATE profiles SET frozen_balance = frozen_balance - $1
		WHERE user_id = $2 AND frozen_balance >= $1
	`, amount, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Balances returns the available and frozen balance for a user.
func (r *Repository) Balances(ctx context.Context, userID uuid.UUID) (available, frozen decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT balance, frozen_balance FROM profiles WHERE user_id = $1
	`, userID).Scan(&available, &frozen)
	return available, frozen, err
}
