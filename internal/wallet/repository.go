package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/models"
)

// Repository persists deposit and withdrawal requests. The approve/reject
// methods guard on status = 'pending' so repeated admin action is a no-op:
// processing happens at most once per request.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// --- deposits ---

func (r *Repository) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deposits (id, user_id, amount, receipt_url, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.UserID, d.Amount, d.ReceiptURL, d.Status).Scan(&d.CreatedAt)
}

// ApproveDepositTx flips a pending deposit to approved and returns whose
// balance to credit. ok=false means the deposit was not pending anymore.
func (r *Repository) ApproveDepositTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (userID uuid.UUID, amount decimal.Decimal, ok bool, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE deposits SET status = $2 WHERE id = $1 AND status = $3
		RETURNING user_id, amount
	`, id, models.RequestApproved, models.RequestPending).Scan(&userID, &amount)
	if err == pgx.ErrNoRows {
		return uuid.Nil, decimal.Zero, false, nil
	}
	if err != nil {
		return uuid.Nil, decimal.Zero, false, err
	}
	return userID, amount, true, nil
}

func (r *Repository) RejectDeposit(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE deposits SET status = $2 WHERE id = $1 AND status = $3
	`, id, models.RequestRejected, models.RequestPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) ListDepositsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Deposit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, receipt_url, status, created_at
		FROM deposits WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeposits(rows)
}

func (r *Repository) ListPendingDeposits(ctx context.Context) ([]*models.Deposit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, receipt_url, status, created_at
		FROM deposits WHERE status = $1 ORDER BY created_at ASC
	`, models.RequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeposits(rows)
}

// --- withdrawals ---

func (r *Repository) CreateWithdrawalTx(ctx context.Context, tx pgx.Tx, wd *models.Withdrawal) error {
	return tx.QueryRow(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, card_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, wd.ID, wd.UserID, wd.Amount, wd.CardNumber, wd.Status).Scan(&wd.CreatedAt)
}

func (r *Repository) ApproveWithdrawal(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE withdrawals SET status = $2 WHERE id = $1 AND status = $3
	`, id, models.RequestApproved, models.RequestPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RejectWithdrawalTx flips a pending withdrawal to rejected and returns whose
// balance to re-credit (withdrawals pre-debit on submission).
func (r *Repository) RejectWithdrawalTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (userID uuid.UUID, amount decimal.Decimal, ok bool, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE withdrawals SET status = $2 WHERE id = $1 AND status = $3
		RETURNING user_id, amount
	`, id, models.RequestRejected, models.RequestPending).Scan(&userID, &amount)
	if err == pgx.ErrNoRows {
		return uuid.Nil, decimal.Zero, false, nil
	}
	if err != nil {
		return uuid.Nil, decimal.Zero, false, err
	}
	return userID, amount, true, nil
}

func (r *Repository) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, card_number, status, created_at
		FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWithdrawals(rows)
}

func (r *Repository) ListPendingWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, card_number, status, created_at
		FROM withdrawals WHERE status = $1 ORDER BY created_at ASC
	`, models.RequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWithdrawals(rows)
}

func scanDeposits(rows pgx.Rows) ([]*models.Deposit, error) {
	var list []*models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.Amount, &d.ReceiptURL, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

func scanWithdrawals(rows pgx.Rows) ([]*models.Withdrawal, error) {
	var list []*models.Withdrawal
	for rows.Next() {
		var wd models.Withdrawal
		if err := rows.Scan(&wd.ID, &wd.UserID, &wd.Amount, &wd.CardNumber, &wd.Status, &wd.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &wd)
	}
	return list, rows.Err()
}
