package wallet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/ledger"
	"github.com/devtube/backend/internal/models"
)

var (
	ErrAmountInvalid    = errors.New("amount must be positive")
	ErrBelowMinimum     = errors.New("amount below the minimum withdrawal")
	ErrAlreadyProcessed = errors.New("request already processed")
)

// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
var ErrInsufficientFunds = ledger.ErrInsufficientFunds

// TxBeginner opens transactions; satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the balance surface the wallet needs.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
	Balances(ctx context.Context, userID uuid.UUID) (available, frozen decimal.Decimal, err error)
}

// Store is the request persistence surface.
type Store interface {
	CreateDeposit(ctx context.Context, d *models.Deposit) error
	ApproveDepositTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (uuid.UUID, decimal.Decimal, bool, error)
	RejectDeposit(ctx context.Context, id uuid.UUID) (bool, error)
	ListDepositsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Deposit, error)
	ListPendingDeposits(ctx context.Context) ([]*models.Deposit, error)
	CreateWithdrawalTx(ctx context.Context, tx pgx.Tx, wd *models.Withdrawal) error
	ApproveWithdrawal(ctx context.Context, id uuid.UUID) (bool, error)
	RejectWithdrawalTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (uuid.UUID, decimal.Decimal, bool, error)
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error)
	ListPendingWithdrawals(ctx context.Context) ([]*models.Withdrawal, error)
}

// Service implements the deposit/withdrawal workflows. Withdrawals debit the
// available balance at submission ("funds reserved while pending") and
// re-credit on rejection; deposits only move money on admin approval.
type Service struct {
	db            TxBeginner
	store         Store
	ledger        Ledger
	minWithdrawal decimal.Decimal
	log           *slog.Logger
}

func NewService(db TxBeginner, store Store, l Ledger, minWithdrawal decimal.Decimal, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, store: store, ledger: l, minWithdrawal: minWithdrawal, log: log}
}

// Balances returns the caller's available and frozen balance.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) (available, frozen decimal.Decimal, err error) {
	return s.ledger.Balances(ctx, userID)
}

// RequestDeposit records a pending top-up with its receipt evidence.
func (s *Service) RequestDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, receiptURL string) (*models.Deposit, error) {
	if !amount.IsPositive() {
		return nil, ErrAmountInvalid
	}
	d := &models.Deposit{
		ID:         uuid.New(),
		UserID:     userID,
		Amount:     amount,
		ReceiptURL: receiptURL,
		Status:     models.RequestPending,
	}
	if err := s.store.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ApproveDeposit credits the user's available balance exactly once. The
// status guard inside ApproveDepositTx makes a second approval a no-op.
func (s *Service) ApproveDeposit(ctx context.Context, depositID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	userID, amount, ok, err := s.store.ApproveDepositTx(ctx, tx, depositID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyProcessed
	}
	if err := s.ledger.Credit(ctx, tx, userID, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RejectDeposit is terminal with no balance effect.
func (s *Service) RejectDeposit(ctx context.Context, depositID uuid.UUID) error {
	ok, err := s.store.RejectDeposit(ctx, depositID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyProcessed
	}
	return nil
}

// RequestWithdrawal debits the available balance and records a pending
// payout in one transaction.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cardNumber string) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, ErrAmountInvalid
	}
	if amount.LessThan(s.minWithdrawal) {
		return nil, ErrBelowMinimum
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.Debit(ctx, tx, userID, amount); err != nil {
		return nil, err
	}
	wd := &models.Withdrawal{
		ID:         uuid.New(),
		UserID:     userID,
		Amount:     amount,
		CardNumber: cardNumber,
		Status:     models.RequestPending,
	}
	if err := s.store.CreateWithdrawalTx(ctx, tx, wd); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return wd, nil
}

// ApproveWithdrawal is terminal; the funds already left the available pool at
// submission.
func (s *Service) ApproveWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	ok, err := s.store.ApproveWithdrawal(ctx, withdrawalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyProcessed
	}
	return nil
}

// RejectWithdrawal re-credits the pre-debited amount in the same transaction
// that flips the status.
func (s *Service) RejectWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	userID, amount, ok, err := s.store.RejectWithdrawalTx(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyProcessed
	}
	if err := s.ledger.Credit(ctx, tx, userID, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) ListDeposits(ctx context.Context, userID uuid.UUID) ([]*models.Deposit, error) {
	return s.store.ListDepositsByUser(ctx, userID)
}

func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	return s.store.ListWithdrawalsByUser(ctx, userID)
}

func (s *Service) ListPendingDeposits(ctx context.Context) ([]*models.Deposit, error) {
	return s.store.ListPendingDeposits(ctx)
}

func (s *Service) ListPendingWithdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	return s.store.ListPendingWithdrawals(ctx)
}
