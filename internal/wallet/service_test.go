package wallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/ledger"
	"github.com/devtube/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

type mockLedger struct {
	balances map[uuid.UUID]decimal.Decimal
	credits  int
}

func newMockLedger() *mockLedger { return &mockLedger{balances: map[uuid.UUID]decimal.Decimal{}} }

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	m.balances[id] = m.balances[id].Add(amount)
	m.credits++
	return nil
}

func (m *mockLedger) Debit(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	if m.balances[id].LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}
	m.balances[id] = m.balances[id].Sub(amount)
	return nil
}

func (m *mockLedger) Balances(_ context.Context, id uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	return m.balances[id], decimal.Zero, nil
}

type mockStore struct {
	deposits    map[uuid.UUID]*models.Deposit
	withdrawals map[uuid.UUID]*models.Withdrawal
}

func newMockStore() *mockStore {
	return &mockStore{
		deposits:    map[uuid.UUID]*models.Deposit{},
		withdrawals: map[uuid.UUID]*models.Withdrawal{},
	}
}

func (m *mockStore) CreateDeposit(_ context.Context, d *models.Deposit) error {
	cp := *d
	m.deposits[d.ID] = &cp
	return nil
}

func (m *mockStore) ApproveDepositTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (uuid.UUID, decimal.Decimal, bool, error) {
	d, ok := m.deposits[id]
	if !ok {
		return uuid.Nil, decimal.Zero, false, fmt.Errorf("deposit %s not found", id)
	}
	if d.Status != models.RequestPending {
		return uuid.Nil, decimal.Zero, false, nil
	}
	d.Status = models.RequestApproved
	return d.UserID, d.Amount, true, nil
}

func (m *mockStore) RejectDeposit(_ context.Context, id uuid.UUID) (bool, error) {
	d, ok := m.deposits[id]
	if !ok || d.Status != models.RequestPending {
		return false, nil
	}
	d.Status = models.RequestRejected
	return true, nil
}

func (m *mockStore) ListDepositsByUser(_ context.Context, userID uuid.UUID) ([]*models.Deposit, error) {
	var out []*models.Deposit
	for _, d := range m.deposits {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) ListPendingDeposits(_ context.Context) ([]*models.Deposit, error) {
	var out []*models.Deposit
	for _, d := range m.deposits {
		if d.Status == models.RequestPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) CreateWithdrawalTx(_ context.Context, _ pgx.Tx, wd *models.Withdrawal) error {
	cp := *wd
	m.withdrawals[wd.ID] = &cp
	return nil
}

func (m *mockStore) ApproveWithdrawal(_ context.Context, id uuid.UUID) (bool, error) {
	wd, ok := m.withdrawals[id]
	if !ok || wd.Status != models.RequestPending {
		return false, nil
	}
	wd.Status = models.RequestApproved
	return true, nil
}

func (m *mockStore) RejectWithdrawalTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (uuid.UUID, decimal.Decimal, bool, error) {
	wd, ok := m.withdrawals[id]
	if !ok || wd.Status != models.RequestPending {
		return uuid.Nil, decimal.Zero, false, nil
	}
	wd.Status = models.RequestRejected
	return wd.UserID, wd.Amount, true, nil
}

func (m *mockStore) ListWithdrawalsByUser(_ context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	for _, wd := range m.withdrawals {
		if wd.UserID == userID {
			out = append(out, wd)
		}
	}
	return out, nil
}

func (m *mockStore) ListPendingWithdrawals(_ context.Context) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	for _, wd := range m.withdrawals {
		if wd.Status == models.RequestPending {
			out = append(out, wd)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(store *mockStore, led *mockLedger) *Service {
	return NewService(mockPool{}, store, led, dec("10.00"), nil)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestApproveDepositCreditsOnce(t *testing.T) {
	userID := uuid.New()
	store := newMockStore()
	led := newMockLedger()
	svc := newTestService(store, led)

	d, err := svc.RequestDeposit(context.Background(), userID, dec("25.00"), "https://cdn/receipt.jpg")
	if err != nil {
		t.Fatalf("RequestDeposit: %v", err)
	}
	if d.Status != models.RequestPending {
		t.Fatalf("status = %s, want pending", d.Status)
	}

	if err := svc.ApproveDeposit(context.Background(), d.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if !led.balances[userID].Equal(dec("25.00")) {
		t.Errorf("balance = %s, want 25.00", led.balances[userID])
	}

	// A second approval finds the row already approved and credits nothing.
	if err := svc.ApproveDeposit(context.Background(), d.ID); err != ErrAlreadyProcessed {
		t.Fatalf("second approve err = %v, want ErrAlreadyProcessed", err)
	}
	if led.credits != 1 {
		t.Errorf("credits = %d, want exactly 1", led.credits)
	}
	if !led.balances[userID].Equal(dec("25.00")) {
		t.Errorf("balance after double approve = %s, want 25.00", led.balances[userID])
	}
}

func TestRejectDepositNoBalanceEffect(t *testing.T) {
	userID := uuid.New()
	store := newMockStore()
	led := newMockLedger()
	svc := newTestService(store, led)

	d, _ := svc.RequestDeposit(context.Background(), userID, dec("25.00"), "")
	if err := svc.RejectDeposit(context.Background(), d.ID); err != nil {
		t.Fatalf("RejectDeposit: %v", err)
	}
	if !led.balances[userID].IsZero() {
		t.Errorf("balance = %s, want 0", led.balances[userID])
	}
	if err := svc.ApproveDeposit(context.Background(), d.ID); err != ErrAlreadyProcessed {
		t.Errorf("approve after reject err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestRequestDepositValidation(t *testing.T) {
	svc := newTestService(newMockStore(), newMockLedger())
	if _, err := svc.RequestDeposit(context.Background(), uuid.New(), dec("0"), ""); err != ErrAmountInvalid {
		t.Errorf("zero amount err = %v, want ErrAmountInvalid", err)
	}
	if _, err := svc.RequestDeposit(context.Background(), uuid.New(), dec("-5"), ""); err != ErrAmountInvalid {
		t.Errorf("negative amount err = %v, want ErrAmountInvalid", err)
	}
}

func TestWithdrawalPreDebitsAndRejectRecredits(t *testing.T) {
	userID := uuid.New()
	store := newMockStore()
	led := newMockLedger()
	led.balances[userID] = dec("100.00")
	svc := newTestService(store, led)

	wd, err := svc.RequestWithdrawal(context.Background(), userID, dec("60.00"), "8600123412345678")
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if !led.balances[userID].Equal(dec("40.00")) {
		t.Errorf("balance after request = %s, want 40.00", led.balances[userID])
	}

	if err := svc.RejectWithdrawal(context.Background(), wd.ID); err != nil {
		t.Fatalf("RejectWithdrawal: %v", err)
	}
	if !led.balances[userID].Equal(dec("100.00")) {
		t.Errorf("balance after reject = %s, want 100.00", led.balances[userID])
	}
	if err := svc.RejectWithdrawal(context.Background(), wd.ID); err != ErrAlreadyProcessed {
		t.Errorf("double reject err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestWithdrawalApproveIsTerminal(t *testing.T) {
	userID := uuid.New()
	store := newMockStore()
	led := newMockLedger()
	led.balances[userID] = dec("100.00")
	svc := newTestService(store, led)

	wd, _ := svc.RequestWithdrawal(context.Background(), userID, dec("30.00"), "8600123412345678")
	if err := svc.ApproveWithdrawal(context.Background(), wd.ID); err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	// No further balance effect: the debit happened at submission.
	if !led.balances[userID].Equal(dec("70.00")) {
		t.Errorf("balance = %s, want 70.00", led.balances[userID])
	}
	if err := svc.RejectWithdrawal(context.Background(), wd.ID); err != ErrAlreadyProcessed {
		t.Errorf("reject after approve err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestWithdrawalValidation(t *testing.T) {
	userID := uuid.New()
	led := newMockLedger()
	led.balances[userID] = dec("5.00")
	svc := newTestService(newMockStore(), led)

	if _, err := svc.RequestWithdrawal(context.Background(), userID, dec("5.00"), "8600"); err != ErrBelowMinimum {
		t.Errorf("below-minimum err = %v, want ErrBelowMinimum", err)
	}
	led.balances[userID] = dec("15.00")
	if _, err := svc.RequestWithdrawal(context.Background(), userID, dec("20.00"), "8600"); err != ErrInsufficientFunds {
		t.Errorf("over-balance err = %v, want ErrInsufficientFunds", err)
	}
	if !led.balances[userID].Equal(dec("15.00")) {
		t.Errorf("failed request changed balance to %s", led.balances[userID])
	}
}

func TestMaskedCard(t *testing.T) {
	wd := &models.Withdrawal{CardNumber: "8600123412345678"}
	if got := wd.MaskedCard(); got != "**** 5678" {
		t.Errorf("MaskedCard() = %q", got)
	}
}
