package escrow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/ledger"
	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory mocks. noopTx satisfies pgx.Tx; only Commit/Rollback are called.
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

// --- Ledger mock: available + frozen balances with the debit guards. ---

type balances struct {
	available decimal.Decimal
	frozen    decimal.Decimal
}

type mockLedger struct {
	accounts map[uuid.UUID]*balances
}

func newMockLedger() *mockLedger { return &mockLedger{accounts: make(map[uuid.UUID]*balances)} }

func (m *mockLedger) set(id uuid.UUID, available, frozen string) {
	m.accounts[id] = &balances{
		available: decimal.RequireFromString(available),
		frozen:    decimal.RequireFromString(frozen),
	}
}

func (m *mockLedger) get(id uuid.UUID) *balances {
	b, ok := m.accounts[id]
	if !ok {
		b = &balances{}
		m.accounts[id] = b
	}
	return b
}

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	b := m.get(id)
	b.available = b.available.Add(amount)
	return nil
}

func (m *mockLedger) Debit(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	b := m.get(id)
	if b.available.LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}
	b.available = b.available.Sub(amount)
	return nil
}

func (m *mockLedger) CreditFrozen(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	b := m.get(id)
	b.frozen = b.frozen.Add(amount)
	return nil
}

func (m *mockLedger) DebitFrozen(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) error {
	b := m.get(id)
	if b.frozen.LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}
	b.frozen = b.frozen.Sub(amount)
	return nil
}

// --- PurchaseStore mock ---

type mockPurchases struct {
	rows map[uuid.UUID]*models.Purchase
}

func newMockPurchases() *mockPurchases {
	return &mockPurchases{rows: make(map[uuid.UUID]*models.Purchase)}
}

func (m *mockPurchases) CreateTx(_ context.Context, _ pgx.Tx, p *models.Purchase) error {
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *mockPurchases) GetByID(_ context.Context, id uuid.UUID) (*models.Purchase, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPurchases) SetStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	p, ok := m.rows[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (m *mockPurchases) ListDue(_ context.Context, now time.Time) ([]*models.Purchase, error) {
	var due []*models.Purchase
	for _, p := range m.rows {
		if p.Status == models.PurchaseHold && p.ReleaseAt != nil && !p.ReleaseAt.After(now) {
			cp := *p
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (m *mockPurchases) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]*models.Purchase, error) {
	var out []*models.Purchase
	for _, p := range m.rows {
		if p.BuyerID == buyerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPurchases) ListDisputed(_ context.Context) ([]*models.Purchase, error) {
	var out []*models.Purchase
	for _, p := range m.rows {
		if p.Status == models.PurchaseDisputed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- ListingAccess mock ---

type mockListings struct {
	listings map[uuid.UUID]*models.Listing
	buyers   map[uuid.UUID]map[uuid.UUID]bool

	// staleAccessCheck makes HasBuyer report false regardless of the access
	// set, simulating a concurrent buy committing between the precondition
	// check and the insert.
	staleAccessCheck bool
}

func newMockListings(ls ...*models.Listing) *mockListings {
	m := &mockListings{
		listings: make(map[uuid.UUID]*models.Listing),
		buyers:   make(map[uuid.UUID]map[uuid.UUID]bool),
	}
	for _, l := range ls {
		cp := *l
		m.listings[l.ID] = &cp
	}
	return m
}

func (m *mockListings) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	l, ok := m.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s not found", id)
	}
	cp := *l
	return &cp, nil
}

func (m *mockListings) AddBuyerTx(_ context.Context, _ pgx.Tx, listingID, userID uuid.UUID) (bool, error) {
	if m.buyers[listingID][userID] {
		return false, nil
	}
	if m.buyers[listingID] == nil {
		m.buyers[listingID] = make(map[uuid.UUID]bool)
	}
	m.buyers[listingID][userID] = true
	return true, nil
}

func (m *mockListings) HasBuyer(_ context.Context, listingID, userID uuid.UUID) (bool, error) {
	if m.staleAccessCheck {
		return false, nil
	}
	return m.buyers[listingID][userID], nil
}

// --- Notifier mock ---

type mockNotifier struct {
	events      []notify.Event
	adminEvents []notify.Event
}

func (m *mockNotifier) Send(_ context.Context, e notify.Event)       { m.events = append(m.events, e) }
func (m *mockNotifier) SendAdmins(_ context.Context, e notify.Event) { m.adminEvents = append(m.adminEvents, e) }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func listing(author uuid.UUID, price string) *models.Listing {
	return &models.Listing{
		ID:       uuid.New(),
		AuthorID: author,
		Title:    "demo project",
		Price:    decimal.RequireFromString(price),
	}
}

func newTestService(l *mockLedger, p *mockPurchases, ls *mockListings, n *mockNotifier) *Service {
	return NewService(mockPool{}, l, p, ls, n, 72*time.Hour, nil)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPurchaseDebitsBuyerAndFreezesSeller(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "100.00", "0")
	led.set(sellerID, "0", "0")
	l := listing(sellerID, "40.00")
	listings := newMockListings(l)
	purchases := newMockPurchases()
	notifier := &mockNotifier{}
	svc := newTestService(led, purchases, listings, notifier)

	p, err := svc.Purchase(context.Background(), &models.User{ID: buyerID, Username: "buyer"}, l.ID)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if got := led.get(buyerID).available; !got.Equal(dec("60.00")) {
		t.Errorf("buyer available = %s, want 60.00", got)
	}
	if got := led.get(sellerID).frozen; !got.Equal(dec("40.00")) {
		t.Errorf("seller frozen = %s, want 40.00", got)
	}
	if p.Status != models.PurchaseHold {
		t.Errorf("purchase status = %s, want hold", p.Status)
	}
	if p.ReleaseAt == nil || !p.ReleaseAt.After(time.Now()) {
		t.Error("release deadline not set in the future")
	}
	if has, _ := listings.HasBuyer(context.Background(), l.ID, buyerID); !has {
		t.Error("buyer not added to access set")
	}
	if len(notifier.events) != 1 || notifier.events[0].RecipientID != sellerID {
		t.Errorf("expected one seller notification, got %+v", notifier.events)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "10.00", "0")
	l := listing(sellerID, "40.00")
	listings := newMockListings(l)
	svc := newTestService(led, newMockPurchases(), listings, &mockNotifier{})

	_, err := svc.Purchase(context.Background(), &models.User{ID: buyerID}, l.ID)
	if err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := led.get(buyerID).available; !got.Equal(dec("10.00")) {
		t.Errorf("buyer balance changed to %s on failed purchase", got)
	}
	if has, _ := listings.HasBuyer(context.Background(), l.ID, buyerID); has {
		t.Error("buyer added to access set despite failed purchase")
	}
}

func TestPurchasePreconditions(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "100.00", "0")

	frozen := listing(sellerID, "5.00")
	frozen.IsFrozen = true
	own := listing(buyerID, "5.00")
	bought := listing(sellerID, "5.00")

	listings := newMockListings(frozen, own, bought)
	listings.buyers[bought.ID] = map[uuid.UUID]bool{buyerID: true}
	svc := newTestService(led, newMockPurchases(), listings, &mockNotifier{})

	cases := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{"frozen listing", frozen.ID, ErrListingFrozen},
		{"own listing", own.ID, ErrOwnListing},
		{"already purchased", bought.ID, ErrAlreadyPurchased},
	}
	for _, tc := range cases {
		if _, err := svc.Purchase(context.Background(), &models.User{ID: buyerID}, tc.id); err != tc.want {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestPurchaseDuplicateRaceAborts(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "100.00", "0")
	l := listing(sellerID, "40.00")
	listings := newMockListings(l)
	// Another buy by the same buyer committed after the precondition check.
	listings.buyers[l.ID] = map[uuid.UUID]bool{buyerID: true}
	listings.staleAccessCheck = true
	purchases := newMockPurchases()
	notifier := &mockNotifier{}
	svc := newTestService(led, purchases, listings, notifier)

	if _, err := svc.Purchase(context.Background(), &models.User{ID: buyerID}, l.ID); err != ErrAlreadyPurchased {
		t.Fatalf("err = %v, want ErrAlreadyPurchased", err)
	}
	if len(purchases.rows) != 0 {
		t.Error("duplicate buy created a second hold entry")
	}
	if len(notifier.events) != 0 {
		t.Error("duplicate buy notified the seller")
	}
}

func TestPurchaseFreeListingSkipsLedger(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "0", "0")
	l := listing(sellerID, "0")
	listings := newMockListings(l)
	purchases := newMockPurchases()
	svc := newTestService(led, purchases, listings, &mockNotifier{})

	p, err := svc.Purchase(context.Background(), &models.User{ID: buyerID}, l.ID)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if p != nil {
		t.Errorf("free listing created ledger entry %+v", p)
	}
	if has, _ := listings.HasBuyer(context.Background(), l.ID, buyerID); !has {
		t.Error("buyer not granted access to free listing")
	}
	if len(purchases.rows) != 0 {
		t.Error("free listing must not create a purchase row")
	}
}

func holdPurchase(buyerID, sellerID uuid.UUID, amount string, releaseAt time.Time) *models.Purchase {
	return &models.Purchase{
		ID:       uuid.New(),
		BuyerID:  buyerID,
		SellerID: sellerID,
		Amount:   decimal.RequireFromString(amount),
		Status:   models.PurchaseHold,
		ReleaseAt: func() *time.Time {
			t := releaseAt
			return &t
		}(),
		ListingID: uuid.New(),
	}
}

func TestConfirmReleasesFrozenToSeller(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "5.00", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Confirm(context.Background(), buyerID, p.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := led.get(sellerID).frozen; !got.IsZero() {
		t.Errorf("seller frozen = %s, want 0", got)
	}
	if got := led.get(sellerID).available; !got.Equal(dec("45.00")) {
		t.Errorf("seller available = %s, want 45.00", got)
	}
	if purchases.rows[p.ID].Status != models.PurchaseCompleted {
		t.Errorf("status = %s, want completed", purchases.rows[p.ID].Status)
	}
}

func TestConfirmWrongOwnerAndStatus(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "0", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Confirm(context.Background(), uuid.New(), p.ID); err != ErrForbidden {
		t.Errorf("foreign confirm err = %v, want ErrForbidden", err)
	}
	purchases.rows[p.ID].Status = models.PurchaseCompleted
	if err := svc.Confirm(context.Background(), buyerID, p.ID); err != ErrNotHold {
		t.Errorf("completed confirm err = %v, want ErrNotHold", err)
	}
	if got := led.get(sellerID).available; !got.IsZero() {
		t.Errorf("terminal entry moved money: available = %s", got)
	}
}

func TestConfirmInconsistentLedgerKeepsHold(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "0", "10.00") // less than the entry amount
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Confirm(context.Background(), buyerID, p.ID); err != ErrLedgerInconsistent {
		t.Fatalf("err = %v, want ErrLedgerInconsistent", err)
	}
	if purchases.rows[p.ID].Status != models.PurchaseHold {
		t.Errorf("status = %s, want hold preserved", purchases.rows[p.ID].Status)
	}
	if got := led.get(sellerID).frozen; !got.Equal(dec("10.00")) {
		t.Errorf("frozen balance changed to %s", got)
	}
}

func TestDisputeBlocksAutomaticRelease(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "0", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(-time.Hour))
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	notifier := &mockNotifier{}
	svc := newTestService(led, purchases, newMockListings(), notifier)

	if err := svc.Dispute(context.Background(), buyerID, p.ID); err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if purchases.rows[p.ID].Status != models.PurchaseDisputed {
		t.Fatalf("status = %s, want disputed", purchases.rows[p.ID].Status)
	}
	if len(notifier.adminEvents) != 1 {
		t.Errorf("expected one admin notification, got %d", len(notifier.adminEvents))
	}

	released, err := svc.ReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("ReleaseDue: %v", err)
	}
	if released != 0 {
		t.Errorf("sweep released %d disputed entries", released)
	}
	if got := led.get(sellerID).frozen; !got.Equal(dec("40.00")) {
		t.Errorf("frozen balance moved on disputed entry: %s", got)
	}
}

func TestResolveRefund(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(buyerID, "0", "0")
	led.set(sellerID, "0", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	p.Status = models.PurchaseDisputed
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Resolve(context.Background(), p.ID, true); err != nil {
		t.Fatalf("Resolve refund: %v", err)
	}
	if got := led.get(sellerID).frozen; !got.IsZero() {
		t.Errorf("seller frozen = %s, want 0", got)
	}
	if got := led.get(buyerID).available; !got.Equal(dec("40.00")) {
		t.Errorf("buyer available = %s, want 40.00", got)
	}
	if purchases.rows[p.ID].Status != models.PurchaseCanceled {
		t.Errorf("status = %s, want canceled", purchases.rows[p.ID].Status)
	}
}

func TestResolveRelease(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "0", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	p.Status = models.PurchaseDisputed
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Resolve(context.Background(), p.ID, false); err != nil {
		t.Fatalf("Resolve release: %v", err)
	}
	if got := led.get(sellerID).available; !got.Equal(dec("40.00")) {
		t.Errorf("seller available = %s, want 40.00", got)
	}
	if purchases.rows[p.ID].Status != models.PurchaseCompleted {
		t.Errorf("status = %s, want completed", purchases.rows[p.ID].Status)
	}
}

func TestResolveRequiresDispute(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerID, "0", "40.00")
	p := holdPurchase(buyerID, sellerID, "40.00", time.Now().Add(time.Hour))
	purchases := newMockPurchases()
	purchases.rows[p.ID] = p
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	if err := svc.Resolve(context.Background(), p.ID, true); err != ErrNotDisputed {
		t.Fatalf("err = %v, want ErrNotDisputed", err)
	}
}

func TestReleaseDueSweep(t *testing.T) {
	buyer, sellerA, sellerB := uuid.New(), uuid.New(), uuid.New()
	led := newMockLedger()
	led.set(sellerA, "0", "30.00")
	led.set(sellerB, "0", "0") // corrupted: nothing frozen for its due entry

	due := holdPurchase(buyer, sellerA, "30.00", time.Now().Add(-time.Minute))
	corrupt := holdPurchase(buyer, sellerB, "15.00", time.Now().Add(-time.Minute))
	future := holdPurchase(buyer, sellerA, "99.00", time.Now().Add(time.Hour))
	purchases := newMockPurchases()
	for _, p := range []*models.Purchase{due, corrupt, future} {
		purchases.rows[p.ID] = p
	}
	svc := newTestService(led, purchases, newMockListings(), &mockNotifier{})

	released, err := svc.ReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("ReleaseDue: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	if purchases.rows[due.ID].Status != models.PurchaseCompleted {
		t.Errorf("due entry status = %s, want completed", purchases.rows[due.ID].Status)
	}
	if purchases.rows[corrupt.ID].Status != models.PurchaseHold {
		t.Errorf("corrupt entry status = %s, want hold preserved", purchases.rows[corrupt.ID].Status)
	}
	if purchases.rows[future.ID].Status != models.PurchaseHold {
		t.Errorf("future entry status = %s, want hold", purchases.rows[future.ID].Status)
	}
	if got := led.get(sellerA).available; !got.Equal(dec("30.00")) {
		t.Errorf("sellerA available = %s, want 30.00", got)
	}
}
