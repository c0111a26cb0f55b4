package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/ledger"
	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
)

// ErrInsufficientFunds is returned when the buyer cannot cover the price.
var ErrInsufficientFunds = ledger.ErrInsufficientFunds

var (
	ErrListingFrozen    = errors.New("listing is frozen")
	ErrOwnListing       = errors.New("cannot buy your own listing")
	ErrAlreadyPurchased = errors.New("listing already purchased")
	ErrNotHold          = errors.New("purchase is not on hold")
	ErrNotDisputed      = errors.New("purchase is not disputed")
	ErrForbidden        = errors.New("not your purchase")

	// ErrLedgerInconsistent means a release found less frozen balance than the
	// entry amount. The entry stays on hold; operators must investigate.
	ErrLedgerInconsistent = errors.New("frozen balance below entry amount")
)

// TxBeginner opens transactions; satisfied by *pgxpool.Pool and by test fakes.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the balance-mutation surface the escrow machine needs.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
	CreditFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
	DebitFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) error
}

// PurchaseStore persists escrow entries.
type PurchaseStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Purchase, error)
	ListDisputed(ctx context.Context) ([]*models.Purchase, error)
}

// ListingAccess is the listing surface needed for a purchase.
type ListingAccess interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	AddBuyerTx(ctx context.Context, tx pgx.Tx, listingID, userID uuid.UUID) (bool, error)
	HasBuyer(ctx context.Context, listingID, userID uuid.UUID) (bool, error)
}

// Notifier delivers best-effort notifications after commits.
type Notifier interface {
	Send(ctx context.Context, e notify.Event)
	SendAdmins(ctx context.Context, e notify.Event)
}

// Service drives the wallet escrow state machine: purchase with hold,
// manual and timed release, dispute and admin resolution.
type Service struct {
	db        TxBeginner
	ledger    Ledger
	purchases PurchaseStore
	listings  ListingAccess
	notifier  Notifier
	hold      time.Duration
	log       *slog.Logger
}

func NewService(db TxBeginner, l Ledger, purchases PurchaseStore, listings ListingAccess, notifier Notifier, hold time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, ledger: l, purchases: purchases, listings: listings, notifier: notifier, hold: hold, log: log}
}

// Purchase buys a listing for the buyer. For paid listings a single
// transaction debits the buyer, credits the seller's frozen balance, records
// the buyer in the access set and creates a hold entry with a release
// deadline. Zero-price listings only join the access set. The seller
// notification is sent after commit and never affects the purchase.
func (s *Service) Purchase(ctx context.Context, buyer *models.User, listingID uuid.UUID) (*models.Purchase, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.IsFrozen {
		return nil, ErrListingFrozen
	}
	if l.AuthorID == buyer.ID {
		return nil, ErrOwnListing
	}
	has, err := s.listings.HasBuyer(ctx, listingID, buyer.ID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, ErrAlreadyPurchased
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if l.Price.IsZero() {
		added, err := s.listings.AddBuyerTx(ctx, tx, listingID, buyer.ID)
		if err != nil {
			return nil, err
		}
		if !added {
			return nil, ErrAlreadyPurchased
		}
		return nil, tx.Commit(ctx)
	}

	if err := s.ledger.Debit(ctx, tx, buyer.ID, l.Price); err != nil {
		return nil, err
	}
	if err := s.ledger.CreditFrozen(ctx, tx, l.AuthorID, l.Price); err != nil {
		return nil, err
	}
	// The access-set check above runs before the transaction, so a concurrent
	// buy can slip past it. The insert itself is the authority: a conflict
	// here aborts the whole purchase instead of double-charging.
	added, err := s.listings.AddBuyerTx(ctx, tx, listingID, buyer.ID)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, ErrAlreadyPurchased
	}
	releaseAt := time.Now().Add(s.hold)
	p := &models.Purchase{
		ID:        uuid.New(),
		BuyerID:   buyer.ID,
		SellerID:  l.AuthorID,
		ListingID: listingID,
		Amount:    l.Price,
		Status:    models.PurchaseHold,
		ReleaseAt: &releaseAt,
	}
	if err := s.purchases.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, notify.Event{
		RecipientID: l.AuthorID,
		ActorID:     buyer.ID,
		Verb:        "bought your listing",
		ListingID:   &listingID,
		Telegram: fmt.Sprintf(
			"🎉 <b>Congratulations!</b>\n\nYour listing <b>%s</b> was sold!\n💰 Amount: <b>$%s</b>\n👤 Buyer: %s\n\n<i>Funds are on hold until the buyer confirms or the hold period ends.</i>",
			l.Title, l.Price.StringFixed(2), buyer.Username),
	})
	return p, nil
}

// Confirm is the buyer-initiated release of a hold entry.
func (s *Service) Confirm(ctx context.Context, buyerID, purchaseID uuid.UUID) error {
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.BuyerID != buyerID {
		return ErrForbidden
	}
	if p.Status != models.PurchaseHold {
		return ErrNotHold
	}
	return s.settle(ctx, p, models.PurchaseHold, p.SellerID, models.PurchaseCompleted)
}

// Dispute freezes a hold entry from automatic release and alerts the admins.
func (s *Service) Dispute(ctx context.Context, buyerID, purchaseID uuid.UUID) error {
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.BuyerID != buyerID {
		return ErrForbidden
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	ok, err := s.purchases.SetStatusTx(ctx, tx, purchaseID, models.PurchaseHold, models.PurchaseDisputed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHold
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.SendAdmins(ctx, notify.Event{
		ActorID:   buyerID,
		Verb:      "opened a dispute",
		ListingID: &p.ListingID,
		Telegram:  fmt.Sprintf("⚖️ Dispute opened on purchase <code>%s</code> ($%s). Review required.", p.ID, p.Amount.StringFixed(2)),
	})
	return nil
}

// Resolve is the admin decision on a disputed entry: refund moves the frozen
// amount to the buyer and cancels the entry, release moves it to the seller
// and completes it.
func (s *Service) Resolve(ctx context.Context, purchaseID uuid.UUID, refund bool) error {
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.Status != models.PurchaseDisputed {
		return ErrNotDisputed
	}
	if refund {
		return s.settle(ctx, p, models.PurchaseDisputed, p.BuyerID, models.PurchaseCanceled)
	}
	return s.settle(ctx, p, models.PurchaseDisputed, p.SellerID, models.PurchaseCompleted)
}

// ReleaseDue sweeps hold entries past their release deadline, settling each in
// its own transaction so one failure does not block the rest. Returns how
// many entries were released.
func (s *Service) ReleaseDue(ctx context.Context) (int, error) {
	due, err := s.purchases.ListDue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	released := 0
	for _, p := range due {
		if err := s.settle(ctx, p, models.PurchaseHold, p.SellerID, models.PurchaseCompleted); err != nil {
			s.log.Error("escrow release failed", "purchase_id", p.ID, "error", err)
			continue
		}
		released++
	}
	return released, nil
}

// settle moves the entry amount from the seller's frozen balance to the given
// recipient's available balance and transitions the entry out of fromStatus.
// A frozen balance below the entry amount indicates ledger corruption: the
// transaction is rolled back, the entry keeps its status and the condition is
// surfaced as ErrLedgerInconsistent.
func (s *Service) settle(ctx context.Context, p *models.Purchase, fromStatus string, recipientID uuid.UUID, toStatus string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.DebitFrozen(ctx, tx, p.SellerID, p.Amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			s.log.Error("ledger integrity violation: frozen balance below entry amount",
				"purchase_id", p.ID, "seller_id", p.SellerID, "amount", p.Amount)
			return ErrLedgerInconsistent
		}
		return err
	}
	if err := s.ledger.Credit(ctx, tx, recipientID, p.Amount); err != nil {
		return err
	}
	ok, err := s.purchases.SetStatusTx(ctx, tx, p.ID, fromStatus, toStatus)
	if err != nil {
		return err
	}
	if !ok {
		// Raced with a concurrent transition; leave the other one standing.
		return fmt.Errorf("purchase %s no longer in status %s", p.ID, fromStatus)
	}
	return tx.Commit(ctx)
}

// ListByBuyer returns the caller's purchase history.
func (s *Service) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Purchase, error) {
	return s.purchases.ListByBuyer(ctx, buyerID)
}

// ListDisputed returns all open disputes for the admin queue.
func (s *Service) ListDisputed(ctx context.Context) ([]*models.Purchase, error) {
	return s.purchases.ListDisputed(ctx)
}
