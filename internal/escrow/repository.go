package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devtube/backend/internal/models"
)

// Repository persists purchase (escrow ledger entry) rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Purchase) error {
	return tx.QueryRow(ctx, `
		INSERT INTO purchases (id, buyer_id, seller_id, listing_id, amount, status, release_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.BuyerID, p.SellerID, p.ListingID, p.Amount, p.Status, p.ReleaseAt).Scan(&p.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var p models.Purchase
	err := r.pool.QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, listing_id, amount, status, release_at, created_at
		FROM purchases WHERE id = $1
	`, id).Scan(&p.ID, &p.BuyerID, &p.SellerID, &p.ListingID, &p.Amount, &p.Status, &p.ReleaseAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetStatusTx transitions a purchase from one status to another. The WHERE
// guard on the current status makes the transition idempotent: a second call
// finds zero rows and reports false.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE purchases SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListDue returns hold purchases whose release time has elapsed. Disputed
// entries are excluded by the status filter.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]*models.Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, buyer_id, seller_id, listing_id, amount, status, release_at, created_at
		FROM purchases WHERE status = $1 AND release_at <= $2
		ORDER BY release_at ASC
	`, models.PurchaseHold, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, buyer_id, seller_id, listing_id, amount, status, release_at, created_at
		FROM purchases WHERE buyer_id = $1 ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

func (r *Repository) ListDisputed(ctx context.Context) ([]*models.Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, buyer_id, seller_id, listing_id, amount, status, release_at, created_at
		FROM purchases WHERE status = $1 ORDER BY created_at ASC
	`, models.PurchaseDisputed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// CountCompletedSales returns how many completed sales a seller has; used for
// the verified-seller badge.
func (r *Repository) CountCompletedSales(ctx context.Context, sellerID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM purchases WHERE seller_id = $1 AND status = $2
	`, sellerID, models.PurchaseCompleted).Scan(&n)
	return n, err
}

func scanPurchases(rows pgx.Rows) ([]*models.Purchase, error) {
	var list []*models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.BuyerID, &p.SellerID, &p.ListingID, &p.Amount, &p.Status, &p.ReleaseAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
