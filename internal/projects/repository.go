package projects

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devtube/backend/internal/models"
)

const listingColumns = `
	l.id, l.author_id, u.username, l.slug, l.title, l.description, l.category,
	l.price, l.youtube_link, l.image_url, l.source_url, l.source_name, l.views,
	l.is_scanned, l.security_status, l.ai_analysis, l.virustotal_link,
	l.reports_count, l.is_frozen, l.created_at`

const listingFrom = ` FROM listings l JOIN users u ON u.id = l.author_id`

// Repository persists listings and their relations (images, likes, saves,
// buyers).
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// IsDuplicateSlug reports a unique violation on the slug column, the signal
// to regenerate and retry.
func IsDuplicateSlug(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, l *models.Listing) error {
	return tx.QueryRow(ctx, `
		INSERT INTO listings (
			id, author_id, slug, title, description, category, price,
			youtube_link, image_url, source_url, source_name, security_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, l.ID, l.AuthorID, l.Slug, l.Title, l.Description, l.Category, l.Price,
		l.YoutubeLink, l.ImageURL, l.SourceURL, l.SourceName, l.SecurityStatus,
	).Scan(&l.CreatedAt)
}

// UpdateTx rewrites the editable fields. New source content resets the scan
// state so the listing goes back through review.
func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, l *models.Listing, rescan bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE listings SET
			title = $2, description = $3, category = $4, price = $5,
			youtube_link = $6, image_url = $7, source_url = $8, source_name = $9,
			is_scanned = CASE WHEN $10 THEN FALSE ELSE is_scanned END,
			security_status = CASE WHEN $10 THEN $11 ELSE security_status END
		WHERE id = $1
	`, l.ID, l.Title, l.Description, l.Category, l.Price,
		l.YoutubeLink, l.ImageURL, l.SourceURL, l.SourceName,
		rescan, models.SecurityPending)
	return err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+listingColumns+listingFrom+` WHERE l.id = $1`, id)
	return scanListing(row)
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+listingColumns+listingFrom+` WHERE l.slug = $1`, slug)
	return scanListing(row)
}

// Search lists visible (unfrozen) listings. q matches title, description and
// author username; price narrows to "free" or "premium".
func (r *Repository) Search(ctx context.Context, q, category, price string) ([]*models.Listing, error) {
	query := `SELECT` + listingColumns + listingFrom + ` WHERE l.is_frozen = FALSE`
	args := []any{}
	if q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		query += ` AND (l.title ILIKE $` + strconv.Itoa(n) +
			` OR l.description ILIKE $` + strconv.Itoa(n) +
			` OR u.username ILIKE $` + strconv.Itoa(n) + `)`
	}
	if category != "" {
		args = append(args, category)
		query += ` AND l.category = $` + strconv.Itoa(len(args))
	}
	switch price {
	case "free":
		query += ` AND l.price = 0`
	case "premium":
		query += ` AND l.price > 0`
	}
	query += ` ORDER BY l.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// Trending returns the 20 most viewed visible listings.
func (r *Repository) Trending(ctx context.Context) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+listingColumns+listingFrom+`
		WHERE l.is_frozen = FALSE ORDER BY l.views DESC LIMIT 20`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// Feed lists recent work from authors the user follows.
func (r *Repository) Feed(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+listingColumns+listingFrom+`
		JOIN follows f ON f.followee_id = l.author_id
		WHERE f.follower_id = $1 AND l.is_frozen = FALSE
		ORDER BY l.created_at DESC LIMIT 50`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func (r *Repository) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+listingColumns+listingFrom+`
		WHERE l.author_id = $1 ORDER BY l.created_at DESC`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func (r *Repository) ListLiked(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return r.listRelated(ctx, "listing_likes", userID)
}

func (r *Repository) ListSaved(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return r.listRelated(ctx, "listing_saves", userID)
}

func (r *Repository) ListBought(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return r.listRelated(ctx, "listing_buyers", userID)
}

func (r *Repository) listRelated(ctx context.Context, table string, userID uuid.UUID) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+listingColumns+listingFrom+`
		JOIN `+table+` rel ON rel.listing_id = l.id
		WHERE rel.user_id = $1 ORDER BY l.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE listings SET views = views + 1 WHERE id = $1`, id)
	return err
}

// ToggleLike flips the like and reports the new state.
func (r *Repository) ToggleLike(ctx context.Context, listingID, userID uuid.UUID) (bool, error) {
	return r.toggle(ctx, "listing_likes", listingID, userID)
}

func (r *Repository) ToggleSave(ctx context.Context, listingID, userID uuid.UUID) (bool, error) {
	return r.toggle(ctx, "listing_saves", listingID, userID)
}

func (r *Repository) toggle(ctx context.Context, table string, listingID, userID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM `+table+` WHERE listing_id = $1 AND user_id = $2
	`, listingID, userID)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() > 0 {
		return false, nil
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO `+table+` (listing_id, user_id) VALUES ($1, $2)
	`, listingID, userID)
	return true, err
}

// AddBuyerTx grants purchase access inside the escrow transaction. A false
// return means the buyer was already in the access set; the caller must
// treat the purchase as a duplicate and roll back.
func (r *Repository) AddBuyerTx(ctx context.Context, tx pgx.Tx, listingID, userID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		INSERT INTO listing_buyers (listing_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, listingID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) HasBuyer(ctx context.Context, listingID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM listing_buyers WHERE listing_id = $1 AND user_id = $2)
	`, listingID, userID).Scan(&exists)
	return exists, err
}

// --- moderation surface ---

func (r *Repository) IncrementReports(ctx context.Context, listingID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE listings SET reports_count = reports_count + 1
		WHERE id = $1 RETURNING reports_count
	`, listingID).Scan(&count)
	return count, err
}

func (r *Repository) FreezeIfUnfrozen(ctx context.Context, listingID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE listings SET is_frozen = TRUE WHERE id = $1 AND is_frozen = FALSE
	`, listingID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) ListingOwner(ctx context.Context, listingID uuid.UUID) (uuid.UUID, string, error) {
	var authorID uuid.UUID
	var title string
	err := r.pool.QueryRow(ctx, `
		SELECT author_id, title FROM listings WHERE id = $1
	`, listingID).Scan(&authorID, &title)
	return authorID, title, err
}

// SetFrozen is the admin override, bypassing the report guard.
func (r *Repository) SetFrozen(ctx context.Context, listingID uuid.UUID, frozen bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE listings SET is_frozen = $2 WHERE id = $1
	`, listingID, frozen)
	return err
}

// --- images ---

func (r *Repository) AddImage(ctx context.Context, img *models.ListingImage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO listing_images (id, listing_id, image_url) VALUES ($1, $2, $3)
	`, img.ID, img.ListingID, img.ImageURL)
	return err
}

func (r *Repository) ListImages(ctx context.Context, listingID uuid.UUID) ([]*models.ListingImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, listing_id, image_url FROM listing_images WHERE listing_id = $1
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.ListingImage
	for rows.Next() {
		var img models.ListingImage
		if err := rows.Scan(&img.ID, &img.ListingID, &img.ImageURL); err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// --- slug repair ---

// MissingSlugs lists rows created before slugs existed.
func (r *Repository) MissingSlugs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM listings WHERE slug IS NULL OR slug = ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetSlug assigns a slug to one listing. A duplicate error signals the
// caller to regenerate and retry.
func (r *Repository) SetSlug(ctx context.Context, id uuid.UUID, slug string) error {
	_, err := r.pool.Exec(ctx, `UPDATE listings SET slug = $2 WHERE id = $1`, id, slug)
	return err
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.AuthorID, &l.AuthorName, &l.Slug, &l.Title, &l.Description,
		&l.Category, &l.Price, &l.YoutubeLink, &l.ImageURL, &l.SourceURL,
		&l.SourceName, &l.Views, &l.IsScanned, &l.SecurityStatus, &l.AIAnalysis,
		&l.VirusTotalLink, &l.ReportsCount, &l.IsFrozen, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanListings(rows pgx.Rows) ([]*models.Listing, error) {
	var list []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

