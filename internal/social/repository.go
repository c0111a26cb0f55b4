// Package social covers follows, comments, reviews, the community chat and
// contact messages.
package social

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devtube/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ToggleFollow flips the follow edge and reports the new state.
func (r *Repository) ToggleFollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2
	`, followerID, followeeID)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() > 0 {
		return false, nil
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
	`, followerID, followeeID)
	return true, err
}

func (r *Repository) FollowerCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM follows WHERE followee_id = $1
	`, userID).Scan(&n)
	return n, err
}

func (r *Repository) FollowingCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM follows WHERE follower_id = $1
	`, userID).Scan(&n)
	return n, err
}

func (r *Repository) IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)
	`, followerID, followeeID).Scan(&exists)
	return exists, err
}

// --- comments ---

func (r *Repository) CreateComment(ctx context.Context, c *models.Comment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO comments (id, listing_id, user_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.ListingID, c.UserID, c.Body).Scan(&c.CreatedAt)
}

func (r *Repository) ListComments(ctx context.Context, listingID uuid.UUID) ([]*models.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.listing_id, c.user_id, u.username, c.body, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.listing_id = $1 ORDER BY c.created_at ASC
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ListingID, &c.UserID, &c.Username, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// --- reviews ---

// IsDuplicateReview reports the unique violation on (listing_id, user_id).
func IsDuplicateReview(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateReview(ctx context.Context, rv *models.Review) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, listing_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rv.ID, rv.ListingID, rv.UserID, rv.Rating, rv.Comment).Scan(&rv.CreatedAt)
}

func (r *Repository) ListReviews(ctx context.Context, listingID uuid.UUID) ([]*models.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rv.id, rv.listing_id, rv.user_id, u.username, rv.rating, rv.comment, rv.created_at
		FROM reviews rv JOIN users u ON u.id = rv.user_id
		WHERE rv.listing_id = $1 ORDER BY rv.created_at DESC
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var rv models.Review
		if err := rows.Scan(&rv.ID, &rv.ListingID, &rv.UserID, &rv.Username, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, &rv)
	}
	return reviews, rows.Err()
}

// --- community chat ---

func (r *Repository) CreateMessage(ctx context.Context, m *models.CommunityMessage) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO community_messages (id, user_id, body)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, m.ID, m.UserID, m.Body).Scan(&m.CreatedAt)
}

// RecentMessages returns the latest 50 chat messages, oldest first.
func (r *Repository) RecentMessages(ctx context.Context) ([]*models.CommunityMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, username, body, created_at FROM (
			SELECT m.id, m.user_id, u.username, m.body, m.created_at
			FROM community_messages m JOIN users u ON u.id = m.user_id
			ORDER BY m.created_at DESC LIMIT 50
		) latest ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.CommunityMessage
	for rows.Next() {
		var m models.CommunityMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// --- contact ---

func (r *Repository) CreateContact(ctx context.Context, c *models.Contact) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, user_id, subject, message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.UserID, c.Subject, c.Message).Scan(&c.CreatedAt)
}

// --- public profile ---

// ProfileByUsername loads a user and profile pair for the public page.
func (r *Repository) ProfileByUsername(ctx context.Context, username string) (*models.User, *models.Profile, error) {
	var u models.User
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.is_admin, u.created_at,
		       p.id, p.user_id, p.slug, p.bio, p.avatar_url, p.is_verified, p.last_activity
		FROM users u JOIN profiles p ON p.user_id = u.id
		WHERE u.username = $1
	`, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.CreatedAt,
		&p.ID, &p.UserID, &p.Slug, &p.Bio, &p.AvatarURL, &p.IsVerified, &p.LastActivity,
	)
	if err != nil {
		return nil, nil, err
	}
	return &u, &p, nil
}

// SetVerified flips the badge; guarded so the write only happens on change.
func (r *Repository) SetVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles SET is_verified = TRUE WHERE user_id = $1 AND is_verified = FALSE
	`, userID)
	return err
}
