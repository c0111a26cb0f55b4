// Package auth covers registration, login and the account profile surface.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// IsDuplicate reports a unique violation (username, email or profile slug).
func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateUserTx(ctx context.Context, tx pgx.Tx, u *models.User) error {
	return tx.QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Username, u.Email, u.PasswordHash).Scan(&u.CreatedAt)
}

func (r *Repository) CreateProfileTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, user_id, slug) VALUES ($1, $2, $3)
	`, p.ID, p.UserID, p.Slug)
	return err
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, is_admin, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAccount loads the user with its profile and touches last_activity on
// the way through.
func (r *Repository) GetAccount(ctx context.Context, userID uuid.UUID) (*models.User, *models.Profile, error) {
	var u models.User
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		UPDATE profiles SET last_activity = NOW() WHERE user_id = $1
		RETURNING id, user_id, slug, bio, avatar_url, balance, frozen_balance,
		          is_verified, telegram_chat_id, last_activity
	`, userID).Scan(
		&p.ID, &p.UserID, &p.Slug, &p.Bio, &p.AvatarURL, &p.Balance,
		&p.FrozenBalance, &p.IsVerified, &p.TelegramChatID, &p.LastActivity,
	)
	if err != nil {
		return nil, nil, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, is_admin, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return &u, &p, nil
}

// UpdateProfile writes the editable profile fields. unlinkTelegram clears the
// chat binding.
func (r *Repository) UpdateProfile(ctx context.Context, userID uuid.UUID, bio, avatarURL string, unlinkTelegram bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles SET
			bio = $2,
			avatar_url = CASE WHEN $3 <> '' THEN $3 ELSE avatar_url END,
			telegram_chat_id = CASE WHEN $4 THEN NULL ELSE telegram_chat_id END
		WHERE user_id = $1
	`, userID, bio, avatarURL, unlinkTelegram)
	return err
}
