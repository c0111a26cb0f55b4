package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devtube/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, verb, listing_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, n.ID, n.RecipientID, n.ActorID, n.Verb, n.ListingID).Scan(&n.CreatedAt)
}

func (r *Repository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT n.id, n.recipient_id, n.actor_id, u.username, n.verb, n.listing_id, n.read, n.created_at
		FROM notifications n JOIN users u ON u.id = n.actor_id
		WHERE n.recipient_id = $1 ORDER BY n.created_at DESC LIMIT 100
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.ActorName, &n.Verb, &n.ListingID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE
	`, recipientID)
	return err
}

// AdminIDs returns the user ids of all administrators.
func (r *Repository) AdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE is_admin = TRUE`)
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

// TelegramChatID returns the bound chat id for a user, or nil.
func (r *Repository) TelegramChatID(ctx context.Context, userID uuid.UUID) (*int64, error) {
	var chatID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT telegram_chat_id FROM profiles WHERE user_id = $1
	`, userID).Scan(&chatID)
	return chatID, err
}

// BindTelegram stores the chat id a user connected through the bot.
func (r *Repository) BindTelegram(ctx context.Context, userID uuid.UUID, chatID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles SET telegram_chat_id = $2 WHERE user_id = $1
	`, userID, chatID)
	return err
}

// UsernameByID resolves a username for webhook confirmations.
func (r *Repository) UsernameByID(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, userID).Scan(&name)
	return name, err
}
