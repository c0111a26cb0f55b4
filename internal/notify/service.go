package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/models"
)

// Event is one notification to deliver: an in-app row for the recipient plus
// an optional Telegram push when the recipient has a chat bound.
type Event struct {
	RecipientID uuid.UUID
	ActorID     uuid.UUID
	Verb        string
	ListingID   *uuid.UUID
	Telegram    string // HTML message; empty skips the push
}

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	AdminIDs(ctx context.Context) ([]uuid.UUID, error)
	TelegramChatID(ctx context.Context, userID uuid.UUID) (*int64, error)
}

// Service fans an Event out to the in-app table and the Telegram relay.
// Delivery is best-effort throughout: a notification failure never propagates
// into the business operation that produced it.
type Service struct {
	store Store
	tg    *Telegram
	log   *slog.Logger
}

func NewService(store Store, tg *Telegram, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, tg: tg, log: log}
}

func (s *Service) Send(ctx context.Context, e Event) {
	if e.RecipientID == e.ActorID {
		return
	}
	n := &models.Notification{
		ID:          uuid.New(),
		RecipientID: e.RecipientID,
		ActorID:     e.ActorID,
		Verb:        e.Verb,
		ListingID:   e.ListingID,
	}
	if err := s.store.Create(ctx, n); err != nil {
		s.log.Error("notification insert failed", "recipient", e.RecipientID, "verb", e.Verb, "error", err)
	}
	if e.Telegram == "" || s.tg == nil {
		return
	}
	chatID, err := s.store.TelegramChatID(ctx, e.RecipientID)
	if err != nil {
		s.log.Error("telegram chat lookup failed", "recipient", e.RecipientID, "error", err)
		return
	}
	if chatID != nil {
		s.tg.Send(*chatID, e.Telegram)
	}
}

// SendAdmins delivers the event to every administrator.
func (s *Service) SendAdmins(ctx context.Context, e Event) {
	ids, err := s.store.AdminIDs(ctx)
	if err != nil {
		s.log.Error("admin lookup failed", "error", err)
		return
	}
	for _, id := range ids {
		ev := e
		ev.RecipientID = id
		s.Send(ctx, ev)
	}
}
