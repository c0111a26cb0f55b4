// Package moderation handles listing reports and the auto-freeze threshold.
package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
)

// Store is the listing surface moderation needs. IncrementReports returns the
// new counter value; FreezeIfUnfrozen is guarded on is_frozen = FALSE so that
// exactly one caller wins when the threshold is crossed concurrently.
type Store interface {
	IncrementReports(ctx context.Context, listingID uuid.UUID) (int, error)
	FreezeIfUnfrozen(ctx context.Context, listingID uuid.UUID) (bool, error)
	ListingOwner(ctx context.Context, listingID uuid.UUID) (authorID uuid.UUID, title string, err error)
}

// Notifier delivers moderation events.
type Notifier interface {
	Send(ctx context.Context, e notify.Event)
	SendAdmins(ctx context.Context, e notify.Event)
}

type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
}

func NewService(store Store, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, notifier: notifier, log: log}
}

// Report counts a complaint against a listing. Reaching the freeze threshold
// freezes the listing and notifies the author and the admins once; repeat
// reports past the threshold are counted but fire nothing.
func (s *Service) Report(ctx context.Context, reporterID, listingID uuid.UUID) (int, error) {
	count, err := s.store.IncrementReports(ctx, listingID)
	if err != nil {
		return 0, err
	}
	if count < models.ReportFreezeThreshold {
		return count, nil
	}

	frozen, err := s.store.FreezeIfUnfrozen(ctx, listingID)
	if err != nil {
		return count, err
	}
	if !frozen {
		return count, nil
	}

	s.log.Warn("listing auto-frozen by reports", "listing_id", listingID, "reports", count)

	authorID, title, err := s.store.ListingOwner(ctx, listingID)
	if err != nil {
		s.log.Error("listing owner lookup failed", "listing_id", listingID, "error", err)
		return count, nil
	}
	msg := fmt.Sprintf("⚠️ Listing <b>%s</b> was frozen after %d reports.", title, count)
	s.notifier.Send(ctx, notify.Event{
		RecipientID: authorID,
		ActorID:     reporterID,
		Verb:        "listing_frozen",
		ListingID:   &listingID,
		Telegram:    msg,
	})
	s.notifier.SendAdmins(ctx, notify.Event{
		ActorID:   reporterID,
		Verb:      "listing_frozen",
		ListingID: &listingID,
		Telegram:  msg,
	})
	return count, nil
}
