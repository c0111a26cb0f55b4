package social

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
)

// verifiedSalesThreshold is the completed-sales count that earns the badge.
const verifiedSalesThreshold = 5

var (
	ErrSelfFollow      = errors.New("cannot follow yourself")
	ErrEmptyBody       = errors.New("body is required")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrAlreadyReviewed = errors.New("listing already reviewed")
	ErrNotFound        = errors.New("profile not found")
)

// Store is the persistence surface of the social service.
type Store interface {
	ToggleFollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	FollowerCount(ctx context.Context, userID uuid.UUID) (int, error)
	FollowingCount(ctx context.Context, userID uuid.UUID) (int, error)
	IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	CreateComment(ctx context.Context, c *models.Comment) error
	ListComments(ctx context.Context, listingID uuid.UUID) ([]*models.Comment, error)
	CreateReview(ctx context.Context, rv *models.Review) error
	ListReviews(ctx context.Context, listingID uuid.UUID) ([]*models.Review, error)
	CreateMessage(ctx context.Context, m *models.CommunityMessage) error
	RecentMessages(ctx context.Context) ([]*models.CommunityMessage, error)
	CreateContact(ctx context.Context, c *models.Contact) error
	ProfileByUsername(ctx context.Context, username string) (*models.User, *models.Profile, error)
	SetVerified(ctx context.Context, userID uuid.UUID) error
}

// SalesCounter reports completed sales for the verified badge.
type SalesCounter interface {
	CountCompletedSales(ctx context.Context, sellerID uuid.UUID) (int, error)
}

// Notifier delivers the follow notification.
type Notifier interface {
	Send(ctx context.Context, e notify.Event)
}

type Service struct {
	store    Store
	sales    SalesCounter
	notifier Notifier
	log      *slog.Logger
}

func NewService(store Store, sales SalesCounter, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, sales: sales, notifier: notifier, log: log}
}

// ToggleFollow flips the follow edge. Following someone notifies them;
// unfollowing is silent.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	if followerID == followeeID {
		return false, ErrSelfFollow
	}
	following, err := s.store.ToggleFollow(ctx, followerID, followeeID)
	if err != nil {
		return false, err
	}
	if following {
		s.notifier.Send(ctx, notify.Event{
			RecipientID: followeeID,
			ActorID:     followerID,
			Verb:        "followed",
		})
	}
	return following, nil
}

func (s *Service) Comment(ctx context.Context, userID, listingID uuid.UUID, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	c := &models.Comment{ID: uuid.New(), ListingID: listingID, UserID: userID, Body: body}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Comments(ctx context.Context, listingID uuid.UUID) ([]*models.Comment, error) {
	return s.store.ListComments(ctx, listingID)
}

// Review records a rating; the unique index keeps it to one per user per
// listing.
func (s *Service) Review(ctx context.Context, userID, listingID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	rv := &models.Review{ID: uuid.New(), ListingID: listingID, UserID: userID, Rating: rating, Comment: comment}
	if err := s.store.CreateReview(ctx, rv); err != nil {
		if IsDuplicateReview(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}
	return rv, nil
}

func (s *Service) Reviews(ctx context.Context, listingID uuid.UUID) ([]*models.Review, error) {
	return s.store.ListReviews(ctx, listingID)
}

func (s *Service) PostMessage(ctx context.Context, userID uuid.UUID, body string) (*models.CommunityMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	m := &models.CommunityMessage{ID: uuid.New(), UserID: userID, Body: body}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ChatHistory(ctx context.Context) ([]*models.CommunityMessage, error) {
	return s.store.RecentMessages(ctx)
}

func (s *Service) Contact(ctx context.Context, userID uuid.UUID, subject, message string) (*models.Contact, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyBody
	}
	c := &models.Contact{ID: uuid.New(), UserID: userID, Subject: subject, Message: message}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PublicProfile is the profile page payload. Reading a profile also settles
// the verified badge: five completed sales flip it on permanently.
type PublicProfile struct {
	Username    string            `json:"username"`
	Slug        string            `json:"slug"`
	Bio         string            `json:"bio"`
	AvatarURL   string            `json:"avatar_url"`
	IsVerified  bool              `json:"is_verified"`
	Followers   int               `json:"followers"`
	Following   int               `json:"following"`
	IsFollowing bool              `json:"is_following"`
	UserID      uuid.UUID         `json:"user_id"`
	Listings    []*models.Listing `json:"listings,omitempty"`
}

func (s *Service) Profile(ctx context.Context, viewerID *uuid.UUID, username string) (*PublicProfile, error) {
	u, p, err := s.store.ProfileByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !p.IsVerified {
		sales, err := s.sales.CountCompletedSales(ctx, u.ID)
		if err != nil {
			s.log.Error("sales count", "user_id", u.ID, "error", err)
		} else if sales >= verifiedSalesThreshold {
			if err := s.store.SetVerified(ctx, u.ID); err != nil {
				s.log.Error("verified badge", "user_id", u.ID, "error", err)
			} else {
				p.IsVerified = true
			}
		}
	}

	followers, err := s.store.FollowerCount(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	following, err := s.store.FollowingCount(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	out := &PublicProfile{
		Username:   u.Username,
		Slug:       p.Slug,
		Bio:        p.Bio,
		AvatarURL:  p.AvatarURL,
		IsVerified: p.IsVerified,
		Followers:  followers,
		Following:  following,
		UserID:     u.ID,
	}
	if viewerID != nil {
		out.IsFollowing, err = s.store.IsFollowing(ctx, *viewerID, u.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
