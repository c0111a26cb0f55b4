package projects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/notify"
	"github.com/devtube/backend/internal/scan"
	"github.com/devtube/backend/internal/slug"
)

const maxSourceBytes = 50 << 20

// allowedSourceExts is the archive/source extension allow-list for uploads.
var allowedSourceExts = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".py": true, ".js": true, ".html": true, ".css": true, ".cpp": true,
	".java": true, ".dart": true, ".go": true, ".php": true,
}

var (
	ErrNotFound        = errors.New("listing not found")
	ErrForbidden       = errors.New("not the listing author")
	ErrInvalidTitle    = errors.New("title is required")
	ErrInvalidCategory = errors.New("unknown category")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrFileTooLarge    = errors.New("source file exceeds 50MB")
	ErrFileType        = errors.New("source file type not allowed")
)

// FileUpload is one incoming multipart file.
type FileUpload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Input carries the editable listing fields plus optional uploads.
type Input struct {
	Title       string
	Description string
	Category    string
	Price       decimal.Decimal
	YoutubeLink string
	Image       *FileUpload
	Gallery     []*FileUpload
	Source      *FileUpload
}

// Store is the persistence surface of the listing service.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, l *models.Listing) error
	UpdateTx(ctx context.Context, tx pgx.Tx, l *models.Listing, rescan bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	GetBySlug(ctx context.Context, slug string) (*models.Listing, error)
	Search(ctx context.Context, q, category, price string) ([]*models.Listing, error)
	Trending(ctx context.Context) ([]*models.Listing, error)
	Feed(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Listing, error)
	ListLiked(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error)
	ListSaved(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error)
	ListBought(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	ToggleLike(ctx context.Context, listingID, userID uuid.UUID) (bool, error)
	ToggleSave(ctx context.Context, listingID, userID uuid.UUID) (bool, error)
	AddImage(ctx context.Context, img *models.ListingImage) error
	ListImages(ctx context.Context, listingID uuid.UUID) ([]*models.ListingImage, error)
}

// Uploader pushes media/source files to blob storage.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Notifier delivers the like notification.
type Notifier interface {
	Send(ctx context.Context, e notify.Event)
}

type Service struct {
	store       Store
	uploader    Uploader
	enqueueScan scan.EnqueueTxFunc
	notifier    Notifier
	log         *slog.Logger
}

func NewService(store Store, uploader Uploader, enqueueScan scan.EnqueueTxFunc, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, uploader: uploader, enqueueScan: enqueueScan, notifier: notifier, log: log}
}

// Create validates, uploads media, writes the row and enqueues a scan in the
// same transaction when source content is attached.
func (s *Service) Create(ctx context.Context, authorID uuid.UUID, in Input) (*models.Listing, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	l := &models.Listing{
		ID:             uuid.New(),
		AuthorID:       authorID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Category:       in.Category,
		Price:          in.Price,
		YoutubeLink:    in.YoutubeLink,
		SecurityStatus: models.SecurityPending,
	}
	if err := s.uploadMedia(ctx, l, in); err != nil {
		return nil, err
	}
	if l.SourceURL == "" {
		// Nothing to review; the listing goes live as safe.
		l.SecurityStatus = models.SecuritySafe
		l.IsScanned = true
	}

	for {
		l.Slug = slug.New(slug.ListingLen)
		err := s.createOnce(ctx, l)
		if IsDuplicateSlug(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	for _, g := range in.Gallery {
		url, err := s.uploader.Upload(ctx, g.Name, g.Reader)
		if err != nil {
			s.log.Error("gallery upload", "listing_id", l.ID, "error", err)
			continue
		}
		img := &models.ListingImage{ID: uuid.New(), ListingID: l.ID, ImageURL: url}
		if err := s.store.AddImage(ctx, img); err != nil {
			s.log.Error("gallery insert", "listing_id", l.ID, "error", err)
		}
	}
	return l, nil
}

func (s *Service) createOnce(ctx context.Context, l *models.Listing) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.store.CreateTx(ctx, tx, l); err != nil {
		return err
	}
	if l.SourceURL != "" {
		if err := s.enqueueScan(ctx, tx, l.ID); err != nil {
			return fmt.Errorf("enqueue scan: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Update rewrites the listing. A new source file resets the scan state and
// queues a fresh review.
func (s *Service) Update(ctx context.Context, acc *middleware.Account, listingID uuid.UUID, in Input) (*models.Listing, error) {
	l, err := s.authorOnly(ctx, acc, listingID)
	if err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	l.Title = strings.TrimSpace(in.Title)
	l.Description = in.Description
	l.Category = in.Category
	l.Price = in.Price
	l.YoutubeLink = in.YoutubeLink
	rescan := in.Source != nil
	if err := s.uploadMedia(ctx, l, in); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.UpdateTx(ctx, tx, l, rescan); err != nil {
		return nil, err
	}
	if rescan {
		if err := s.enqueueScan(ctx, tx, l.ID); err != nil {
			return nil, fmt.Errorf("enqueue scan: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) Delete(ctx context.Context, acc *middleware.Account, listingID uuid.UUID) error {
	if _, err := s.authorOnly(ctx, acc, listingID); err != nil {
		return err
	}
	return s.store.Delete(ctx, listingID)
}

// Detail resolves a listing by slug and counts the view. Frozen listings are
// visible only to their author and to admins.
func (s *Service) Detail(ctx context.Context, acc *middleware.Account, slugOrID string) (*models.Listing, []*models.ListingImage, error) {
	l, err := s.store.GetBySlug(ctx, slugOrID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if l.IsFrozen && !canModerate(acc, l) {
		return nil, nil, ErrNotFound
	}
	if err := s.store.IncrementViews(ctx, l.ID); err != nil {
		s.log.Error("views counter", "listing_id", l.ID, "error", err)
	} else {
		l.Views++
	}
	images, err := s.store.ListImages(ctx, l.ID)
	if err != nil {
		return nil, nil, err
	}
	return l, images, nil
}

func (s *Service) Search(ctx context.Context, q, category, price string) ([]*models.Listing, error) {
	if category != "" && !models.ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	return s.store.Search(ctx, q, category, price)
}

func (s *Service) Trending(ctx context.Context) ([]*models.Listing, error) {
	return s.store.Trending(ctx)
}

func (s *Service) Feed(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return s.store.Feed(ctx, userID)
}

func (s *Service) Mine(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return s.store.ListByAuthor(ctx, userID)
}

func (s *Service) Liked(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return s.store.ListLiked(ctx, userID)
}

func (s *Service) Saved(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return s.store.ListSaved(ctx, userID)
}

func (s *Service) Bought(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error) {
	return s.store.ListBought(ctx, userID)
}

// Like toggles the like and notifies the author on the way up.
func (s *Service) Like(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	l, err := s.store.GetByID(ctx, listingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	liked, err := s.store.ToggleLike(ctx, listingID, userID)
	if err != nil {
		return false, err
	}
	if liked {
		s.notifier.Send(ctx, notify.Event{
			RecipientID: l.AuthorID,
			ActorID:     userID,
			Verb:        "liked",
			ListingID:   &listingID,
		})
	}
	return liked, nil
}

func (s *Service) Save(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	return s.store.ToggleSave(ctx, listingID, userID)
}

func (s *Service) authorOnly(ctx context.Context, acc *middleware.Account, listingID uuid.UUID) (*models.Listing, error) {
	l, err := s.store.GetByID(ctx, listingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.AuthorID != acc.User.ID && !acc.User.IsAdmin {
		return nil, ErrForbidden
	}
	return l, nil
}

func (s *Service) uploadMedia(ctx context.Context, l *models.Listing, in Input) error {
	if in.Image != nil {
		url, err := s.uploader.Upload(ctx, in.Image.Name, in.Image.Reader)
		if err != nil {
			return fmt.Errorf("image upload: %w", err)
		}
		l.ImageURL = url
	}
	if in.Source != nil {
		url, err := s.uploader.Upload(ctx, in.Source.Name, in.Source.Reader)
		if err != nil {
			return fmt.Errorf("source upload: %w", err)
		}
		l.SourceURL = url
		l.SourceName = in.Source.Name
	}
	return nil
}

func validate(in Input) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidTitle
	}
	if !models.ValidCategory(in.Category) {
		return ErrInvalidCategory
	}
	if in.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if in.Source != nil {
		if in.Source.Size > maxSourceBytes {
			return ErrFileTooLarge
		}
		if !allowedSourceExts[strings.ToLower(filepath.Ext(in.Source.Name))] {
			return ErrFileType
		}
	}
	return nil
}

func canModerate(acc *middleware.Account, l *models.Listing) bool {
	return acc != nil && (acc.User.IsAdmin || acc.User.ID == l.AuthorID)
}
