package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/security"
)

// Store is the listing side of a scan.
type Store interface {
	Target(ctx context.Context, listingID uuid.UUID) (sourceURL, sourceName string, err error)
	Apply(ctx context.Context, listingID uuid.UUID, status, aiAnalysis, vtLink string) error
}

// Fetcher pulls the artifact bytes from blob storage.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Classifier reviews source content and answers with a DANGER/SAFE verdict.
type Classifier interface {
	Analyze(ctx context.Context, content []byte) (string, error)
}

// FileScanner checks the raw artifact against antivirus engines.
type FileScanner interface {
	Scan(ctx context.Context, filename string, content []byte) (*security.Report, error)
}

// Service runs one scan cycle per listing: fetch, classify, combine, persist.
// Every cycle terminates the pending state, even when a vendor call fails.
type Service struct {
	store      Store
	fetcher    Fetcher
	classifier Classifier
	files      FileScanner
	log        *slog.Logger
}

func NewService(store Store, fetcher Fetcher, classifier Classifier, files FileScanner, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, fetcher: fetcher, classifier: classifier, files: files, log: log}
}

// Scan classifies a listing's content and persists the verdict. Vendor
// failures degrade to a warning verdict instead of leaving the listing
// pending forever.
func (s *Service) Scan(ctx context.Context, listingID uuid.UUID) error {
	sourceURL, sourceName, err := s.store.Target(ctx, listingID)
	if err != nil {
		return fmt.Errorf("load scan target: %w", err)
	}
	if sourceURL == "" {
		return s.store.Apply(ctx, listingID, models.SecuritySafe, "no source content attached", "")
	}

	content, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		s.log.Error("fetch scan content", "listing_id", listingID, "error", err)
		return s.degrade(ctx, listingID, fmt.Sprintf("content fetch failed: %v", err))
	}

	analysis, err := s.classifier.Analyze(ctx, content)
	if err != nil {
		s.log.Error("classifier", "listing_id", listingID, "error", err)
		return s.degrade(ctx, listingID, fmt.Sprintf("analysis failed: %v", err))
	}

	report, err := s.files.Scan(ctx, sourceName, content)
	if err != nil {
		s.log.Error("file scanner", "listing_id", listingID, "error", err)
		report = &security.Report{Status: fmt.Sprintf("file scan failed: %v", err)}
	}

	status := verdict(analysis, report.Status)
	s.log.Info("scan finished", "listing_id", listingID, "status", status)
	return s.store.Apply(ctx, listingID, status, analysis, report.Link)
}

// degrade records a terminal warning so the job is not retried against a
// vendor that keeps failing.
func (s *Service) degrade(ctx context.Context, listingID uuid.UUID, reason string) error {
	return s.store.Apply(ctx, listingID, models.SecurityWarning, reason, "")
}

// verdict combines both classifiers: any danger signal wins, an explicit
// SAFE with a clean file scan passes, everything else is a warning.
func verdict(analysis, fileStatus string) string {
	if security.IsDanger(analysis) || containsMalicious(fileStatus) {
		return models.SecurityDanger
	}
	if security.IsSafe(analysis) && !containsMalicious(fileStatus) {
		return models.SecuritySafe
	}
	return models.SecurityWarning
}

func containsMalicious(status string) bool {
	return strings.Contains(status, "malicious")
}
