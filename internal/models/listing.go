package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing categories.
const (
	CategoryWeb     = "web"
	CategoryMobile  = "mobile"
	CategoryAI      = "ai"
	CategoryGame    = "game"
	CategoryDesktop = "desktop"
)

// Categories lists every valid listing category.
var Categories = []string{CategoryWeb, CategoryMobile, CategoryAI, CategoryGame, CategoryDesktop}

// Security scan verdicts. A listing moves pending -> {safe|warning|danger}
// once per scan cycle; danger always freezes the listing.
const (
	SecurityPending = "pending"
	SecuritySafe    = "safe"
	SecurityWarning = "warning"
	SecurityDanger  = "danger"
)

// ReportFreezeThreshold is the report count at which a listing is auto-frozen.
const ReportFreezeThreshold = 10

type Listing struct {
	ID             uuid.UUID       `json:"id"`
	AuthorID       uuid.UUID       `json:"author_id"`
	AuthorName     string          `json:"author_name,omitempty"`
	Slug           string          `json:"slug"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	YoutubeLink    string          `json:"youtube_link,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	SourceURL      string          `json:"-"`
	SourceName     string          `json:"source_name,omitempty"`
	Views          int             `json:"views"`
	IsScanned      bool            `json:"is_scanned"`
	SecurityStatus string          `json:"security_status"`
	AIAnalysis     string          `json:"ai_analysis,omitempty"`
	VirusTotalLink string          `json:"virustotal_link,omitempty"`
	ReportsCount   int             `json:"reports_count"`
	IsFrozen       bool            `json:"is_frozen"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ListingImage struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	ImageURL  string    `json:"image_url"`
}

// ValidCategory reports whether c is a known listing category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
