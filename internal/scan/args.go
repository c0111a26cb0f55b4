// Package scan runs the background security review of listing content.
package scan

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// ScanListingArgs identifies the listing to review. Uniqueness by args keeps
// concurrent enqueues for the same listing down to a single job.
type ScanListingArgs struct {
	ListingID uuid.UUID `json:"listing_id"`
}

func (ScanListingArgs) Kind() string { return "scan_listing" }

func (ScanListingArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// EnqueueTxFunc inserts a scan job inside the caller's transaction so the job
// only exists if the listing write commits.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) error

// NewEnqueuer binds an EnqueueTxFunc to a River client.
func NewEnqueuer(client *river.Client[pgx.Tx]) EnqueueTxFunc {
	return func(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) error {
		_, err := client.InsertTx(ctx, tx, ScanListingArgs{ListingID: listingID}, nil)
		return err
	}
}
