package scan

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devtube/backend/internal/models"
)

// Repository reads the scan target and writes the verdict back.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Target returns the fields the worker needs to fetch and classify.
func (r *Repository) Target(ctx context.Context, listingID uuid.UUID) (sourceURL, sourceName string, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT source_url, source_name FROM listings WHERE id = $1
	`, listingID).Scan(&sourceURL, &sourceName)
	return sourceURL, sourceName, err
}

// Apply writes the verdict. is_scanned flips to true in every path; danger
// freezes the listing, safe unfreezes it only while the report counter is
// under the auto-freeze threshold.
func (r *Repository) Apply(ctx context.Context, listingID uuid.UUID, status, aiAnalysis, vtLink string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE listings SET
			is_scanned = TRUE,
			security_status = $2,
			ai_analysis = $3,
			virustotal_link = $4,
			is_frozen = CASE
				WHEN $2 = $5 THEN TRUE
				WHEN $2 = $6 AND reports_count < $7 THEN FALSE
				ELSE is_frozen
			END
		WHERE id = $1
	`, listingID, status, aiAnalysis, vtLink,
		models.SecurityDanger, models.SecuritySafe, models.ReportFreezeThreshold)
	return err
}

// Unscanned lists listings that have content but never finished a scan.
func (r *Repository) Unscanned(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM listings WHERE is_scanned = FALSE AND source_url <> ''
	`)
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
