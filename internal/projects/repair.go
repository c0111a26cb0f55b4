package projects

import (
	"context"

	"github.com/google/uuid"
)

// SlugStore is the narrow repository surface of the slug repair routine.
type SlugStore interface {
	MissingSlugs(ctx context.Context) ([]uuid.UUID, error)
	SetSlug(ctx context.Context, id uuid.UUID, slug string) error
}

// RepairSlugs backfills slugs for listings created before slugs existed.
// Rows that already have a slug are never touched, so running it again is a
// no-op. Returns how many rows were repaired.
func RepairSlugs(ctx context.Context, store SlugStore, gen func() string) (int, error) {
	ids, err := store.MissingSlugs(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, id := range ids {
		for {
			err := store.SetSlug(ctx, id, gen())
			if IsDuplicateSlug(err) {
				continue
			}
			if err != nil {
				return repaired, err
			}
			repaired++
			break
		}
	}
	return repaired, nil
}
