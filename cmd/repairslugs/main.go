// Command repairslugs backfills slugs for listings created before slugs
// existed. Rows that already have a slug are never touched, so the command
// is safe to run repeatedly.
package main

import (
	"context"
	"log/slog"
	"os"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/devtube/backend/internal/config"
	"github.com/devtube/backend/internal/projects"
	"github.com/devtube/backend/internal/slug"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	repaired, err := projects.RepairSlugs(ctx, projects.NewRepository(pool), func() string {
		return slug.New(slug.ListingLen)
	})
	if err != nil {
		return err
	}
	log.Info("slugs repaired", "count", repaired)
	return nil
}
