package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"

	"github.com/devtube/backend/internal/admin"
	"github.com/devtube/backend/internal/auth"
	"github.com/devtube/backend/internal/config"
	"github.com/devtube/backend/internal/escrow"
	"github.com/devtube/backend/internal/ledger"
	"github.com/devtube/backend/internal/migrations"
	"github.com/devtube/backend/internal/moderation"
	"github.com/devtube/backend/internal/notify"
	"github.com/devtube/backend/internal/projects"
	"github.com/devtube/backend/internal/router"
	"github.com/devtube/backend/internal/sandbox"
	"github.com/devtube/backend/internal/scan"
	"github.com/devtube/backend/internal/security"
	"github.com/devtube/backend/internal/social"
	"github.com/devtube/backend/internal/storage"
	"github.com/devtube/backend/internal/wallet"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		return err
	}

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

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return err
	}

	// Repositories.
	ledgerRepo := ledger.NewRepository(pool)
	escrowRepo := escrow.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	projectsRepo := projects.NewRepository(pool)
	scanRepo := scan.NewRepository(pool)
	socialRepo := social.NewRepository(pool)
	authRepo := auth.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)

	// Vendors.
	blobs := storage.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryUploadPreset)
	gemini := security.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	vt := security.NewVirusTotal(cfg.VTAPIKey)
	tg := notify.NewTelegram(cfg.TelegramBotToken, log)
	piston := sandbox.NewClient()

	// Services.
	notifier := notify.NewService(notifyRepo, tg, log)
	scanSvc := scan.NewService(scanRepo, blobs, gemini, vt, log)

	workers := river.NewWorkers()
	river.AddWorker(workers, scan.NewWorker(scanSvc))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: 4}},
		Workers: workers,
	})
	if err != nil {
		return err
	}

	authSvc := auth.NewService(authRepo, cfg.JWTSecret, log)
	escrowSvc := escrow.NewService(pool, ledgerRepo, escrowRepo, projectsRepo, notifier, cfg.HoldPeriod, log)
	walletSvc := wallet.NewService(pool, walletRepo, ledgerRepo, cfg.MinWithdrawal(), log)
	projectsSvc := projects.NewService(projectsRepo, blobs, scan.NewEnqueuer(riverClient), notifier, log)
	moderationSvc := moderation.NewService(projectsRepo, notifier, log)
	socialSvc := social.NewService(socialRepo, escrowRepo, notifier, log)

	// Handlers.
	handlers := router.Handlers{
		Auth:     auth.NewHandler(authSvc, blobs, log),
		Projects: projects.NewHandler(projectsSvc, moderationSvc, blobs, log),
		Escrow:   escrow.NewHandler(escrowSvc, log),
		Wallet:   wallet.NewHandler(walletSvc, blobs, log),
		Social:   social.NewHandler(socialSvc, notifyRepo, log),
		Sandbox:  sandbox.NewHandler(piston, log),
		Telegram: notify.NewHandler(notifyRepo, tg, cfg.JWTSecret, cfg.TelegramBotName, log),
		Admin:    admin.NewHandler(walletSvc, escrowSvc, projectsRepo, log),
	}
	mux := router.New(handlers, authSvc, authSvc, cfg.AllowedOrigins)

	if err := riverClient.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = riverClient.Stop(stopCtx)
	}()

	// Timed escrow release.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.ReleaseSweepSpec, func() {
		released, err := escrowSvc.ReleaseDue(context.Background())
		if err != nil {
			log.Error("escrow sweep", "error", err)
			return
		}
		if released > 0 {
			log.Info("escrow sweep released holds", "count", released)
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
