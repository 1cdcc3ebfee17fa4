package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fadedpez/royalcharge/internal/api"
	"github.com/fadedpez/royalcharge/internal/bot"
	"github.com/fadedpez/royalcharge/internal/config"
	"github.com/fadedpez/royalcharge/internal/discord"
	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/syncserver"
	"github.com/fadedpez/royalcharge/pkg/db"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/livesync"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/archive"
	"github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/fadedpez/royalcharge/pkg/scheduler"
	"github.com/fadedpez/royalcharge/pkg/services/account"
	catalogService "github.com/fadedpez/royalcharge/pkg/services/catalog"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/fadedpez/royalcharge/pkg/services/store"
	"github.com/fadedpez/royalcharge/pkg/services/txn"
	"github.com/fadedpez/royalcharge/pkg/storage"
	"github.com/fadedpez/royalcharge/pkg/storage/file"
	"github.com/fadedpez/royalcharge/pkg/storage/s3"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second
	statsInterval   = 30 * time.Second
	requestsPerSec  = 20
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Default.WithError(err).Fatal("Failed to load configuration")
	}

	log := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), !cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Storefront stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	m := metrics.New()
	retrier := txn.Retrier{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff, Log: log}

	// Ledger and catalog
	var ledgerRepo ledger.Repository
	var catalogRepo catalog.Repository
	var dbStats scheduler.StatsSource
	switch cfg.StorageType {
	case config.StorageSQLite:
		conn, err := db.Open(ctx, cfg.DatabasePath(), log)
		if err != nil {
			return err
		}
		defer conn.Close()
		ledgerRepo = ledger.NewSQLiteRepository(conn)
		catalogRepo = catalog.NewSQLiteRepository(conn)
		dbStats = conn
		log.WithField("path", cfg.DatabasePath()).Info("Using SQLite storage")
	default:
		ledgerRepo = ledger.NewMemoryRepository()
		catalogRepo = catalog.NewMemoryRepository()
		log.Warn("Using in-memory storage (data will be lost on restart)")
	}

	// Order audit index
	var archiveRepo archive.Repository
	if cfg.ElasticsearchURL != "" {
		esCfg := archive.DefaultElasticsearchConfig()
		esCfg.URL = cfg.ElasticsearchURL
		esCfg.Username = cfg.ElasticsearchUser
		esCfg.Password = cfg.ElasticsearchPassword
		repo, err := archive.NewElasticsearchRepository(ctx, esCfg)
		if err != nil {
			log.WithError(err).Warn("Order archive unavailable, continuing without it")
		} else {
			archiveRepo = repo
		}
	}

	// Uploaded images
	var objects storage.Storage
	mediaDir := ""
	if cfg.S3Bucket != "" {
		bucket, err := s3.New(ctx, &s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return err
		}
		objects = bucket
	} else {
		local, err := file.New(&storage.Options{Path: cfg.MediaDir, BaseURL: "/media"})
		if err != nil {
			return err
		}
		objects = local
		mediaDir = cfg.MediaDir
	}
	mediaService, err := media.NewService(objects, cfg.AvatarsPath, log)
	if err != nil {
		return err
	}

	// Services. The Discord console joins the notifiers once it exists.
	hub := livesync.NewHub(ledgerRepo, catalogRepo, log, m)
	defer hub.Close()
	notifiers := livesync.Fanout{hub}

	accounts := account.NewService(ledgerRepo, &account.Config{
		RootAdminEmail: cfg.RootAdminEmail,
		Avatars:        mediaService,
		Notifier:       &notifiers,
		Metrics:        m,
		Retrier:        retrier,
		Log:            log,
	})
	catalogs := catalogService.NewService(catalogRepo, &catalogService.Config{
		Images:   mediaService,
		Notifier: &notifiers,
		Retrier:  retrier,
		Log:      log,
	})
	orders := store.NewService(ledgerRepo, catalogRepo, &store.Config{
		Archive:  archiveRepo,
		Images:   mediaService,
		Notifier: &notifiers,
		Metrics:  m,
		Retrier:  retrier,
		Log:      log,
	})
	tokens := jwt.NewJWTService(cfg.JWTSecret, cfg.SessionTTL)

	if cfg.DiscordToken != "" {
		session, err := discord.NewSession(cfg.DiscordToken)
		if err != nil {
			return err
		}
		console := bot.New(session, &bot.Config{
			AppID:         cfg.DiscordAppID,
			GuildID:       cfg.DiscordGuildID,
			OrdersChannel: cfg.DiscordOrdersChannel,
			AdminIDs:      cfg.DiscordAdminIDs,
			Development:   cfg.IsDevelopment(),
		}, orders, accounts, log)
		notifiers = append(notifiers, console)
		if err := console.Start(); err != nil {
			return err
		}
		defer console.Shutdown()
	}

	// Archive reindex and pool stats
	var reindexer scheduler.Reindexer
	if archiveRepo != nil {
		reindexer = orders
	}
	maintenance := scheduler.NewMaintenanceScheduler(scheduler.MaintenanceConfig{
		Archive:         reindexer,
		ArchiveInterval: cfg.ArchiveInterval,
		DB:              dbStats,
		StatsInterval:   statsInterval,
		Metrics:         m,
	}, log)
	maintenance.Start(ctx)
	defer maintenance.Stop()

	// Listeners
	app := api.NewApp(&api.Deps{
		Accounts:  accounts,
		Catalog:   catalogs,
		Store:     orders,
		Media:     mediaService,
		Tokens:    tokens,
		Metrics:   m,
		Log:       log,
		MediaDir:  mediaDir,
		RateLimit: requestsPerSec,
	})
	syncServer := syncserver.NewServer(hub, tokens, accounts, m, log)
	syncHTTP := &http.Server{
		Addr:              cfg.SyncAddr,
		Handler:           syncServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		errs <- app.Listen(cfg.HTTPAddr)
	}()
	go func() {
		if err := syncHTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	log.WithFields(logrus.Fields{
		"http": cfg.HTTPAddr,
		"sync": cfg.SyncAddr,
	}).Info("Storefront is running. Press CTRL-C to exit.")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	syncServer.Close()
	if err := syncHTTP.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Sync shutdown incomplete")
	}

	return runErr
}
