package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"go.opencensus.io/stats/view"

	"github.com/vbonduro/fotovendas/internal/config"
	"github.com/vbonduro/fotovendas/internal/db"
	"github.com/vbonduro/fotovendas/internal/identity"
	identitylocal "github.com/vbonduro/fotovendas/internal/identity/local"
	"github.com/vbonduro/fotovendas/internal/logging"
	"github.com/vbonduro/fotovendas/internal/mailer"
	"github.com/vbonduro/fotovendas/internal/metrics"
	"github.com/vbonduro/fotovendas/internal/photostore"
	"github.com/vbonduro/fotovendas/internal/photostore/local"
	s3store "github.com/vbonduro/fotovendas/internal/photostore/s3"
	"github.com/vbonduro/fotovendas/internal/platform"
	"github.com/vbonduro/fotovendas/internal/service"
	"github.com/vbonduro/fotovendas/internal/session"
	"github.com/vbonduro/fotovendas/internal/store"
	"github.com/vbonduro/fotovendas/internal/web"
	"github.com/vbonduro/fotovendas/internal/web/templates"
)

const (
	sweepInterval   = 10 * time.Minute
	browserMaxIdle  = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if !cfg.PlatformConfigured() {
		logger.Warn("PLATFORM_URL or PLATFORM_ANON_KEY is not set; platform backends will fail")
	}
	if names := cfg.DefaultSecrets(); len(names) > 0 {
		logger.Warn("secrets still use the built-in default value; set them before exposing the server", "settings", names)
	}
	if !cfg.CookieSecure {
		logger.Info("cookies are sent without the Secure flag; set COOKIE_SECURE=true when served over HTTPS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	pc := platform.NewClient(cfg.PlatformURL, cfg.PlatformKey)

	provider, resets := newIdentityProvider(cfg, database, pc, newMailer(cfg, logger), logger)

	photos, localPhotos, err := newPhotoStore(ctx, cfg, pc, logger)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	pool := pond.NewPool(cfg.SignWorkers)
	defer func() { _ = pool.Stop().Wait() }()

	if err := metrics.Register(); err != nil {
		logger.Error("failed to register metrics", "error", err)
		return
	}
	exporter := metrics.NewLogExporter(logger)
	view.RegisterExporter(exporter)
	defer view.UnregisterExporter(exporter)
	view.SetReportingPeriod(time.Minute)

	clientSvc, saleSvc, dashboardSvc := newServices(cfg, database, pc, photos, pool, logger)

	registry := session.NewRegistry(provider, logger)
	defer registry.Close()
	go sweepBrowsers(ctx, registry, logger)

	server := web.NewServer(web.Deps{
		Registry:       registry,
		Cookies:        web.NewCookieStore(cfg.CookieSecret, cfg.CookieSecure),
		Clients:        clientSvc,
		Sales:          saleSvc,
		Dashboard:      dashboardSvc,
		Resets:         resets,
		LocalPhotos:    localPhotos,
		Templates:      templates.FS,
		BootstrapWait:  cfg.BootstrapTimeout(),
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Logger:         logger,
	})
	httpServer := server.HTTPServer(cfg.Host)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Host)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}
}

func newMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.SendGridAPIKey == "" {
		logger.Info("SENDGRID_API_KEY not set; outgoing mail is logged")
		return mailer.NewLogMailer(logger)
	}
	return mailer.NewSendGridMailer(cfg.SendGridAPIKey, "FotoVendas", cfg.MailFrom)
}

// newIdentityProvider returns the configured provider and, for the local
// provider, the in-process password reset completer.
func newIdentityProvider(cfg *config.Config, database *sql.DB, pc *platform.Client, m mailer.Mailer, logger *slog.Logger) (identity.Provider, identity.ResetCompleter) {
	switch cfg.AuthBackend {
	case "platform":
		logger.Info("using platform identity provider")
		return platform.NewAuth(pc), nil
	default:
		logger.Info("using local identity provider")
		p := identitylocal.New(database, m, cfg.BaseURL, logger)
		return p, p
	}
}

func newPhotoStore(ctx context.Context, cfg *config.Config, pc *platform.Client, logger *slog.Logger) (photostore.PhotoStore, *local.LocalPhotoStore, error) {
	switch cfg.PhotoBackend {
	case "s3":
		logger.Info("using S3 photo backend", "bucket", cfg.PhotoBucket)
		s, err := s3store.NewS3PhotoStore(ctx, s3store.Config{
			Endpoint:        cfg.AwsEndpointURL,
			Region:          cfg.AwsRegion,
			AccessKeyID:     cfg.AwsAccessKeyID,
			SecretAccessKey: cfg.AwsSecretKey,
			Bucket:          cfg.PhotoBucket,
		})
		return s, nil, err
	case "platform":
		logger.Info("using platform photo backend", "bucket", cfg.PhotoBucket)
		return platform.NewStorage(pc, cfg.PhotoBucket), nil, nil
	default:
		logger.Info("using local photo backend", "path", cfg.PhotoPath)
		s, err := local.NewLocalPhotoStore(cfg.PhotoPath, cfg.BaseURL+"/storage", cfg.SigningSecret)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

func newServices(
	cfg *config.Config,
	database *sql.DB,
	pc *platform.Client,
	photos photostore.PhotoStore,
	pool pond.Pool,
	logger *slog.Logger,
) (*service.ClientService, *service.SaleService, *service.DashboardService) {
	ttl := cfg.SignedURLExpiry()
	switch cfg.DataBackend {
	case "platform":
		logger.Info("using platform data backend")
		clients, sales := platform.NewClients(pc), platform.NewSales(pc)
		return service.NewClientService(clients, logger),
			service.NewSaleService(sales, platform.NewPhotos(pc), clients, photos, pool, ttl, logger),
			service.NewDashboardService(clients, sales)
	default:
		logger.Info("using sqlite data backend", "path", cfg.DBPath)
		clients, sales := store.NewClientStore(database), store.NewSaleStore(database)
		return service.NewClientService(clients, logger),
			service.NewSaleService(sales, store.NewPhotoStore(database), clients, photos, pool, ttl, logger),
			service.NewDashboardService(clients, sales)
	}
}

// sweepBrowsers drops browsers that have been idle for a day.
func sweepBrowsers(ctx context.Context, registry *session.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Sweep(browserMaxIdle); n > 0 {
				logger.Info("swept idle browsers", "count", n, "remaining", registry.Len())
			}
		}
	}
}
