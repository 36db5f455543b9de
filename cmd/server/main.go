package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/genapi/internal"
	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/generation"
	"github.com/DukeRupert/genapi/internal/generation/gemini"
	"github.com/DukeRupert/genapi/internal/generation/mock"
	"github.com/DukeRupert/genapi/internal/generation/pollinations"
	"github.com/DukeRupert/genapi/internal/handler"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/ledger/memstore"
	"github.com/DukeRupert/genapi/internal/ledger/redisstore"
	"github.com/DukeRupert/genapi/internal/ledger/sqlstore"
	"github.com/DukeRupert/genapi/internal/metrics"
	"github.com/DukeRupert/genapi/internal/middleware"
	"github.com/DukeRupert/genapi/internal/service"
	"github.com/DukeRupert/genapi/internal/storage"
)

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize ledger storage
	store, err := openLedgerStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ledger initialization failed: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("Ledger ready", "backend", cfg.LedgerBackend)

	subscriptions := ledger.New(store, logger)
	if n, err := subscriptions.Count(ctx); err == nil {
		metrics.LedgerEntries.Set(float64(n))
	}
	subscriptions.StartJanitor(ctx, cfg.LedgerPruneInterval)

	// Gift codes: built-in set plus GIFT_CODES
	seed := maps.Clone(domain.DefaultGiftCodes)
	maps.Copy(seed, cfg.ExtraGiftCodes)
	registry, err := domain.NewGiftCodeRegistry(seed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("gift code registry failed: %w", err)
	}
	logger.Info("Gift codes loaded", "count", registry.Len())

	// Initialize upstream providers
	images, texts, closeProviders, err := newProviders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("provider initialization failed: %w", err)
	}
	defer closeProviders()

	// Initialize image archive
	archiver, err := newArchiver(cfg, logger)
	if err != nil {
		return fmt.Errorf("archive initialization failed: %w", err)
	}

	// Initialize services
	attempts := middleware.NewAttemptLimiter(cfg.GiftAttemptLimit, cfg.GiftAttemptWindow, logger)
	go attempts.Run(ctx)

	enforcer := service.NewEnforcer(subscriptions, logger)
	gifts := service.NewGiftService(registry, subscriptions, attempts, logger)
	generator := service.NewGenerationService(images, texts, archiver, cfg.UpstreamTimeout, logger)

	// Initialize middleware
	isSecure := !cfg.IsDevelopment()
	callerAuth := middleware.NewRapidAPIAuth(cfg.RapidAPIProxySecret, logger)
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("METRICS_USERNAME and METRICS_PASSWORD are empty, /metrics is unprotected")
	}

	// Initialize handlers
	apiHandler := handler.NewAPIHandler(enforcer, gifts, generator, subscriptions, registry, cfg.Region, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	if archiver != nil {
		handler.NewArchiveHandler(archiver, logger).RegisterRoutes(mux)
	}

	apiHandler.RegisterRoutes(mux, callerAuth.RequireCaller)

	stack := middleware.Stack(
		middleware.NewRecoverMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		middleware.NewCORSMiddleware().Handler,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Generation may take the whole upstream timeout
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server started",
			"address", server.Addr,
			"env", cfg.Env,
			"image_provider", cfg.ImageProvider,
			"text_provider", cfg.TextProvider,
			"archive", cfg.ArchiveProvider,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Stop the janitor and limiter sweeps
	cancel()

	if archiver != nil {
		if err := archiver.Wait(shutdownCtx); err != nil {
			logger.Warn("Archive writes still pending at shutdown", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}

// openLedgerStore connects the configured ledger backend. SQL backends are
// migrated before use.
func openLedgerStore(ctx context.Context, cfg *internal.Config) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case internal.LedgerSQLite:
		return sqlstore.Open(sqlstore.DriverSQLite, cfg.SQLitePath)
	case internal.LedgerPostgres:
		return sqlstore.Open(sqlstore.DriverPostgres, cfg.DatabaseUrl)
	case internal.LedgerRedis:
		return redisstore.Open(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	default:
		return memstore.New(), nil
	}
}

// newProviders builds the image and text providers. The returned func
// releases provider clients.
func newProviders(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (generation.ImageProvider, generation.TextProvider, func(), error) {
	pc := generation.ProviderConfig{
		MaxRetries:     cfg.UpstreamMaxRetries,
		RetryBaseDelay: cfg.UpstreamRetryBaseDelay,
		RequestTimeout: cfg.UpstreamTimeout,
	}

	var polli *pollinations.Provider
	pollinationsProvider := func() *pollinations.Provider {
		if polli == nil {
			polli = pollinations.New(pollinations.Config{
				ImageURL:       cfg.PollinationsImageURL,
				TextURL:        cfg.PollinationsTextURL,
				ProviderConfig: pc,
			}, logger)
		}
		return polli
	}

	var fake *mock.Provider
	mockProvider := func() *mock.Provider {
		if fake == nil {
			fake = mock.New(logger)
		}
		return fake
	}

	var images generation.ImageProvider
	switch cfg.ImageProvider {
	case internal.ProviderMock:
		images = mockProvider()
	default:
		images = pollinationsProvider()
	}

	closer := func() {}
	var texts generation.TextProvider
	switch cfg.TextProvider {
	case internal.ProviderGemini:
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:         cfg.GeminiAPIKey,
			Model:          cfg.GeminiModel,
			ProviderConfig: pc,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		texts = g
		closer = func() {
			if err := g.Close(); err != nil {
				logger.Warn("gemini client close failed", "error", err)
			}
		}
	case internal.ProviderMock:
		texts = mockProvider()
	default:
		texts = pollinationsProvider()
	}

	return images, texts, closer, nil
}

// newArchiver builds the optional image archive. It returns nil when
// archiving is off.
func newArchiver(cfg *internal.Config, logger *slog.Logger) (*service.Archiver, error) {
	var (
		store storage.Storage
		err   error
	)

	switch cfg.ArchiveProvider {
	case internal.ArchiveLocal:
		store, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	case internal.ArchiveR2:
		store, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return service.NewArchiver(store, service.NewImagingProcessor(), logger), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
