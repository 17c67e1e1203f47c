package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	"github.com/hanko-field/storefront/internal/reviews"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/session"
)

func main() {
	ctx := context.Background()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLoggerWithLevel(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(strings.TrimSpace(envValues["STOREFRONT_SECRETS_PROJECT_ID"])),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	slots, readiness, closeSlots, err := buildSlotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise session storage", zap.Error(err), zap.String("backend", cfg.Session.Backend))
	}
	defer closeSlots()

	sessions, err := session.NewManager(session.ManagerDeps{
		Store:     slots,
		Namespace: cfg.Session.Namespace,
		Logger:    logger.Named("session"),
	})
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithHTTPClient(upstreamHTTPClient(cfg.Catalog.Timeout)),
		catalog.WithAPIKey(cfg.Catalog.APIKey),
	)
	if err != nil {
		logger.Fatal("failed to initialise catalog client", zap.Error(err))
	}
	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Source: catalogClient,
		Logger: logger.Named("catalog"),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}
	cartService, err := services.NewCartService(services.CartServiceDeps{
		Catalog: catalogService,
		Logger:  logger.Named("cart"),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	reviewClient, err := reviews.NewHTTPClient(cfg.Reviews.BaseURL,
		reviews.WithHTTPDoer(upstreamHTTPClient(cfg.Reviews.Timeout)),
		reviews.WithReviewAPIKey(cfg.Reviews.APIKey),
	)
	if err != nil {
		logger.Fatal("failed to initialise review client", zap.Error(err))
	}

	var events reviews.EventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.ReviewTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicName)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := reviews.NewPubSubPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise review publisher", zap.Error(err))
		}
		events = publisher
	}

	coordinator, err := reviews.NewCoordinator(reviews.Deps{
		Client: reviewClient,
		Events: events,
		Logger: logger.Named("reviews"),
	})
	if err != nil {
		logger.Fatal("failed to initialise review coordinator", zap.Error(err))
	}

	healthOpts := []handlers.HealthOption{}
	if readiness != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("sessions", readiness))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			handlers.SessionMiddleware,
			observability.RequestLoggerMiddleware,
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(catalogService).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(sessions, cartService).Routes),
		handlers.WithWishlistRoutes(handlers.NewWishlistHandlers(sessions, catalogService).Routes),
		handlers.WithProductRoutes(handlers.NewReviewHandlers(sessions, coordinator).Routes),
		handlers.WithSessionRoutes(handlers.NewSessionHandlers(sessions).Routes),
	)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	if cfg.Session.IdleTimeout > 0 {
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			runSessionSweeper(sweepCtx, sessions, cfg.Session.IdleTimeout, logger.Named("session"))
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening", zap.String("sessionBackend", cfg.Session.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func upstreamHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// buildSlotStore selects the session backend. The returned readiness check may be nil.
func buildSlotStore(ctx context.Context, cfg config.Config) (session.SlotStore, handlers.ReadinessCheck, func(), error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		client, err := session.NewRedisClient(cfg.Redis.URL, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		store, err := session.NewRedisStore(client, cfg.Session.TTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		ready := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return store, ready, func() { _ = client.Close() }, nil
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, nil, nil, err
		}
		store, err := session.NewFirestoreStore(provider, cfg.Firestore.Collection)
		if err != nil {
			_ = provider.Close()
			return nil, nil, nil, err
		}
		return store, provider.Ping, func() { _ = provider.Close() }, nil
	default:
		return session.NewMemoryStore(), nil, func() {}, nil
	}
}

func runSessionSweeper(ctx context.Context, sessions *session.Manager, maxIdle time.Duration, logger *zap.Logger) {
	interval := maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if released := sessions.Sweep(maxIdle); released > 0 {
				logger.Debug("released idle sessions", zap.Int("count", released), zap.Int("remaining", sessions.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
