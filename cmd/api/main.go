package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/refugios-lanche/api/internal/di"
	"github.com/refugios-lanche/api/internal/handlers"
	"github.com/refugios-lanche/api/internal/platform/auth"
	"github.com/refugios-lanche/api/internal/platform/config"
	pfirestore "github.com/refugios-lanche/api/internal/platform/firestore"
	"github.com/refugios-lanche/api/internal/platform/jobs"
	"github.com/refugios-lanche/api/internal/platform/observability"
	"github.com/refugios-lanche/api/internal/platform/qr"
	"github.com/refugios-lanche/api/internal/platform/secrets"
	firestoreRepo "github.com/refugios-lanche/api/internal/repositories/firestore"
	"github.com/refugios-lanche/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatal("admin token secret is required")
	}
	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("failed to initialise token manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokenManager)

	events, closeEvents, err := newOrderEventPublisher(ctx, logger.Named("events"), cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	defer closeEvents()

	container, err := di.NewContainer(ctx, cfg, registry, di.Dependencies{
		Tokens:  tokenManager,
		Events:  events,
		QRCodes: qr.NewGenerator(),
		Build:   buildInfo,
		Logger:  newServiceLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)
	productHandlers := handlers.NewProductHandlers(authenticator, container.Services.Catalog)
	orderHandlers := handlers.NewOrderHandlers(authenticator, tokenManager, container.Services.Orders, container.Services.Sales)
	authHandlers := handlers.NewAuthHandlers(authenticator, container.Services.Auth)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAuthRoutes(authHandlers.Routes),
	)

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
		serverLogger.Info("refugios lanches api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := lookup("API_SECRET_DEFAULT_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	} else if project := lookup("API_FIRESTORE_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	opts = append(opts, secrets.WithFallbackFile(fallbackPath))

	return secrets.NewFetcher(ctx, opts...)
}

// newOrderEventPublisher wires the Pub/Sub topic for order lifecycle events.
// With no topic configured the returned publisher is nil and event emission is skipped.
func newOrderEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.PubSubConfig) (services.OrderEventPublisher, func(), error) {
	topicID := strings.TrimSpace(cfg.OrderEventsTopic)
	if topicID == "" {
		logger.Info("order events topic not configured; events disabled")
		return nil, func() {}, nil
	}
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, func() {}, errors.New("pubsub project id is required when an events topic is configured")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, func() {}, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, func() {}, err
	}

	events := services.OrderEventPublisherFunc(func(ctx context.Context, msg services.OrderEventMessage) error {
		_, err := publisher.PublishOrderEvent(ctx, msg)
		return err
	})

	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return events, closeFn, nil
}

func newServiceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
