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

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shopx/api/internal/analytics"
	"github.com/shopx/api/internal/handlers"
	"github.com/shopx/api/internal/platform/auth"
	"github.com/shopx/api/internal/platform/cache"
	"github.com/shopx/api/internal/platform/config"
	"github.com/shopx/api/internal/platform/events"
	pfirestore "github.com/shopx/api/internal/platform/firestore"
	"github.com/shopx/api/internal/platform/observability"
	"github.com/shopx/api/internal/platform/requestctx"
	"github.com/shopx/api/internal/platform/secrets"
	"github.com/shopx/api/internal/repositories"
	firestoreRepo "github.com/shopx/api/internal/repositories/firestore"
	"github.com/shopx/api/internal/repositories/memory"
	"github.com/shopx/api/internal/repositories/postgres"
	"github.com/shopx/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

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
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, err := openRegistry(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to initialise order store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("order store close error", zap.Error(err))
		}
	}()

	cacheStore, closeCache := newCacheStore(cfg)
	defer func() {
		if err := closeCache(); err != nil {
			logger.Warn("cache close error", zap.Error(err))
		}
	}()
	reportCache := cache.NewLoader(cacheStore, cfg.Statistics.CacheTTL)

	publisher, err := events.NewPublisher(ctx, cfg.Events, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.Close(closeCtx); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	authorizer, err := services.NewCasbinAuthorizer()
	if err != nil {
		logger.Fatal("failed to initialise authorizer", zap.Error(err))
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	eventLogger := observability.EventLogger(logger.Named("services"))

	statisticsService, err := services.NewStatisticsService(services.StatisticsServiceDeps{
		Orders:     registry.Orders(),
		Authorizer: authorizer,
		Cache:      reportCache,
		Settings:   statisticsSettings(cfg.Statistics),
		Metrics:    metrics,
		Logger:     eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise statistics service", zap.Error(err))
	}

	orderService, err := services.NewOrderStatusService(services.OrderStatusServiceDeps{
		Orders:     registry.Orders(),
		UnitOfWork: registry,
		Authorizer: authorizer,
		Statistics: statisticsService,
		Metrics:    metrics,
		Events:     publisher,
		Logger:     eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order status service", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(registry, cacheStore, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, startedAt)),
		handlers.WithHealthReporter(healthRepo),
	)

	orderHandlers := handlers.NewOrderHandlers(orderService)
	statisticsHandlers := handlers.NewStatisticsHandlers(statisticsService,
		handlers.WithStatisticsLocation(cfg.Statistics.Location),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAPIMiddlewares(
			authenticator.RequireAuth(auth.RoleSeller, auth.RoleAdmin),
			observability.CaptureIdentityMiddleware,
		),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithStatisticsRoutes(statisticsHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      http.MaxBytesHandler(router, cfg.Server.BodyLimit),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	jobCtx, stopJobs := context.WithCancel(ctx)
	var jobDone <-chan struct{}
	if cfg.AutoComplete.Enabled {
		completer, err := services.NewAutoCompleter(services.AutoCompleterDeps{
			Orders:       registry.Orders(),
			Machine:      orderService,
			DeliveredAge: cfg.AutoComplete.DeliveredAge,
			BatchSize:    cfg.AutoComplete.BatchSize,
			Metrics:      metrics,
			Logger:       observability.EventLogger(logger.Named("autocomplete")),
		})
		if err != nil {
			logger.Fatal("failed to initialise auto-complete job", zap.Error(err))
		}
		jobDone = completer.Start(jobCtx, cfg.AutoComplete.Interval)
		logger.Info("auto-complete job scheduled",
			zap.Duration("interval", cfg.AutoComplete.Interval),
			zap.Duration("deliveredAge", cfg.AutoComplete.DeliveredAge),
		)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orders api listening",
			zap.String("store", cfg.Store.Backend),
			zap.String("events", cfg.Events.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJobs()
	if jobDone != nil {
		<-jobDone
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Store.PostgresDSN,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
			SlowThreshold:   200 * time.Millisecond,
			Debug:           cfg.Store.Debug,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
			logger.Info("postgres schema migrated")
		}
		registry, err := postgres.NewRegistry(db)
		if err != nil {
			return nil, err
		}
		return registry, nil
	case config.StoreFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, err
		}
		registry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, err
		}
		return registry, nil
	default:
		logger.Warn("using in-memory order store; data is lost on restart")
		return memory.NewStore(), nil
	}
}

func newCacheStore(cfg config.Config) (cache.Store, func() error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cache.NewMemoryStore(), func() error { return nil }
	}
	store := cache.NewRedisStore(cache.NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix)
	return store, store.Close
}

func statisticsSettings(cfg config.StatisticsConfig) services.StatisticsSettings {
	costs := analytics.DefaultCostModel()
	costs.DefaultRatio = cfg.DefaultCOGSRatio
	costs.PriceBands = cfg.PriceBands
	for category, ratio := range cfg.CategoryCOGSRatios {
		costs.CategoryRatios[category] = ratio
	}

	profit := analytics.NewProfitAnalyzer()
	profit.Costs = costs
	profit.Expenses = analytics.ExpenseModel{
		PlatformRate:        cfg.PlatformRate,
		PaymentRate:         cfg.PaymentRate,
		MarketingRate:       cfg.MarketingRate,
		PackagingRate:       cfg.PackagingRate,
		CustomerServiceRate: cfg.CustomerServiceRate,
		ShippingPerOrder:    cfg.ShippingPerOrder,
	}

	return services.StatisticsSettings{
		Location:         cfg.Location,
		VIP:              analytics.VIPPolicy{MinSpend: cfg.VIPMinSpend, MinOrders: cfg.VIPMinOrders},
		Profit:           profit,
		TopProductsDays:  cfg.TopProductsDays,
		TopCustomersDays: cfg.TopCustomersDays,
		DefaultLimit:     cfg.DefaultLimit,
	}
}

func newHealthRepository(registry repositories.Registry, store cache.Store, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{Name: "store", Check: registry.Ping},
		{Name: "cache", Timeout: time.Second, Check: store.Ping},
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system-healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
