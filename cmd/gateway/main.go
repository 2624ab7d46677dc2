// Package main is the entry point for the unified gateway core.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gatewaylabs/unigw/internal/config"
	"github.com/gatewaylabs/unigw/internal/credential"
	"github.com/gatewaylabs/unigw/internal/idempotency"
	"github.com/gatewaylabs/unigw/internal/observability"
	"github.com/gatewaylabs/unigw/internal/ratelimit"
	ratelimitstore "github.com/gatewaylabs/unigw/internal/ratelimit/store"
	"github.com/gatewaylabs/unigw/internal/router"
	"github.com/gatewaylabs/unigw/internal/secrets"
	"github.com/gatewaylabs/unigw/internal/vault"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// gracefulShutdownTimeout is the maximum time to wait for graceful shutdown.
const gracefulShutdownTimeout = 30 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runGateway(app, flags, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("UNIGW_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("UNIGW_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("UNIGW_LOG_FORMAT", "json"),
		"Log format (json, console)")
	metricsAddr := flag.String("metrics-addr", getEnvOrDefault("UNIGW_METRICS_ADDR", ":9090"),
		"Address for the Prometheus metrics endpoint (empty to disable)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		metricsAddr: *metricsAddr,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("unigw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting unigw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("master_key_source", cfg.MasterKey.Source),
		observability.Bool("redis", cfg.Redis.Enabled),
		observability.Bool("mongo", cfg.Mongo.Enabled),
		observability.Int("idempotency_endpoints", len(cfg.Idempotency.Endpoints)),
	)

	return cfg
}

// application holds all application components.
type application struct {
	config      *config.Config
	tracer      *observability.Tracer
	vault       *vault.Vault
	records     credential.Store
	limiter     *ratelimit.Limiter
	limitStore  ratelimitstore.Store
	idempotency *idempotency.Service
	backend     idempotency.Backend
	router      *router.Router
	health      *router.HealthChecker
	redisClient *redis.Client
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	tracer := initTracer(cfg, logger)
	v := initVault(cfg, logger)
	records, priorities := initCredentialStore(cfg, logger)

	redisClient := initRedisClient(cfg, logger)
	limitStore := initRateLimitStore(redisClient, logger)
	limiter := ratelimit.New(limitStore,
		ratelimit.WithWindow(cfg.RateLimit.Window.Duration()),
		ratelimit.WithLogger(logger),
	)

	backend := initIdempotencyBackend(redisClient, logger)
	idemService := idempotency.NewService(backend,
		idempotency.WithTTL(cfg.Idempotency.TTL.Duration()),
		idempotency.WithEndpoints(cfg.Idempotency.Endpoints),
		idempotency.WithServiceLogger(logger),
	)

	var factory router.AdapterFactory = router.NewRegistry()
	if cfg.Router.Breaker.Enabled {
		factory = router.NewBreakerRegistry(factory, router.BreakerConfig{
			MinRequests: cfg.Router.Breaker.MinRequests,
			Timeout:     cfg.Router.Breaker.Timeout.Duration(),
			Logger:      logger,
		})
	}

	r := router.New(records, priorities, v, factory, router.DefaultCatalog(),
		router.WithAttemptTimeout(cfg.Router.AttemptTimeout.Duration()),
		router.WithAttemptSink(router.NewMemoryAttemptLog()),
		router.WithRouterLogger(logger),
	)
	health := router.NewHealthChecker(r, cfg.Router.HealthCacheTTL.Duration(), logger)

	return &application{
		config:      cfg,
		tracer:      tracer,
		vault:       v,
		records:     records,
		limiter:     limiter,
		limitStore:  limitStore,
		idempotency: idemService,
		backend:     backend,
		router:      r,
		health:      health,
		redisClient: redisClient,
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// initVault resolves the master key and opens the credential vault.
func initVault(cfg *config.Config, logger observability.Logger) *vault.Vault {
	provider, err := secrets.NewProvider(cfg.MasterKey, logger)
	if err != nil {
		logger.Fatal("failed to create master key provider", observability.Error(err))
	}
	defer func() { _ = provider.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	masterKey, err := provider.MasterKey(ctx)
	if err != nil {
		logger.Fatal("failed to resolve master key",
			observability.String("source", provider.Source()),
			observability.Error(err),
		)
	}

	v, err := vault.New(masterKey, vault.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to open credential vault", observability.Error(err))
	}

	logger.Info("credential vault ready",
		observability.String("master_key_source", provider.Source()),
		observability.Uint32("key_version", v.CurrentVersion()),
	)
	return v
}

// initCredentialStore opens the Mongo credential store, or the in-memory
// store when Mongo is disabled.
func initCredentialStore(cfg *config.Config, logger observability.Logger) (credential.Store, credential.PriorityStore) {
	if !cfg.Mongo.Enabled {
		logger.Warn("mongo disabled, credential records are in-memory and volatile")
		mem := credential.NewMemoryStore()
		return mem, mem
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := credential.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to mongo", observability.Error(err))
	}
	return store, store
}

// initRedisClient opens the shared Redis client, or nil when disabled.
func initRedisClient(cfg *config.Config, logger observability.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout.Duration(),
		ReadTimeout:  cfg.Redis.ReadTimeout.Duration(),
		WriteTimeout: cfg.Redis.WriteTimeout.Duration(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout.Duration())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis",
			observability.String("address", cfg.Redis.Address),
			observability.Error(err),
		)
	}
	return client
}

// initRateLimitStore picks the Redis admission store when Redis is
// enabled and the in-memory store otherwise.
func initRateLimitStore(client *redis.Client, logger observability.Logger) ratelimitstore.Store {
	if client == nil {
		logger.Warn("redis disabled, rate limit windows are per-process only")
		return ratelimitstore.NewMemoryStore()
	}
	return ratelimitstore.NewRedisStoreWithClient(client, "ratelimit:", logger)
}

// initIdempotencyBackend picks the Redis backend when Redis is enabled
// and the in-memory backend otherwise.
func initIdempotencyBackend(client *redis.Client, logger observability.Logger) idempotency.Backend {
	if client == nil {
		logger.Warn("redis disabled, idempotency records are per-process only")
		return idempotency.NewMemoryBackend()
	}
	return idempotency.NewRedisBackend(client, "idempotency:", logger)
}

// runGateway runs the gateway core and handles shutdown.
func runGateway(app *application, flags cliFlags, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startMetricsServerIfEnabled(flags.metricsAddr, logger)
	watcher := startConfigWatcher(app, flags.configPath, logger)
	go runIdempotencySweeper(ctx, app, logger)

	waitForShutdown(app, watcher, cancel, logger)
}

// startMetricsServerIfEnabled exposes the Prometheus registry.
func startMetricsServerIfEnabled(addr string, logger observability.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", observability.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", observability.Error(err))
		}
	}()
}

// startConfigWatcher starts the configuration watcher. Only runtime
// tunables are applied on reload; stores and key sources need a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		if err := newCfg.Validate(); err != nil {
			logger.Error("rejecting reloaded configuration", observability.Error(err))
			return
		}

		app.idempotency.SetEndpoints(newCfg.Idempotency.Endpoints)
		logger.Info("runtime configuration applied",
			observability.Int("idempotency_endpoints", len(newCfg.Idempotency.Endpoints)),
		)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}
	return watcher
}

// runIdempotencySweeper periodically purges expired idempotency records.
func runIdempotencySweeper(ctx context.Context, app *application, logger observability.Logger) {
	interval := app.config.Idempotency.SweepInterval.Duration()
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := app.idempotency.CleanupExpired(sweepCtx)
			cancel()
			if err != nil {
				logger.Warn("idempotency sweep failed", observability.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("idempotency sweep complete", observability.Int("deleted", deleted))
			}
		}
	}
}

// waitForShutdown blocks until a termination signal, then shuts
// everything down in dependency order.
func waitForShutdown(app *application, watcher *config.Watcher, cancel context.CancelFunc, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", observability.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("config watcher stop failed", observability.Error(err))
		}
	}

	app.health.Stop()

	if err := app.limitStore.Close(); err != nil {
		logger.Warn("rate limit store close failed", observability.Error(err))
	}
	if err := app.backend.Close(); err != nil {
		logger.Warn("idempotency backend close failed", observability.Error(err))
	}
	if err := app.records.Close(shutdownCtx); err != nil {
		logger.Warn("credential store close failed", observability.Error(err))
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			logger.Warn("redis close failed", observability.Error(err))
		}
	}
	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", observability.Error(err))
	}

	logger.Info("shutdown complete")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
