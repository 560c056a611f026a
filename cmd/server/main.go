// Command server starts the PulseCast API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"pulsecast/internal/api"
	"pulsecast/internal/feed"
	"pulsecast/internal/lifecycle"
	"pulsecast/internal/observability/logging"
	"pulsecast/internal/observability/metrics"
	"pulsecast/internal/playback"
	"pulsecast/internal/provider"
	"pulsecast/internal/server"
	"pulsecast/internal/store"
	"pulsecast/internal/viewers"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	storeDriver := flag.String("store-driver", "", "record store driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	webhookLimit := flag.Int("rate-webhook-limit", 0, "maximum webhook deliveries per window for a single source")
	webhookWindow := flag.Duration("rate-webhook-window", 0, "window for counting webhook deliveries")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed webhook throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed webhook throttling")
	rateRedisDB := flag.Int("rate-redis-db", 0, "Redis database for distributed webhook throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis rate limiter operations")
	providerURL := flag.String("provider-url", "", "base URL of the live-video provider API")
	providerToken := flag.String("provider-token", "", "bearer token for the live-video provider API")
	providerAttempts := flag.Int("provider-max-attempts", 0, "attempts per provider request")
	providerRetryInterval := flag.Duration("provider-retry-interval", 0, "delay between provider request retries")
	webhookSecret := flag.String("webhook-secret", "", "shared secret expected on provider webhook deliveries")
	playbackSecret := flag.String("playback-secret", "", "HMAC secret for signing playback tokens")
	playbackTTL := flag.Duration("playback-ttl", 0, "lifetime of signed playback tokens")
	viewersDriver := flag.String("viewers-driver", "", "viewer tracker driver (memory or redis)")
	viewersRedisAddr := flag.String("viewers-redis-addr", "", "Redis address for the viewer tracker")
	viewersRedisPassword := flag.String("viewers-redis-password", "", "Redis password for the viewer tracker")
	viewersRedisDB := flag.Int("viewers-redis-db", 0, "Redis database for the viewer tracker")
	viewersTTL := flag.Duration("viewers-ttl", 0, "expiry for tracked viewer counts")
	statusPollInterval := flag.Duration("status-poll-interval", 0, "interval between provider status polls for live sessions")
	minRecordingSeconds := flag.Int("recording-min-seconds", 0, "recordings shorter than this are marked failed")
	maxRecordingSeconds := flag.Int("recording-max-seconds", 0, "recording durations are truncated to this cap")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("PULSECAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("PULSECAST_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("PULSECAST_MODE"))
	listenAddr := resolveListenAddr(*addr, os.Getenv("PULSECAST_ADDR"))

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	recordStore, storeCloser, err := openStore(bootCtx, storeSettings{
		Driver:              firstNonEmpty(*storeDriver, os.Getenv("PULSECAST_STORE_DRIVER")),
		DSN:                 resolvePostgresDSN(*postgresDSN),
		Mode:                serverMode,
		MaxConnections:      resolveInt(*postgresMaxConns, "PULSECAST_POSTGRES_MAX_CONNS"),
		MinConnections:      resolveInt(*postgresMinConns, "PULSECAST_POSTGRES_MIN_CONNS"),
		MaxConnLifetime:     resolveDuration(*postgresMaxConnLifetime, "PULSECAST_POSTGRES_MAX_CONN_LIFETIME", 0),
		MaxConnIdleTime:     resolveDuration(*postgresMaxConnIdle, "PULSECAST_POSTGRES_MAX_CONN_IDLE", 0),
		HealthCheckInterval: resolveDuration(*postgresHealthInterval, "PULSECAST_POSTGRES_HEALTH_INTERVAL", 0),
		ConnectTimeout:      resolveDuration(*postgresConnectTimeout, "PULSECAST_POSTGRES_CONNECT_TIMEOUT", 0),
		ApplicationName:     firstNonEmpty(*postgresAppName, os.Getenv("PULSECAST_POSTGRES_APP_NAME")),
	}, logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}

	providerClient, err := buildProviderClient(providerSettings{
		URL:           firstNonEmpty(*providerURL, os.Getenv("PULSECAST_PROVIDER_URL")),
		Token:         firstNonEmpty(*providerToken, os.Getenv("PULSECAST_PROVIDER_TOKEN")),
		MaxAttempts:   resolveInt(*providerAttempts, "PULSECAST_PROVIDER_MAX_ATTEMPTS"),
		RetryInterval: resolveDuration(*providerRetryInterval, "PULSECAST_PROVIDER_RETRY_INTERVAL", 0),
		Mode:          serverMode,
	}, logging.WithComponent(logger, "provider"))
	if err != nil {
		logger.Error("failed to configure provider client", "error", err)
		os.Exit(1)
	}

	policy := lifecycle.DefaultPolicy()
	if v := resolveInt(*minRecordingSeconds, "PULSECAST_RECORDING_MIN_SECONDS"); v > 0 {
		policy.MinDurationSeconds = v
	}
	if v := resolveInt(*maxRecordingSeconds, "PULSECAST_RECORDING_MAX_SECONDS"); v > 0 {
		policy.MaxDurationSeconds = v
	}
	engine := lifecycle.NewEngine(recordStore, policy, logging.WithComponent(logger, "lifecycle"))
	feedEngine := feed.NewEngine(recordStore)

	tracker, trackerCloser, err := buildViewerTracker(bootCtx, viewerSettings{
		Driver:        firstNonEmpty(*viewersDriver, os.Getenv("PULSECAST_VIEWERS_DRIVER")),
		RedisAddr:     firstNonEmpty(*viewersRedisAddr, os.Getenv("PULSECAST_VIEWERS_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*viewersRedisPassword, os.Getenv("PULSECAST_VIEWERS_REDIS_PASSWORD")),
		RedisDB:       resolveInt(*viewersRedisDB, "PULSECAST_VIEWERS_REDIS_DB"),
		TTL:           resolveDuration(*viewersTTL, "PULSECAST_VIEWERS_TTL", 0),
	})
	if err != nil {
		logger.Error("failed to configure viewer tracker", "error", err)
		os.Exit(1)
	}

	var secretHash string
	if secret := firstNonEmpty(*webhookSecret, os.Getenv("PULSECAST_WEBHOOK_SECRET")); secret != "" {
		secretHash, err = api.HashSecret(secret)
		if err != nil {
			logger.Error("failed to hash webhook secret", "error", err)
			os.Exit(1)
		}
	} else if serverMode == "production" {
		logger.Warn("webhook endpoint is unauthenticated; set PULSECAST_WEBHOOK_SECRET")
	}

	signer := playback.NewSigner(
		firstNonEmpty(*playbackSecret, os.Getenv("PULSECAST_PLAYBACK_SECRET")),
		resolveDuration(*playbackTTL, "PULSECAST_PLAYBACK_TTL", 0),
	)

	handler := api.NewHandler(api.Config{
		Store:             recordStore,
		Lifecycle:         engine,
		Feed:              feedEngine,
		Provider:          providerClient,
		Viewers:           tracker,
		Playback:          signer,
		Logger:            logging.WithComponent(logger, "api"),
		WebhookSecretHash: secretHash,
	})

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("PULSECAST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("PULSECAST_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "PULSECAST_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "PULSECAST_RATE_GLOBAL_BURST"),
			WebhookLimit:  resolveInt(*webhookLimit, "PULSECAST_RATE_WEBHOOK_LIMIT"),
			WebhookWindow: resolveDuration(*webhookWindow, "PULSECAST_RATE_WEBHOOK_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("PULSECAST_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("PULSECAST_RATE_REDIS_PASSWORD")),
			RedisDB:       resolveInt(*rateRedisDB, "PULSECAST_RATE_REDIS_DB"),
			RedisTimeout:  resolveDuration(*rateRedisTimeout, "PULSECAST_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("PulseCast API listening", "addr", listenAddr, "mode", serverMode)
		logger.Info("metrics endpoint available", "path", "/metrics")
		return srv.Run(groupCtx)
	})
	group.Go(func() error {
		poller := statusPoller{
			store:    recordStore,
			provider: providerClient,
			viewers:  tracker,
			logger:   logging.WithComponent(logger, "status-poller"),
			interval: resolveDuration(*statusPollInterval, "PULSECAST_STATUS_POLL_INTERVAL", 30*time.Second),
		}
		poller.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if storeCloser != nil {
		if err := storeCloser(shutdownCtx); err != nil {
			logger.Warn("failed to close record store", "error", err)
		}
	}
	if trackerCloser != nil {
		if err := trackerCloser(); err != nil {
			logger.Warn("failed to close viewer tracker", "error", err)
		}
	}

	logger.Info("server stopped")
}

var (
	errProductionMemoryStore     = errors.New("production mode requires the postgres record store")
	errPostgresWithoutDSN        = errors.New("postgres record store selected without DSN")
	errProductionWithoutProvider = errors.New("production mode requires PULSECAST_PROVIDER_URL")
)

func errUnsupportedStoreDriver(driver string) error {
	return fmt.Errorf("unsupported record store driver %q", driver)
}

func errUnsupportedViewerDriver(driver string) error {
	return fmt.Errorf("unsupported viewer tracker driver %q", driver)
}

type storeSettings struct {
	Driver              string
	DSN                 string
	Mode                string
	MaxConnections      int
	MinConnections      int
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
}

func openStore(ctx context.Context, settings storeSettings, logger *slog.Logger) (store.Store, func(context.Context) error, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	if driver == "" {
		if settings.DSN != "" {
			driver = "postgres"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		if settings.Mode == "production" {
			return nil, nil, errProductionMemoryStore
		}
		logger.Warn("using in-memory record store; state is lost on restart")
		return store.NewMemory(), nil, nil
	case "postgres":
		if settings.DSN == "" {
			return nil, nil, errPostgresWithoutDSN
		}
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:                 settings.DSN,
			MaxConnections:      int32(settings.MaxConnections),
			MinConnections:      int32(settings.MinConnections),
			MaxConnLifetime:     settings.MaxConnLifetime,
			MaxConnIdleTime:     settings.MaxConnIdleTime,
			HealthCheckInterval: settings.HealthCheckInterval,
			ConnectTimeout:      settings.ConnectTimeout,
			ApplicationName:     settings.ApplicationName,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		closer := func(context.Context) error {
			pg.Close()
			return nil
		}
		return pg, closer, nil
	default:
		return nil, nil, errUnsupportedStoreDriver(driver)
	}
}

type providerSettings struct {
	URL           string
	Token         string
	MaxAttempts   int
	RetryInterval time.Duration
	Mode          string
}

func buildProviderClient(settings providerSettings, logger *slog.Logger) (provider.Client, error) {
	if settings.URL == "" {
		if settings.Mode == "production" {
			return nil, errProductionWithoutProvider
		}
		logger.Warn("no provider configured; session provisioning uses a local stub")
		return &provider.Stub{}, nil
	}
	return provider.NewHTTPClient(provider.HTTPClientConfig{
		BaseURL:       settings.URL,
		Token:         settings.Token,
		MaxAttempts:   settings.MaxAttempts,
		RetryInterval: settings.RetryInterval,
		Logger:        logger,
	}), nil
}

type viewerSettings struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

func buildViewerTracker(ctx context.Context, settings viewerSettings) (viewers.Tracker, func() error, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	if driver == "" {
		if settings.RedisAddr != "" {
			driver = "redis"
		} else {
			driver = "memory"
		}
	}
	switch driver {
	case "memory":
		return viewers.NewMemoryTracker(settings.TTL), nil, nil
	case "redis":
		tracker, err := viewers.NewRedisTracker(ctx, viewers.RedisConfig{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
			TTL:      settings.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return tracker, tracker.Close, nil
	default:
		return nil, nil, errUnsupportedViewerDriver(driver)
	}
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func resolveListenAddr(flagValue, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	return listenAddr
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("PULSECAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
