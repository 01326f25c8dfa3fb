package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-tokengate/adapters/prommetrics"
	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/identity"
	gatewaymigrations "github.com/goliatone/go-tokengate/migrations"
	"github.com/goliatone/go-tokengate/providers"
	"github.com/goliatone/go-tokengate/providers/docusign"
	"github.com/goliatone/go-tokengate/providers/github"
	"github.com/goliatone/go-tokengate/providers/google"
	"github.com/goliatone/go-tokengate/providers/gusto"
	"github.com/goliatone/go-tokengate/providers/mailchimp"
	"github.com/goliatone/go-tokengate/providers/plaid"
	"github.com/goliatone/go-tokengate/providers/quickbooks"
	"github.com/goliatone/go-tokengate/providers/ramp"
	"github.com/goliatone/go-tokengate/providers/shipbob"
	"github.com/goliatone/go-tokengate/providers/slack"
	"github.com/goliatone/go-tokengate/providers/zendesk"
	"github.com/goliatone/go-tokengate/providers/zoom"
	"github.com/goliatone/go-tokengate/saga"
	"github.com/goliatone/go-tokengate/schedule"
	"github.com/goliatone/go-tokengate/store/redisindex"
	sqlstore "github.com/goliatone/go-tokengate/store/sql"
	"github.com/goliatone/go-tokengate/transport/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tokengate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	logger := glog.Ensure(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := configFromEnv()

	client, err := openPersistence(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = envDuration("TOKENGATE_TENANT_CACHE_TTL", 5*time.Minute)
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("tenant cache: %w", err)
	}
	tenantDirectory, err := sqlstore.NewCachedTenantDirectory(factory.TenantStore(), cacheService)
	if err != nil {
		return fmt.Errorf("tenant directory: %w", err)
	}

	var mirror core.SecondaryIndex
	var mirrorStore *redisindex.IndexStore
	if redisURL := strings.TrimSpace(os.Getenv("TOKENGATE_REDIS_URL")); redisURL != "" {
		mirrorStore, err = redisindex.FromURL(ctx, redisURL)
		if err != nil {
			// The mirror is advisory; the gateway runs without it.
			logger.Warn("redis mirror unavailable", "error", err)
		} else {
			mirror = mirrorStore
			defer mirrorStore.Close()
		}
	}

	recorder := prommetrics.NewRecorder()

	registry := core.NewProviderRegistry()
	if err := registerProviders(registry, logger); err != nil {
		return err
	}

	serviceOptions := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithRegistry(registry),
		core.WithTenantResolver(identity.NewResolver(tenantDirectory)),
		core.WithCredentialStore(factory.CredentialStore()),
	}
	if mirror != nil {
		serviceOptions = append(serviceOptions, core.WithSecondaryIndex(mirror))
	}
	service, err := core.NewService(cfg, serviceOptions...)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	cfg = service.Config()

	jobRegistry, err := schedule.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("job registry: %w", err)
	}

	engine := saga.NewMemoryEngine()
	tracker, err := saga.NewTracker(jobRegistry, factory.RunStore(), engine, &handoffExecutor{logger: logger},
		saga.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build tracker: %w", err)
	}

	scheduler, err := schedule.NewScheduler(jobRegistry, tracker,
		schedule.WithLogger(logger),
		schedule.WithPollInterval(cfg.Scheduler.PollInterval))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	api, err := httpapi.New(service, tracker,
		httpapi.WithLogger(logger),
		httpapi.WithRunCleaner(tracker),
		httpapi.WithMetricsHandler(recorder.Handler()),
		httpapi.WithCleanupMaxCount(cfg.Scheduler.CleanupMaxCount))
	if err != nil {
		return fmt.Errorf("build http api: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	cancelled, err := tracker.CleanupAll(shutdownCtx, cfg.Scheduler.CleanupMaxCount)
	if err != nil {
		logger.Warn("run cleanup", "error", err)
	}
	logger.Info("shutdown complete", "cancelled_runs", cancelled)
	return nil
}

// handoffExecutor is the default job executor: the sync internals live in
// external workers, so a firing is just recorded here. Queue-backed hand-off
// lives in adapters/gojob for deployments that run go-job workers.
type handoffExecutor struct {
	logger core.Logger
}

func (e *handoffExecutor) Execute(_ context.Context, jobName string) error {
	e.logger.Info("job firing handed off", "job_name", jobName)
	return nil
}

type persistenceConfig struct {
	debug  bool
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool { return c.debug }

func (c persistenceConfig) GetDriver() string { return c.driver }

func (c persistenceConfig) GetServer() string { return c.server }

func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }

func (c persistenceConfig) GetOtelIdentifier() string { return "go-tokengate" }

func openPersistence(ctx context.Context) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(envString("TOKENGATE_DB_DRIVER", "postgres")))
	dsn := strings.TrimSpace(os.Getenv("TOKENGATE_DB_DSN"))
	if dsn == "" {
		return nil, fmt.Errorf("TOKENGATE_DB_DSN is required")
	}

	var dialect schema.Dialect
	var migrationDialect string
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = gatewaymigrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationDialect = gatewaymigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		debug:  envBool("TOKENGATE_DB_DEBUG", false),
		driver: driver,
		server: dsn,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	_, err = gatewaymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, gatewaymigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return client, nil
}

func registerProviders(registry *core.ProviderRegistry, logger core.Logger) error {
	type factory struct {
		product string
		build   func(providers.Settings) (*providers.Base, error)
	}
	factories := []factory{
		{"docusign", docusign.New},
		{"github", github.New},
		{"google", google.New},
		{"gusto", gusto.New},
		{"mailchimp", mailchimp.New},
		{"quickbooks", quickbooks.New},
		{"ramp", ramp.New},
		{"shipbob", shipbob.New},
		{"slack", slack.New},
		{"zoom", zoom.New},
	}

	for _, f := range factories {
		settings, ok := settingsFromEnv(f.product)
		if !ok {
			logger.Info("provider not configured", "product", f.product)
			continue
		}
		provider, err := f.build(settings)
		if err != nil {
			return fmt.Errorf("provider %s: %w", f.product, err)
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	}

	if settings, ok := settingsFromEnv("zendesk"); ok {
		provider, err := zendesk.New(zendesk.Config{
			Settings:  settings,
			Subdomain: envString("TOKENGATE_ZENDESK_SUBDOMAIN", ""),
		})
		if err != nil {
			return fmt.Errorf("provider zendesk: %w", err)
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	} else {
		logger.Info("provider not configured", "product", "zendesk")
	}

	if clientID := strings.TrimSpace(os.Getenv("TOKENGATE_PLAID_CLIENT_ID")); clientID != "" {
		provider, err := plaid.New(plaid.Config{
			ClientID:    clientID,
			Secret:      os.Getenv("TOKENGATE_PLAID_SECRET"),
			BaseURL:     envString("TOKENGATE_PLAID_BASE_URL", ""),
			OwnerDomain: os.Getenv("TOKENGATE_PLAID_OWNER_DOMAIN"),
		})
		if err != nil {
			return fmt.Errorf("provider plaid: %w", err)
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	} else {
		logger.Info("provider not configured", "product", "plaid")
	}

	return nil
}

// settingsFromEnv reads TOKENGATE_<PRODUCT>_CLIENT_ID / _CLIENT_SECRET /
// _REDIRECT_URI. The redirect defaults to the gateway's own callback route
// under TOKENGATE_CALLBACK_BASE_URL.
func settingsFromEnv(product string) (providers.Settings, bool) {
	prefix := "TOKENGATE_" + strings.ToUpper(product) + "_"
	clientID := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
	if clientID == "" {
		return providers.Settings{}, false
	}
	redirect := strings.TrimSpace(os.Getenv(prefix + "REDIRECT_URI"))
	if redirect == "" {
		if base := strings.TrimSpace(os.Getenv("TOKENGATE_CALLBACK_BASE_URL")); base != "" {
			redirect = strings.TrimRight(base, "/") + "/auth/" + product + "/callback"
		}
	}
	return providers.Settings{
		ClientID:     clientID,
		ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
		RedirectURI:  redirect,
	}, true
}

func configFromEnv() core.Config {
	cfg := core.DefaultConfig()
	cfg.ServiceName = envString("TOKENGATE_SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPAddr = envString("TOKENGATE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.ManagingOrgID = envInt64("TOKENGATE_MANAGING_ORG_ID", cfg.ManagingOrgID)
	cfg.Scheduler.PollInterval = envDuration("TOKENGATE_POLL_INTERVAL", cfg.Scheduler.PollInterval)
	cfg.Scheduler.CleanupMaxCount = int(envInt64("TOKENGATE_CLEANUP_MAX_COUNT", int64(cfg.Scheduler.CleanupMaxCount)))
	return cfg
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
