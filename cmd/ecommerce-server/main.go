package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/api"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/email"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/idp"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/middleware"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/users"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/vendors"
)

// auditRetentionDays bounds how long database audit entries are kept.
const auditRetentionDays = 90

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	log.WithField("environment", cfg.Environment).Info("starting ecommerce platform")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Storage.
	store, db, err := openStore(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}

	// Audit trail: always on file, mirrored into Postgres when available.
	var sink audit.Sink
	fileSink, err := audit.NewFileSink(audit.FileSinkConfig{
		Dir:      cfg.Audit.Dir,
		MaxSize:  cfg.Audit.MaxFileSize,
		MaxFiles: cfg.Audit.MaxFiles,
	})
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	sink = fileSink
	var pgSink *audit.PostgresSink
	if db != nil {
		pgSink, err = audit.NewPostgresSink(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to set up audit table: %w", err)
		}
		sink = audit.NewMultiSink(pgSink, fileSink)
	}
	auditor := audit.NewLogger(sink, log)
	if metrics != nil {
		auditor = auditor.WithMetrics(metrics)
	}

	// Monitor with scheduled counter pruning and a daily security report.
	mon := monitor.New(monitor.Config{
		SuspiciousThreshold: cfg.Monitor.SuspiciousThreshold,
		BruteForceThreshold: cfg.Monitor.BruteForceThreshold,
	}, auditor, log)
	if metrics != nil {
		mon = mon.WithMetrics(metrics)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every "+cfg.Monitor.CleanupInterval.String(), func() {
		if dropped := mon.Cleanup(); dropped > 0 {
			log.WithField("dropped", dropped).Debug("pruned low-count failure counters")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule monitor cleanup: %w", err)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		report, err := mon.GenerateReport(24 * time.Hour)
		if err != nil {
			log.WithError(err).Warn("failed to generate daily security report")
			return
		}
		log.WithFields(map[string]interface{}{
			"loginFailures":      report.TotalLoginFailures,
			"suspiciousIps":      len(report.SuspiciousIPs),
			"rateLimitHits":      report.RateLimitViolations,
			"highSeverityEvents": len(report.RecentHighSeverity),
		}).Info("daily security report")
	}); err != nil {
		return fmt.Errorf("failed to schedule daily report: %w", err)
	}
	if pgSink != nil {
		if _, err := scheduler.AddFunc("@daily", func() {
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			n, err := pgSink.Prune(pruneCtx, time.Now().AddDate(0, 0, -auditRetentionDays))
			if err != nil {
				log.WithError(err).Warn("failed to prune audit table")
				return
			}
			if n > 0 {
				log.WithField("deleted", n).Info("pruned expired audit entries")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule audit retention: %w", err)
		}
	}
	scheduler.Start()

	// Redis, when configured, backs distributed rate limiting.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		log.Info("redis connected, using distributed rate limiting")
	}

	// Identity provider client and token verification strategy.
	idpClient := idp.NewClient(idp.Config{
		BaseURL:       cfg.IdP.BaseURL,
		Realm:         cfg.IdP.Realm,
		AdminRealm:    cfg.IdP.AdminRealm,
		ClientID:      cfg.IdP.ClientID,
		ClientSecret:  cfg.IdP.ClientSecret,
		AdminUsername: cfg.IdP.AdminUsername,
		AdminPassword: cfg.IdP.AdminPassword,
		TokenTimeout:  cfg.IdP.TokenTimeout,
		AdminTimeout:  cfg.IdP.AdminTimeout,
		DevMode:       cfg.IsDevelopment(),
	}, log)
	if metrics != nil {
		idpClient = idpClient.WithMetrics(metrics)
	}

	verifier, err := buildVerifier(ctx, cfg, log)
	if err != nil {
		return err
	}

	tokenCache := auth.NewTokenCache(cfg.TokenCache.TTL, cfg.TokenCache.MaxEntries)
	if metrics != nil {
		tokenCache = tokenCache.WithMetrics(metrics)
	}
	cacheStop := make(chan struct{})
	tokenCache.StartCleanup(cfg.TokenCache.TTL, cacheStop)

	authenticator := middleware.NewAuthenticator(verifier, tokenCache, log)
	if metrics != nil {
		authenticator = authenticator.WithMetrics(metrics)
	}

	// Services.
	sender := email.NewSender(cfg.Email, log)
	mailer := email.NewMailer(sender, cfg.Server.FrontendURL)

	usersSvc := users.NewService(store, idpClient, auditor, mon, mailer, cfg.Tokens, log)
	vendorsSvc := vendors.NewService(store, idpClient, auditor, mailer, log)
	if metrics != nil {
		vendorsSvc = vendorsSvc.WithMetrics(metrics)
	}

	limiters := buildLimiters(ctx, cfg, redisClient, mon, metrics, log)

	server := api.NewServer(cfg.Server, api.Deps{
		Users:         usersSvc,
		Vendors:       vendorsSvc,
		Auditor:       auditor,
		Monitor:       mon,
		Authenticator: authenticator,
		Limiters:      limiters,
		Log:           log,
		Metrics:       metrics,
		DevMode:       cfg.IsDevelopment(),
	})

	// Health and metrics on a separate listener.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	go func() {
		log.WithField("addr", healthSrv.Addr).Info("health server listening")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	shutdown := observability.NewShutdownManager(log, nil, cfg.Server.ShutdownTimeout)
	shutdownErr := make(chan error, 1)
	shutdown.RegisterShutdownFunc(server.Shutdown)
	shutdown.RegisterShutdownFunc(healthSrv.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		scheduler.Stop()
		close(cacheStop)
		cancel()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error { return auditor.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return store.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}

	go func() {
		shutdownErr <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-errCh:
		return err
	case err := <-shutdownErr:
		return err
	}
}

// openStore picks the configured backend. The *sql.DB return is nil for the
// in-memory store and feeds the health checker otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *observability.Logger, metrics *observability.Metrics) (storage.Store, *sql.DB, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
			URL:          cfg.Storage.PostgresURL,
			MaxOpenConns: cfg.Storage.PostgresMaxConns,
			MaxIdleConns: cfg.Storage.PostgresMinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if metrics != nil {
			pg.ReportPoolMetrics(ctx, metrics, 15*time.Second)
		}
		log.Info("postgres storage ready")

		if cfg.Storage.CacheEnabled {
			return storage.NewCachedStore(pg, cfg.Storage.UserCacheSize, cfg.Storage.UserCacheTTL), pg.DB(), nil
		}
		return pg, pg.DB(), nil
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildVerifier selects the token verification strategy once at startup:
// remote userinfo verification against the provider, or local claim decoding
// for development without a reachable provider.
func buildVerifier(ctx context.Context, cfg *config.Config, log *observability.Logger) (auth.Verifier, error) {
	if cfg.IsDevelopment() && (cfg.IdP.SkipUserInfo || cfg.IdP.ClientSecret == "") {
		log.Warn("using local token verification, tokens are not checked against the provider")
		return auth.NewLocalVerifier(), nil
	}

	issuer := fmt.Sprintf("%s/realms/%s", cfg.IdP.BaseURL, cfg.IdP.Realm)
	verifier, err := auth.NewRemoteVerifier(ctx, issuer, cfg.IdP.UserInfoTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to set up remote verification: %w", err)
	}
	log.WithField("issuer", issuer).Info("remote token verification ready")
	return verifier, nil
}

// buildLimiters assembles the per-route rate limiters, Redis-backed when a
// client is available so limits hold across instances.
func buildLimiters(ctx context.Context, cfg *config.Config, redisClient *redis.Client, mon *monitor.Monitor, metrics *observability.Metrics, log *observability.Logger) api.Limiters {
	if redisClient != nil {
		build := func(name string, limit int, window time.Duration, message string) api.Middleware {
			l := middleware.NewDistributedRateLimiter(redisClient, middleware.LimiterConfig{
				Name:    name,
				Limit:   limit,
				Window:  window,
				Message: message,
				LogOnly: cfg.IsDevelopment(),
			}, log).WithMonitor(mon)
			if metrics != nil {
				l = l.WithMetrics(metrics)
			}
			return l.Handler
		}
		return api.Limiters{
			API:           build("api", cfg.RateLimit.APILimit, cfg.RateLimit.APIWindow, ""),
			Login:         build("login", cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow, "Too many login attempts, please try again later"),
			Registration:  build("registration", cfg.RateLimit.RegistrationLimit, cfg.RateLimit.RegistrationWindow, "Too many registration attempts, please try again later"),
			PasswordReset: build("password_reset", cfg.RateLimit.PasswordResetLimit, cfg.RateLimit.PasswordResetWindow, "Too many password reset requests, please try again later"),
			Refresh:       build("refresh", cfg.RateLimit.RefreshLimit, cfg.RateLimit.RefreshWindow, "Too many token refresh attempts, please try again later"),
		}
	}

	set := middleware.NewRateLimiters(cfg.RateLimit, cfg.IsDevelopment(), log).WithMonitor(mon)
	if metrics != nil {
		set = set.WithMetrics(metrics)
	}
	set.StartCleanup(ctx)
	return api.Limiters{
		API:           set.API.Handler,
		Login:         set.Login.Handler,
		Registration:  set.Registration.Handler,
		PasswordReset: set.PasswordReset.Handler,
		Refresh:       set.Refresh.Handler,
	}
}
