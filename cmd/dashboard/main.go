package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/example/chargeback-desk/internal/api"
	"github.com/example/chargeback-desk/internal/config"
	"github.com/example/chargeback-desk/internal/dashboard"
	"github.com/example/chargeback-desk/internal/realtime"
	"github.com/example/chargeback-desk/internal/security"
	"github.com/example/chargeback-desk/internal/store"
	"github.com/example/chargeback-desk/pkg/audit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowlist, err := security.ParseCIDRAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	var (
		source    store.Source
		notifiers []realtime.Notifier
	)
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		source = store.NewPostgresSource(pool)

		bindings, err := realtime.ParseBindings(cfg.NotifyChannels)
		if err != nil {
			logger.Error("invalid NOTIFY_CHANNELS", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, realtime.NewPostgresNotifier(pool, bindings, logger))

	case config.DriverSQLite:
		db, err := sql.Open("sqlite3", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		src := store.NewSQLSource(db)
		if err := src.Migrate(ctx); err != nil {
			logger.Error("failed to migrate sqlite database", "error", err)
			os.Exit(1)
		}
		source = src
	}

	var (
		redisClient *redis.Client
		viewCache   dashboard.ViewCache
		rateLimiter *security.RedisTokenBucket
		auditSink   audit.Sink
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		viewCache = dashboard.NewRedisViewCache(redisClient, cfg.ViewCacheTTL())
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "chargeback_dashboard",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillPerSec,
		}
		// Each process chains from the zero hash, so it owns its own list.
		sink := audit.NewRedisSink(redisClient, audit.InstanceKey(cfg.AuditKey, uuid.NewString()))
		logger.Info("audit chain opened", "key", sink.Key())
		auditSink = sink

		if len(cfg.RedisChannels) > 0 {
			bindings, err := realtime.ParseBindings(cfg.RedisChannels)
			if err != nil {
				logger.Error("invalid REDIS_CHANNELS", "error", err)
				os.Exit(1)
			}
			notifiers = append(notifiers, realtime.NewRedisNotifier(redisClient, bindings, logger))
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		bindings, err := realtime.ParseBindings(cfg.KafkaTopics)
		if err != nil {
			logger.Error("invalid KAFKA_TOPICS", "error", err)
			os.Exit(1)
		}
		kn, err := realtime.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaGroupID, bindings, logger)
		if err != nil {
			logger.Error("failed to create kafka notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, kn)
	}

	svc := dashboard.NewService(store.NewLoader(source, logger), viewCache, logger)
	if err := svc.Refresh(ctx, realtime.NewSignal(realtime.OriginInitial, "")); err != nil {
		// Requests answer 503 until a later signal publishes a snapshot.
		logger.Error("initial load failed", "error", err)
	}

	signals := make(chan realtime.Signal, 64)
	scheduler := realtime.NewScheduler(svc, logger)
	go func() {
		_ = realtime.Fan(ctx, logger, signals, notifiers...)
	}()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx, signals)
	}()

	router, err := api.NewRouter(api.Dependencies{
		Logger:            logger,
		Dashboard:         svc,
		Refresher:         svc,
		Auditor:           audit.NewChainLogger(auditSink),
		RateLimiter:       rateLimiter,
		RateLimitFailOpen: cfg.Environment == "development",
		IPAllowlist:       allowlist,
		MaxBodyBytes:      cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsSettings := security.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, CAFile: cfg.TLSCA}
	if tlsSettings.Enabled() {
		files := []string{cfg.TLSCert, cfg.TLSKey}
		if cfg.TLSCA != "" {
			files = append(files, cfg.TLSCA)
		}
		if err := security.VerifyTLSFiles(files...); err != nil {
			logger.Error("TLS files missing", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig, err = security.LoadServerTLSConfig(tlsSettings)
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("chargeback dashboard listening",
		"addr", cfg.HTTPAddr,
		"env", cfg.Environment,
		"driver", cfg.DatabaseDriver,
		"tls", srv.TLSConfig != nil,
		"notifiers", len(notifiers),
	)
	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-schedulerDone
	logger.Info("shutdown complete")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
