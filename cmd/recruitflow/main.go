// Package main is the entry point for the recruitflow server.
// It wires all dependencies together and starts the HTTP server.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/config"
	"github.com/pitabwire/recruitflow/internal/idempotency"
	"github.com/pitabwire/recruitflow/internal/notify"
	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/internal/transport"
	"github.com/pitabwire/recruitflow/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "recruitflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Open the Record Store.
	records, err := buildStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	defer records.Close()

	// Step 5: Idempotency store and notifier.
	idemStore, idemCloser, err := buildIdempotencyStore(ctx, cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}

	notifier, notifyCloser, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		logger.Error("notifier initialization failed", zap.Error(err))
		return 1
	}

	// Step 6: Load the template catalog.
	catalog, err := buildCatalog(cfg.Workflow)
	if err != nil {
		logger.Error("workflow template catalog failed", zap.Error(err))
		return 1
	}

	// Step 7: Build the engine, manager and event producer.
	dispatcher := workflow.NewDispatcher(records, notifier, logger)
	engine := workflow.NewEngine(records, dispatcher,
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics),
	)
	manager := workflow.NewManager(records, engine, catalog, logger, cfg.Workflow.HistoryLimit)
	service := recruiting.NewService(records, engine, logger)

	// Step 8: Build HTTP router.
	readiness := observability.ReadinessChecks{
		Store:            records,
		IdempotencyStore: idemStore,
		TemplatesLoaded:  func() int { return len(catalog.List()) },
	}
	if hc, ok := notifier.(observability.HealthChecker); ok {
		readiness.Notifier = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Workflows:   manager,
		Triggers:    engine,
		Recruiting:  service,
		Idempotency: idemStore,
		Readiness:   readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
		zap.String("notify", cfg.Notify.Driver),
		zap.Int("templates", len(catalog.List())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if notifyCloser != nil {
		notifyCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStore opens the Record Store selected by cfg.Driver.
func buildStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("using in-memory record store")
		return store.NewMemoryStore(), nil

	case config.DriverPostgres:
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("postgres store: %s environment variable not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("postgres store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres store: ping: %w", err)
		}

		s := store.NewPgStore(pool)
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres store: %w", err)
			}
		}
		logger.Info("using postgres record store")
		return s, nil

	case config.DriverMongo:
		uri := os.Getenv(cfg.DSNEnv)
		if uri == "" {
			return nil, fmt.Errorf("mongo store: %s environment variable not set", cfg.DSNEnv)
		}
		opts := options.Client().
			ApplyURI(uri).
			SetMaxPoolSize(uint64(cfg.MaxOpenConns)).
			SetMinPoolSize(uint64(cfg.MaxIdleConns)).
			SetMaxConnIdleTime(cfg.ConnMaxLifetime)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("mongo store: connect: %w", err)
		}

		s := store.NewMongoStore(client, cfg.Database)
		if err := s.HealthCheck(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("mongo store: ping: %w", err)
		}
		if cfg.Migrate {
			if err := s.EnsureIndexes(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("mongo store: %w", err)
			}
		}
		logger.Info("using mongo record store", zap.String("database", cfg.Database))
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the trigger de-duplication store. A nil
// store disables de-duplication.
func buildIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, func(), error) {
	if !cfg.Enabled {
		logger.Info("trigger de-duplication disabled")
		return nil, nil, nil
	}

	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, nil

	case config.DriverRedis:
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("redis idempotency store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		s := idempotency.NewRedisStore(client)
		if err := s.HealthCheck(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis idempotency store: %w", err)
		}
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return s, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported idempotency driver: %q", cfg.Driver)
	}
}

// buildNotifier creates the notification delivery collaborator.
func buildNotifier(cfg config.NotifyConfig, logger *zap.Logger) (notify.Notifier, func(), error) {
	switch cfg.Driver {
	case config.DriverLog, "":
		return notify.NewLogNotifier(logger), nil, nil

	case config.DriverNATS:
		nc, err := notify.ConnectNATS(os.Getenv(cfg.URLEnv), logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("publishing notifications to nats",
			zap.String("url", nc.ConnectedUrl()),
			zap.String("subject_prefix", cfg.SubjectPrefix),
		)
		guarded := notify.NewGuarded(notify.NewNATSNotifier(nc, cfg.SubjectPrefix),
			cfg.FailureThreshold, cfg.Cooldown, logger)
		return guarded, func() { drain(nc, logger) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported notify driver: %q", cfg.Driver)
	}
}

func drain(nc *nats.Conn, logger *zap.Logger) {
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain failed", zap.Error(err))
	}
}

// buildCatalog loads the built-in templates plus the optional templates file.
func buildCatalog(cfg config.WorkflowConfig) (*workflow.Catalog, error) {
	templates := workflow.DefaultTemplates()
	if cfg.TemplatesFile != "" {
		extra, err := workflow.LoadTemplates(cfg.TemplatesFile)
		if err != nil {
			return nil, err
		}
		templates = append(templates, extra...)
	}
	return workflow.NewCatalog(templates...)
}
