package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/mallhunt/treasurehunt/internal/config"
	"github.com/mallhunt/treasurehunt/internal/database"
	"github.com/mallhunt/treasurehunt/internal/device"
	"github.com/mallhunt/treasurehunt/internal/handler/health"
	"github.com/mallhunt/treasurehunt/internal/migrations"
	"github.com/mallhunt/treasurehunt/internal/photo"
	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/server"
	"github.com/mallhunt/treasurehunt/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// photoBackend is the photo store as seen by both the handlers and /healthz.
type photoBackend interface {
	server.PhotoStore
	Ping(ctx context.Context) error
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Tracing ---
	shutdownTracing, err := telemetry.SetupTracing(ctx, "treasurehunt", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	store := server.NewSQLiteStore(db)
	if err := bootstrap(ctx, logger, cfg, store); err != nil {
		return err
	}

	// --- Redis (optional) ---
	var (
		guard server.SubmitGuard
		rdb   *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		guard = server.NewRedisGuard(rdb, cfg.SubmitGuardTTL, logger)
		logger.Info("connected to redis")
	}

	// --- Photo storage ---
	var photos photoBackend
	if cfg.MinIOEndpoint != "" {
		photos, err = photo.NewMinIOStore(ctx, photo.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to object storage: %w", err)
		}
		logger.Info("connected to object storage", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
	} else {
		photos = photo.NewMemoryStore()
		logger.Warn("MINIO_ENDPOINT not set, photos are kept in memory")
	}

	engine := progress.New(store,
		progress.WithCooldown(cfg.QuizCooldown),
		progress.WithPhotoGate(cfg.PhotoFraudGate),
		progress.WithLogger(logger),
	)
	metrics := telemetry.NewMetrics()

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Store:         store,
		Engine:        engine,
		Tokens:        server.NewTokenIssuer(cfg.JWTSecret, cfg.PlayerTokenTTL),
		Photos:        photos,
		Devices:       device.NewCache(12 * time.Hour),
		Guard:         guard,
		Metrics:       metrics,
		PhotoMaxBytes: cfg.PhotoMaxBytes,
		SPADir:        cfg.SPADir,
	}, func(r chi.Router) {
		checks := health.NewHandler(logger, map[string]health.Checker{
			"sqlite": dbChecker{db},
			"photos": health.CheckFunc(photos.Ping),
		})
		if rdb != nil {
			checks.Optional("redis", redisChecker{rdb})
		}
		r.Mount("/healthz", checks.Routes())
		r.Handle("/metrics", metrics.Handler())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// bootstrap seeds demo data and the configured admin account.
func bootstrap(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *server.SQLiteStore) error {
	if cfg.SeedDemo {
		if err := server.SeedDemo(ctx, logger, store); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	if err := store.EnsureAdmin(ctx, cfg.AdminEmail, string(hash)); err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	logger.Info("admin account ready", "email", cfg.AdminEmail)
	return nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
