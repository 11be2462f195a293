// Command jobsmv-server starts the jobsmv HTTP API and its gRPC health probe.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/jobsmv/internal/blacklist"
	"github.com/and161185/jobsmv/internal/config"
	"github.com/and161185/jobsmv/internal/crypto"
	"github.com/and161185/jobsmv/internal/health"
	"github.com/and161185/jobsmv/internal/keys"
	"github.com/and161185/jobsmv/internal/limiter"
	"github.com/and161185/jobsmv/internal/migrate"
	"github.com/and161185/jobsmv/internal/refresh"
	"github.com/and161185/jobsmv/internal/repository"
	"github.com/and161185/jobsmv/internal/repository/memory"
	"github.com/and161185/jobsmv/internal/repository/postgres"
	grpcserver "github.com/and161185/jobsmv/internal/server/grpc"
	httpserver "github.com/and161185/jobsmv/internal/server/http"
	"github.com/and161185/jobsmv/internal/service"
	"github.com/and161185/jobsmv/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares key material and storage, and serves
// until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

type storage struct {
	employers repository.EmployerRepository
	refresh   repository.RefreshTokenRepository
	jobs      repository.JobRepository
	limiter   limiter.Limiter
	close     func()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	km := keys.NewManager(keys.Paths{Private: cfg.PrivateKeyPath, Public: cfg.PublicKeyPath}, cfg.KeyBits, cfg.KeyID, logger)
	kp, err := km.LoadOrCreate(ctx)
	if err != nil {
		logger.Fatal("signing keys", zap.Error(err))
	}
	logger.Info("signing key ready", zap.String("kid", kp.KID))

	checks := health.New(2 * time.Second)
	checks.Add("keys", func(ctx context.Context) error {
		_, err := km.LoadOrCreate(ctx)
		return err
	})

	store, err := openStorage(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer store.close()

	var bl blacklist.Blacklist
	lim := store.limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		checks.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		bl = blacklist.NewRedis(rdb)
		lim = limiter.NewRedis(rdb)
	} else {
		mem := blacklist.NewMemory()
		go mem.Run(ctx, time.Minute)
		bl = mem
		logger.Warn("no redis configured; access token blacklist is process-local")
	}

	hasher := crypto.NewHasher(cfg.BcryptCost)
	codec := token.NewCodec(km, bl, token.Config{
		Audience: cfg.JWTAudience,
		Issuer:   cfg.JWTIssuer,
		TTL:      cfg.AccessTTL,
		Leeway:   cfg.Leeway,
	})
	refreshStore := refresh.NewStore(store.refresh, hasher, cfg.RefreshTTL)
	if cfg.PurgeEvery > 0 {
		go refreshStore.Run(ctx, cfg.PurgeEvery, func(n int64, err error) {
			if err != nil {
				logger.Warn("refresh token purge", zap.Error(err))
				return
			}
			logger.Debug("refresh tokens purged", zap.Int64("rows", n))
		})
	}

	authSvc := service.NewAuthService(service.AuthDeps{
		Employers: store.employers,
		Passwords: hasher,
		Tokens:    codec,
		Refresh:   refreshStore,
		Limiter:   limiter.NewFailOpen(lim, logger),
		Log:       logger,
		Roles:     []string{cfg.RequiredRole},
	})
	jobSvc := service.NewJobService(store.jobs, cfg.DefaultPage, cfg.MaxPage)

	api := httpserver.New(httpserver.Options{
		Auth:    authSvc,
		Jobs:    jobSvc,
		Gateway: httpserver.NewGateway(codec, store.employers, logger),
		Keys:    km,
		Health:  checks,
		Log:     logger,
		Role:    cfg.RequiredRole,
	})
	srv := api.HTTPServer(cfg.Addr)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.HealthAddr != "" {
		probe := grpcserver.NewProbe(checks, logger)
		gs := probe.Server()
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen health: %w", err)
		}
		go probe.Run(ctx, 10*time.Second)
		go func() {
			logger.Info("health probe listening", zap.String("addr", cfg.HealthAddr))
			if err := gs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		defer gs.Stop()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStorage connects Postgres (running migrations) or, for memory:// DSNs,
// builds process-local repositories.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks *health.Checker) (*storage, error) {
	if cfg.InMemory() {
		logger.Warn("using in-memory storage; data is lost on exit")
		return &storage{
			employers: memory.NewEmployers(),
			refresh:   memory.NewRefreshTokens(),
			jobs:      memory.NewJobs(),
			limiter:   limiter.NewMemory(),
			close:     func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	checks.Add("postgres", db.Ping)

	pgLim := limiter.NewPGWithQuerier(db.Pool)
	go purgeEvery(ctx, time.Hour, func(ctx context.Context) error {
		return pgLim.Purge(ctx, time.Now().Add(-time.Hour))
	}, logger)

	return &storage{
		employers: postgres.NewEmployerRepo(db),
		refresh:   postgres.NewRefreshRepo(db),
		jobs:      postgres.NewJobRepo(db),
		limiter:   pgLim,
		close:     db.Close,
	}, nil
}

func purgeEvery(ctx context.Context, every time.Duration, fn func(context.Context) error, logger *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(ctx); err != nil {
				logger.Warn("rate limit purge", zap.Error(err))
			}
		}
	}
}
