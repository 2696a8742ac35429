package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	platformlogging "github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/lock"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tracing"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	BootstrapSchema bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	DBConnectTries  int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	// AuthProvider selects the token verifier: hmac | firebase | dev.
	AuthProvider string   `env:"AUTH_PROVIDER" envDefault:"hmac"`
	JWTSecret    string   `env:"JWT_SECRET"`
	JWTIssuer    string   `env:"JWT_ISSUER" envDefault:"nuzum"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:","`
	// RedisURL enables the distributed scheduler lease; empty falls back to an in-process lock.
	RedisURL         string        `env:"REDIS_URL"`
	NotifyEnabled    bool          `env:"NOTIFY_ENABLED" envDefault:"true"`
	NotifyInterval   time.Duration `env:"NOTIFY_INTERVAL" envDefault:"1h"`
	PlansFile        string        `env:"PLANS_FILE"`
	QuotaMaxAttempts int           `env:"QUOTA_MAX_ATTEMPTS" envDefault:"3"`
	OTLPEndpoint     string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "api-server",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, logger, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "nuzum-api",
		Environment: cfg.Environment,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		ApplicationName: "nuzum-api",
		MaxConns:        cfg.DBMaxConns,
		ConnectAttempts: cfg.DBConnectTries,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("database schema bootstrapped")
	}

	repos, err := postgresRepositories(pool)
	if err != nil {
		return err
	}

	locker, closeLocker, err := buildLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	a, err := newApp(cfg, repos, locker, logger)
	if err != nil {
		return err
	}

	authMiddleware, err := buildAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		return err
	}
	validator, err := newContractValidator(logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.router(cfg, authMiddleware, validator),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.NotifyEnabled {
		g.Go(func() error {
			return a.scheduler.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("api server stopped")
		return nil
	})
	return g.Wait()
}

// buildLocker picks the scheduler lease backend.
func buildLocker(ctx context.Context, cfg config, logger *zap.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; notification scan lease is process local")
		return lock.NewLocal(), func() {}, nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedis(rdb, "nuzum:"+cfg.Environment+":"), func() { _ = rdb.Close() }, nil
}
