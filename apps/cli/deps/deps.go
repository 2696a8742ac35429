// Package deps opens the database backed services shared by the CLI commands.
package deps

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	notificationsrepo "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/repo"
	notifications "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/transport"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptionsrepo "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/repo"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	tenantsrepo "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/repo"
	tenants "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	usersrepo "github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	platformlogging "github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
)

// Services are the domain services a CLI command can drive.
type Services struct {
	Pool          *pgxpool.Pool
	Logger        *zap.Logger
	Companies     *tenants.Service
	Subscriptions *subscriptions.Service
	Users         usersrepo.Repository
	Notifications *notifications.Service
}

// DatabaseURL returns flag when set, otherwise DATABASE_URL.
func DatabaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", errors.New("database url is required (--database-url or DATABASE_URL)")
}

// NewLogger builds the console logger used by every command.
func NewLogger(level string) (*zap.Logger, error) {
	return platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: level, Console: true})
}

// Open connects to Postgres and wires the services. The returned func closes the pool.
func Open(ctx context.Context, databaseURL, plansFile string, logger *zap.Logger) (*Services, func(), error) {
	catalog := plans.Default()
	if plansFile != "" {
		loaded, err := plans.LoadFile(plansFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load plan catalog: %w", err)
		}
		catalog = loaded
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      databaseURL,
		ApplicationName: "nuzum-cli",
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	closeFn := func() { persistence.ClosePool(pool) }

	companyStore, err := persistence.NewCompanyStore(pool)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init company store: %w", err)
	}
	subscriptionStore, err := persistence.NewSubscriptionStore(pool)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init subscription store: %w", err)
	}
	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init user store: %w", err)
	}
	notificationStore, err := persistence.NewNotificationStore(pool)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init notification store: %w", err)
	}

	subs := subscriptions.New(subscriptionsrepo.NewPostgresRepository(subscriptionStore), catalog, logger)
	companies := tenants.New(tenantsrepo.NewPostgresRepository(companyStore), logger,
		tenants.WithTrial(func(ctx context.Context, companyID uuid.UUID) error {
			_, err := subs.CreateTrial(ctx, companyID, plans.Basic)
			return err
		}),
	)

	return &Services{
		Pool:          pool,
		Logger:        logger,
		Companies:     companies,
		Subscriptions: subs,
		Users:         usersrepo.NewPostgresRepository(userStore),
		Notifications: notifications.New(notificationsrepo.NewPostgresRepository(notificationStore), subs, transport.NewLog(logger), logger),
	}, closeFn, nil
}

// Options are the persistent flags shared by every database command.
type Options struct {
	DatabaseURL string
	PlansFile   string
	LogLevel    string
}

// Open resolves the options and wires the services.
func (o *Options) Open(ctx context.Context) (*Services, func(), error) {
	url, err := DatabaseURL(o.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger, err := NewLogger(o.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	svc, closeFn, err := Open(ctx, url, o.PlansFile, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return svc, func() {
		closeFn()
		_ = logger.Sync()
	}, nil
}
