package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/access/be/guard"
	entitlementshandler "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/handler"
	entitlementsrepo "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/repo"
	entitlementsservice "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	notificationshandler "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/handler"
	notificationsrepo "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/repo"
	notificationsservice "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/transport"
	permissionshandler "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/handler"
	permissionsrepo "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/repo"
	permissionsservice "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	resourceshandler "github.com/zenGate-Global/nuzum-saas/domains/resources/be/handler"
	resourcesrepo "github.com/zenGate-Global/nuzum-saas/domains/resources/be/repo"
	resourcesservice "github.com/zenGate-Global/nuzum-saas/domains/resources/be/service"
	subscriptionshandler "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/handler"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptionsrepo "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/repo"
	subscriptionsservice "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	tenantshandler "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/handler"
	tenantsrepo "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	usershandler "github.com/zenGate-Global/nuzum-saas/domains/users/be/handler"
	usersrepo "github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/lock"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/retry"
)

// repositories is the storage behind every domain service.
type repositories struct {
	companies     tenantsservice.Repository
	subscriptions subscriptionsservice.Repository
	counter       entitlementsservice.Counter
	users         usersrepo.Repository
	permissions   permissionsservice.Repository
	resources     resourcesservice.Repository
	notifications notificationsservice.Repository
}

func postgresRepositories(pool *pgxpool.Pool) (repositories, error) {
	companies, err := persistence.NewCompanyStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init company store: %w", err)
	}
	subscriptions, err := persistence.NewSubscriptionStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init subscription store: %w", err)
	}
	usage, err := persistence.NewUsageStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init usage store: %w", err)
	}
	users, err := persistence.NewUserStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init user store: %w", err)
	}
	permissions, err := persistence.NewPermissionStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init permission store: %w", err)
	}
	resources, err := persistence.NewResourceStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init resource store: %w", err)
	}
	notifications, err := persistence.NewNotificationStore(pool)
	if err != nil {
		return repositories{}, fmt.Errorf("init notification store: %w", err)
	}

	return repositories{
		companies:     tenantsrepo.NewPostgresRepository(companies),
		subscriptions: subscriptionsrepo.NewPostgresRepository(subscriptions),
		counter:       entitlementsrepo.NewPostgresCounter(usage),
		users:         usersrepo.NewPostgresRepository(users),
		permissions:   permissionsrepo.NewPostgresRepository(permissions),
		resources:     resourcesrepo.NewPostgresRepository(resources),
		notifications: notificationsrepo.NewPostgresRepository(notifications),
	}, nil
}

// app holds the HTTP handlers, the guard chain and the background scheduler.
type app struct {
	logger *zap.Logger
	chain  *guard.Chain

	companies     *tenantshandler.Handler
	subscriptions *subscriptionshandler.Handler
	usage         *entitlementshandler.Handler
	users         *usershandler.Handler
	permissions   *permissionshandler.Handler
	employees     *resourceshandler.Handler
	vehicles      *resourceshandler.Handler
	notifications *notificationshandler.Handler

	scheduler *notificationsservice.Scheduler
}

func loadCatalog(path string) (*plans.Catalog, error) {
	if path == "" {
		return plans.Default(), nil
	}
	return plans.LoadFile(path)
}

func newApp(cfg config, repos repositories, locker lock.Locker, logger *zap.Logger) (*app, error) {
	catalog, err := loadCatalog(cfg.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}

	subscriptions := subscriptionsservice.New(repos.subscriptions, catalog, logger.Named("subscriptions"))

	retryCfg := retry.DefaultConfig()
	if cfg.QuotaMaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.QuotaMaxAttempts
	}
	entitlements := entitlementsservice.New(subscriptions, repos.counter, logger.Named("entitlements"), entitlementsservice.WithRetry(retryCfg))

	companies := tenantsservice.New(repos.companies, logger.Named("tenants"),
		tenantsservice.WithTrial(func(ctx context.Context, companyID uuid.UUID) error {
			_, err := subscriptions.CreateTrial(ctx, companyID, plans.Basic)
			return err
		}),
	)
	users := usersservice.New(repos.users, logger.Named("users"))
	permissions := permissionsservice.New(repos.permissions, logger.Named("permissions"))
	resources := resourcesservice.New(repos.resources, entitlements, logger.Named("resources"))
	notifications := notificationsservice.New(repos.notifications, subscriptions, transport.NewLog(logger.Named("transport")), logger.Named("notifications"))

	return &app{
		logger: logger,
		chain: guard.Standard(guard.Deps{
			Identity:      users,
			Permissions:   permissions,
			Subscriptions: subscriptions,
			Quotas:        entitlements,
		}, logger.Named("guard")),

		companies:     tenantshandler.New(companies, logger),
		subscriptions: subscriptionshandler.New(subscriptions, logger),
		usage:         entitlementshandler.New(entitlements, logger),
		users:         usershandler.New(users, entitlements, logger),
		permissions:   permissionshandler.New(permissions, logger),
		employees:     resourceshandler.New(resources, resourcesservice.Employees, logger),
		vehicles:      resourceshandler.New(resources, resourcesservice.Vehicles, logger),
		notifications: notificationshandler.New(notifications, logger),

		scheduler: notificationsservice.NewScheduler(notifications, locker, cfg.NotifyInterval, nil, logger),
	}, nil
}
