package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zenGate-Global/nuzum-saas/domains/access/be/guard"
	permissions "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	platformlogging "github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/nuzum-saas/platform/go/middleware"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

var (
	owners = []string{string(tenant.SystemOwner)}
	admins = []string{string(tenant.SystemOwner), string(tenant.CompanyAdmin)}
)

// Every API route is declared with the operation the guard chain enforces for it.
var (
	opCompaniesList   = guard.Operation{Name: "companies.list", Roles: admins, SubscriptionExempt: true}
	opCompaniesCreate = guard.Operation{Name: "companies.create", Roles: owners}
	opCompaniesGet    = guard.Operation{Name: "companies.get", Roles: admins, SubscriptionExempt: true}
	opCompaniesUpdate = guard.Operation{Name: "companies.update", Roles: admins}
	opCompaniesDelete = guard.Operation{Name: "companies.delete", Roles: owners}

	opSubscriptionStatus   = guard.Operation{Name: "subscription.status", Roles: admins, RequireTenant: true, SubscriptionExempt: true}
	opSubscriptionTrial    = guard.Operation{Name: "subscription.trial", Roles: owners, RequireTenant: true}
	opSubscriptionUpgrade  = guard.Operation{Name: "subscription.upgrade", Roles: owners, RequireTenant: true}
	opSubscriptionExtend   = guard.Operation{Name: "subscription.extend", Roles: owners, RequireTenant: true}
	opSubscriptionSuspend  = guard.Operation{Name: "subscription.suspend", Roles: owners, RequireTenant: true}
	opSubscriptionActivate = guard.Operation{Name: "subscription.activate", Roles: owners, RequireTenant: true}
	opSubscriptionOwn      = guard.Operation{Name: "subscription.own", RequireTenant: true, SubscriptionExempt: true}
	opPlans                = guard.Operation{Name: "plans.list", SubscriptionExempt: true}

	opUsage          = guard.Operation{Name: "usage.get", Roles: admins, RequireTenant: true, SubscriptionExempt: true}
	opUsageReconcile = guard.Operation{Name: "usage.reconcile", Roles: owners, RequireTenant: true}

	opMe          = guard.Operation{Name: "users.me", SubscriptionExempt: true}
	opUsersList   = guard.Operation{Name: "users.list", Roles: admins, Module: permissions.ModuleUsers, Action: permissions.ActionView}
	opUsersCreate = guard.Operation{Name: "users.create", Roles: admins, Module: permissions.ModuleUsers, Action: permissions.ActionCreate, Quota: plans.ResourceUsers}
	opUsersGet    = guard.Operation{Name: "users.get", Roles: admins, Module: permissions.ModuleUsers, Action: permissions.ActionView}
	opUsersUpdate = guard.Operation{Name: "users.update", Roles: admins, Module: permissions.ModuleUsers, Action: permissions.ActionEdit}
	opUsersDelete = guard.Operation{Name: "users.delete", Roles: admins, Module: permissions.ModuleUsers, Action: permissions.ActionDelete}

	opPermissionsList    = guard.Operation{Name: "permissions.list", Roles: admins}
	opPermissionsReplace = guard.Operation{Name: "permissions.replace", Roles: admins}

	opNotificationsList = guard.Operation{Name: "notifications.list", SubscriptionExempt: true}
	opNotificationsRead = guard.Operation{Name: "notifications.read", SubscriptionExempt: true}
)

// resourceOps returns the list, create and delete operations of a resource module.
func resourceOps(module permissions.Module, quota string) (list, create, del guard.Operation) {
	name := string(module)
	list = guard.Operation{Name: name + ".list", Module: module, Action: permissions.ActionView}
	create = guard.Operation{Name: name + ".create", Module: module, Action: permissions.ActionCreate, Quota: quota}
	del = guard.Operation{Name: name + ".delete", Module: module, Action: permissions.ActionDelete}
	return list, create, del
}

func (a *app) router(cfg config, authMiddleware, validator func(http.Handler) http.Handler) http.Handler {
	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		platformlogging.RequestLogger(a.logger),
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSOrigins),
		metrics.HTTPMetricsMiddleware,
	)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, a.logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)
	if validator != nil {
		apiRouter.Use(validator)
	}
	a.mountAPI(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	return otelhttp.NewHandler(rootRouter, "nuzum-api")
}

// mountAPI registers every domain route behind its guard operation.
func (a *app) mountAPI(r chi.Router) {
	g := a.chain.Middleware

	r.With(g(opCompaniesList)).Get("/companies", a.companies.List)
	r.With(g(opCompaniesCreate)).Post("/companies", a.companies.Create)
	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.With(g(opCompaniesGet)).Get("/", a.companies.Get)
		r.With(g(opCompaniesUpdate)).Patch("/", a.companies.Update)
		r.With(g(opCompaniesDelete)).Delete("/", a.companies.Delete)

		r.With(g(opSubscriptionStatus)).Get("/subscription", a.subscriptions.Status)
		r.With(g(opSubscriptionTrial)).Post("/subscription/trial", a.subscriptions.CreateTrial)
		r.With(g(opSubscriptionUpgrade)).Post("/subscription/upgrade", a.subscriptions.Upgrade)
		r.With(g(opSubscriptionExtend)).Post("/subscription/extend", a.subscriptions.Extend)
		r.With(g(opSubscriptionSuspend)).Post("/subscription/suspend", a.subscriptions.Suspend)
		r.With(g(opSubscriptionActivate)).Post("/subscription/activate", a.subscriptions.Activate)
	})

	r.With(g(opSubscriptionOwn)).Get("/subscription", a.subscriptions.Status)
	r.With(g(opPlans)).Get("/plans", a.subscriptions.Plans)
	r.With(g(opUsage)).Get("/usage", a.usage.Usage)
	r.With(g(opUsageReconcile)).Post("/usage/reconcile", a.usage.Reconcile)

	r.With(g(opMe)).Get("/me", a.users.Me)
	r.With(g(opUsersList)).Get("/users", a.users.List)
	r.With(g(opUsersCreate)).Post("/users", a.users.Create)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.With(g(opUsersGet)).Get("/", a.users.Get)
		r.With(g(opUsersUpdate)).Patch("/", a.users.SetActive)
		r.With(g(opUsersDelete)).Delete("/", a.users.Delete)
		r.With(g(opPermissionsList)).Get("/permissions", a.permissions.List)
		r.With(g(opPermissionsReplace)).Put("/permissions", a.permissions.Replace)
	})

	empList, empCreate, empDelete := resourceOps(permissions.ModuleEmployees, plans.ResourceEmployees)
	r.With(g(empList)).Get("/employees", a.employees.List)
	r.With(g(empCreate)).Post("/employees", a.employees.Create)
	r.With(g(empDelete)).Delete("/employees/{id}", a.employees.Delete)

	vehList, vehCreate, vehDelete := resourceOps(permissions.ModuleVehicles, plans.ResourceVehicles)
	r.With(g(vehList)).Get("/vehicles", a.vehicles.List)
	r.With(g(vehCreate)).Post("/vehicles", a.vehicles.Create)
	r.With(g(vehDelete)).Delete("/vehicles/{id}", a.vehicles.Delete)

	r.With(g(opNotificationsList)).Get("/notifications", a.notifications.List)
	r.With(g(opNotificationsRead)).Post("/notifications/{id}/read", a.notifications.MarkRead)
}
