package guard

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/requesttrace"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type ctxKey string

const ctxRequestContext ctxKey = "NUZUM_GUARD_CONTEXT"

// FromContext returns the RequestContext built by Middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(ctxRequestContext).(RequestContext)
	return rc, ok
}

// companyParam reads the path parameter first and falls back to the companyId query value.
func companyParam(r *http.Request) string {
	if id := chi.URLParam(r, "companyID"); id != "" {
		return id
	}
	return r.URL.Query().Get("companyId")
}

// Middleware runs the chain for op before the handler. The bound scope is stored with
// tenant.WithScope. A reservation taken by the quota gate is settled when the handler
// answers with a 2xx status and released otherwise.
func (c *Chain) Middleware(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, _ := platformauth.UserFromContext(r.Context())
			req := Request{Operation: op, Credentials: creds, CompanyParam: companyParam(r)}

			logger := logging.FromRequest(r, c.logger)
			rc, err := c.Run(r.Context(), req)
			if err != nil {
				if rej, ok := AsRejection(err); ok {
					logger.Info("request rejected",
						zap.String("operation", op.Name),
						zap.String("kind", string(rej.Kind)),
						zap.String("reason", rej.Reason),
					)
					WriteRejection(w, rej)
					return
				}
				logger.Error("guard chain failed", zap.String("operation", op.Name), zap.Error(err))
				problem.Write(w, problem.Internal())
				return
			}

			ctx := tenant.WithScope(r.Context(), rc.Scope)
			ctx = context.WithValue(ctx, ctxRequestContext, rc)
			if audit, ok := requesttrace.FromContext(ctx); ok {
				ctx = requesttrace.IntoContext(ctx, audit.WithCompany(rc.Scope.CompanyID))
			}
			ctx = logging.WithLogger(ctx, logger.With(
				zap.String("user_id", rc.User.ID.String()),
				zap.String("company_id", rc.Scope.CompanyID.String()),
			))

			if rc.Reservation == nil {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			completed := false
			defer func() {
				status := ww.Status()
				if completed && status == 0 {
					status = http.StatusOK
				}
				if status < 200 || status >= 300 {
					c.Release(context.WithoutCancel(ctx), rc)
					return
				}
				c.Settle(context.WithoutCancel(ctx), rc)
			}()
			next.ServeHTTP(ww, r.WithContext(ctx))
			completed = true
		})
	}
}

// StatusOf maps a rejection kind to its HTTP status.
func StatusOf(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindMissingTenant:
		return http.StatusBadRequest
	case KindTransactionConflict:
		return http.StatusConflict
	default:
		return http.StatusForbidden
	}
}

var titles = map[Kind]string{
	KindUnauthenticated:     "Authentication required",
	KindMissingTenant:       "Missing tenant",
	KindForbidden:           "Forbidden",
	KindSubscriptionExpired: "Subscription required",
	KindQuotaExceeded:       "Quota exceeded",
	KindTransactionConflict: "Please retry",
}

// WriteRejection renders rej as a problem document.
func WriteRejection(w http.ResponseWriter, rej *Rejection) {
	if rej.Kind == KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	problem.Write(w, problem.New(StatusOf(rej.Kind), string(rej.Kind), titles[rej.Kind], rej.Reason).WithAction(rej.Action))
}
