package middleware

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	platformlogging "github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/requesttrace"
)

// RequestTrace stores the caller's AuditInfo on the context and scopes the request logger to it,
// so every line written while serving the request names the actor and company.
// It must run after platformauth.JWT; the guard chain later rebinds the company to the resolved tenant.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)

		audit, err := auditFor(r)
		if err != nil {
			if logger != nil {
				logger.Warn("reject request without a usable identity", zap.Error(err))
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			ctx = platformlogging.WithLogger(ctx, logger.With(auditFields(audit)...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func auditFor(r *http.Request) (requesttrace.AuditInfo, error) {
	requestID := middleware.GetReqID(r.Context())
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		return requesttrace.Anonymous(requestID), nil
	}
	return requesttrace.FromCredentials(creds, requestID)
}

// auditFields orders the audit keys so log lines stay diffable. request_id is left to
// platformlogging.RequestLogger, which already stamps it.
func auditFields(audit requesttrace.AuditInfo) []zap.Field {
	values := audit.Fields()
	delete(values, "request_id")
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, values[k]))
	}
	return fields
}
