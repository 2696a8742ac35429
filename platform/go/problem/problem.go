package problem

import (
	"encoding/json"
	"net/http"
)

const typeBase = "https://nuzum.app/problems/"

// Stable machine-readable codes carried in the "code" member.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeMissingTenant        = "missing_tenant"
	CodeForbidden            = "forbidden"
	CodeSubscriptionExpired  = "subscription_expired"
	CodeQuotaExceeded        = "quota_exceeded"
	CodeAlreadySubscribed    = "already_subscribed"
	CodeNoActiveSubscription = "no_active_subscription"
	CodeTransactionConflict  = "transaction_conflict"
	CodeValidation           = "validation_error"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeInternal             = "internal_error"
)

// Details is an RFC 7807 problem document extended with code and action.
// Action tells a client where to route the tenant (upgrade, renew, contact_support).
type Details struct {
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Code   string              `json:"code"`
	Action string              `json:"action,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// New builds a problem document whose type URI is derived from code.
func New(status int, code, title, detail string) Details {
	return Details{
		Type:   typeBase + code,
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}
}

// WithAction returns a copy carrying the required-action hint.
func (d Details) WithAction(action string) Details {
	d.Action = action
	return d
}

// WithErrors returns a copy carrying per-field validation messages.
func (d Details) WithErrors(fields map[string][]string) Details {
	if len(fields) == 0 {
		return d
	}
	copied := make(map[string][]string, len(fields))
	for field, messages := range fields {
		copied[field] = append([]string(nil), messages...)
	}
	d.Errors = copied
	return d
}

// Write renders d as application/problem+json.
func Write(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

// Internal is the generic 500 document; the cause is logged, never returned.
func Internal() Details {
	return New(http.StatusInternalServerError, CodeInternal, "Internal server error", "an unexpected error occurred")
}
