package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "NUZUM_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata stamped on lifecycle logs.
// CompanyID starts as the token's claim and is replaced by the bound tenant once the guard chain has run.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	CompanyID *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo from authenticated user credentials and a request ID.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &creds.Id,
		CompanyID: creds.CompanyID,
		RequestID: requestID,
	}, nil
}

// WithCompany returns a copy bound to companyID; uuid.Nil clears it.
func (a AuditInfo) WithCompany(companyID uuid.UUID) AuditInfo {
	if companyID == uuid.Nil {
		a.CompanyID = nil
		return a
	}
	id := companyID.String()
	a.CompanyID = &id
	return a
}

// Fields flattens the audit info for structured logs.
func (a AuditInfo) Fields() map[string]string {
	out := map[string]string{"actor_kind": string(a.ActorKind)}
	if a.UserID != nil {
		out["actor_id"] = *a.UserID
	}
	if a.CompanyID != nil {
		out["company_id"] = *a.CompanyID
	}
	if a.RequestID != "" {
		out["request_id"] = a.RequestID
	}
	return out
}

// Anonymous builds an AuditInfo for requests that carry no credentials.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/system operations such as the notification scan.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
