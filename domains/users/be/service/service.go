package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	"github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound        = errors.New("user not found")
	ErrConflict        = errors.New("user conflict")
	ErrForbidden       = errors.New("not allowed to manage this user")
	ErrCompanyNotFound = errors.New("company not found")
	// ErrUnauthenticated means the credentials do not map to an active user.
	ErrUnauthenticated = errors.New("credentials do not resolve to an active user")
)

// User represents the domain view of a user record.
type User struct {
	ID        uuid.UUID
	CompanyID *uuid.UUID
	Email     string
	FullName  string
	Role      string
	UserType  tenant.UserType
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scope derives the tenant binding the guard chain starts from.
func (u User) Scope() tenant.Scope {
	scope := tenant.Scope{UserID: u.ID, Role: u.Role, UserType: u.UserType}
	if u.CompanyID != nil {
		scope.CompanyID = *u.CompanyID
	}
	return scope
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Email    *string
	Page     int
	PageSize int
	Sort     *string
}

// ListResult wraps a page of users with pagination metadata.
type ListResult struct {
	Users      []User
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// CreateInput represents the payload required to create a new user.
type CreateInput struct {
	Email     string
	FullName  string
	Role      string
	UserType  tenant.UserType
	CompanyID *uuid.UUID
}

// Service defines the business operations for the users domain.
type Service interface {
	Create(ctx context.Context, scope tenant.Scope, input CreateInput) (User, error)
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (User, error)
	SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (User, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) (User, error)
	Resolve(ctx context.Context, creds *auth.UserCredentials) (User, error)
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a users Service instance backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("users repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, logger: logger}
}

func (s *service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	sortValue, sortErr := sanitizeSort(opts.Sort)
	if sortErr != nil {
		return ListResult{}, sortErr
	}

	params := persistence.ListUsersParams{Page: page, PageSize: pageSize, Sort: sortValue}
	if opts.Email != nil && strings.TrimSpace(*opts.Email) != "" {
		email := strings.TrimSpace(*opts.Email)
		params.Email = &email
	}

	result, err := s.repo.List(ctx, scope, params)
	if err != nil {
		return ListResult{}, mapPersistenceError(err)
	}

	users := make([]User, 0, len(result.Users))
	for _, record := range result.Users {
		users = append(users, mapUser(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Users:      users,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

// Create registers a user. Company admins can only add users to their own company and never
// create system owners; the quota for users is reserved by the guard chain before this runs.
func (s *service) Create(ctx context.Context, scope tenant.Scope, input CreateInput) (User, error) {
	fieldErrors := FieldErrors{}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		fieldErrors.add("email", "email is not a valid address")
	}

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fieldErrors.add("fullName", "fullName is required")
	}

	userType := input.UserType
	if userType == "" {
		userType = tenant.Employee
	}
	if !userType.Valid() {
		fieldErrors.add("userType", fmt.Sprintf("unsupported user type %q", userType))
	}

	if len(fieldErrors) > 0 {
		return User{}, &ValidationError{Fields: fieldErrors}
	}

	companyID, err := targetCompany(scope, userType, input.CompanyID)
	if err != nil {
		return User{}, err
	}

	record, err := s.repo.Create(ctx, persistence.CreateUserParams{
		UserID:    uuid.New(),
		CompanyID: companyID,
		Email:     strings.ToLower(email),
		FullName:  fullName,
		Role:      input.Role,
		UserType:  string(userType),
	})
	if err != nil {
		return User{}, mapPersistenceError(err)
	}

	s.logger.Info("user created",
		zap.String("user_id", record.UserID.String()),
		zap.String("user_type", record.UserType),
		zap.String("created_by", scope.UserID.String()),
	)
	return mapUser(record), nil
}

func targetCompany(scope tenant.Scope, userType tenant.UserType, requested *uuid.UUID) (*uuid.UUID, error) {
	switch scope.UserType {
	case tenant.SystemOwner:
		if userType == tenant.SystemOwner {
			return nil, nil
		}
		if !scope.Bound() {
			return nil, &ValidationError{Fields: FieldErrors{"companyId": {"companyId is required for company users"}}}
		}
		if requested != nil && *requested != uuid.Nil && *requested != scope.CompanyID {
			return nil, &ValidationError{Fields: FieldErrors{"companyId": {"companyId does not match the selected company"}}}
		}
		id := scope.CompanyID
		return &id, nil
	case tenant.CompanyAdmin:
		if userType == tenant.SystemOwner || !scope.Bound() {
			return nil, ErrForbidden
		}
		id := scope.CompanyID
		return &id, nil
	default:
		return nil, ErrForbidden
	}
}

func (s *service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}

	record, err := s.repo.GetScoped(ctx, scope, id)
	if err != nil {
		return User{}, mapPersistenceError(err)
	}

	return mapUser(record), nil
}

// manages reports whether scope may change other users. Employees never do, whatever
// module grants they hold.
func manages(scope tenant.Scope) error {
	switch scope.UserType {
	case tenant.SystemOwner, tenant.CompanyAdmin:
		return nil
	}
	return ErrForbidden
}

func (s *service) SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}
	if err := manages(scope); err != nil {
		return User{}, err
	}
	if id == scope.UserID && !active {
		return User{}, &ValidationError{Fields: FieldErrors{"isActive": {"users cannot deactivate themselves"}}}
	}

	record, err := s.repo.SetActive(ctx, scope, id, active)
	if err != nil {
		return User{}, mapPersistenceError(err)
	}
	return mapUser(record), nil
}

// Delete removes a user and returns the deleted record so callers can release its quota slot.
func (s *service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) (User, error) {
	if id == uuid.Nil {
		return User{}, ErrNotFound
	}
	if err := manages(scope); err != nil {
		return User{}, err
	}

	record, err := s.repo.GetScoped(ctx, scope, id)
	if err != nil {
		return User{}, mapPersistenceError(err)
	}
	if err := s.repo.Delete(ctx, scope, id); err != nil {
		return User{}, mapPersistenceError(err)
	}

	return mapUser(record), nil
}

// Resolve maps token credentials to an active user. The subject is tried first, then the
// email claim for identity providers whose subject is not our user id.
func (s *service) Resolve(ctx context.Context, creds *auth.UserCredentials) (User, error) {
	if creds == nil {
		return User{}, ErrUnauthenticated
	}

	var (
		record persistence.User
		err    = persistence.ErrUserNotFound
	)
	if id, parseErr := uuid.Parse(creds.Id); parseErr == nil {
		record, err = s.repo.Get(ctx, id)
	}
	if errors.Is(err, persistence.ErrUserNotFound) && strings.TrimSpace(creds.Email) != "" {
		record, err = s.repo.GetByEmail(ctx, creds.Email)
	}
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return User{}, ErrUnauthenticated
		}
		return User{}, fmt.Errorf("resolve user: %w", err)
	}

	user := mapUser(record)
	if !user.IsActive {
		return User{}, ErrUnauthenticated
	}
	if !user.UserType.Valid() {
		s.logger.Warn("user with unknown type", zap.String("user_id", user.ID.String()), zap.String("user_type", string(user.UserType)))
		return User{}, ErrUnauthenticated
	}
	return user, nil
}

func sanitizeSort(sort *string) (*string, error) {
	if sort == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*sort)
	if trimmed == "" {
		return nil, nil
	}

	allowed := map[string]struct{}{
		"email":     {},
		"fullName":  {},
		"role":      {},
		"createdAt": {},
	}

	for _, raw := range strings.Split(trimmed, ",") {
		field := strings.TrimPrefix(strings.TrimSpace(raw), "-")
		if field == "" {
			continue
		}
		if _, ok := allowed[field]; !ok {
			return nil, &ValidationError{Fields: FieldErrors{"sort": {fmt.Sprintf("unsupported sort field %q", field)}}}
		}
	}

	return &trimmed, nil
}

func mapUser(record persistence.User) User {
	return User{
		ID:        record.UserID,
		CompanyID: record.CompanyID,
		Email:     record.Email,
		FullName:  record.FullName,
		Role:      record.Role,
		UserType:  tenant.UserType(record.UserType),
		IsActive:  record.IsActive,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrCompanyNotFound):
		return ErrCompanyNotFound
	case errors.Is(err, persistence.ErrScopeRequired):
		return ErrForbidden
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
