package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

const UsersTable = "users"

// User represents a row in the users table. CompanyID is nil only for system owners.
type User struct {
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	CompanyID *uuid.UUID `db:"company_id" json:"companyId,omitempty"`
	Email     string     `db:"email" json:"email"`
	FullName  string     `db:"full_name" json:"fullName"`
	Role      string     `db:"role" json:"role"`
	UserType  string     `db:"user_type" json:"userType"`
	IsActive  bool       `db:"is_active" json:"isActive"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (e.g., duplicated email).
	ErrUserConflict = errors.New("user conflict")
)

// UserStore exposes persistence helpers for the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a store instance; assumes BootstrapSchema already ran.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &UserStore{pool: pool}, nil
}

const userColumns = `user_id, company_id, email, full_name, role, user_type, is_active, created_at, updated_at`

// ListUsersParams captures filters and pagination for ListUsers.
type ListUsersParams struct {
	Page     int
	PageSize int
	Sort     *string
	Email    *string
}

// ListUsersResult includes the rows and the total count for pagination metadata.
type ListUsersResult struct {
	Users      []User
	TotalItems int
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	UserID    uuid.UUID
	CompanyID *uuid.UUID
	Email     string
	FullName  string
	Role      string
	UserType  string
}

// CreateUser inserts a new user and returns the persisted record.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if params.UserID == uuid.Nil {
		return User{}, errors.New("user id is required")
	}
	role := strings.TrimSpace(params.Role)
	if role == "" {
		role = "user"
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, company_id, email, full_name, role, user_type)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, UsersTable, userColumns),
		params.UserID,
		params.CompanyID,
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FullName),
		role,
		params.UserType,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		if isForeignKeyViolation(err) {
			return User{}, ErrCompanyNotFound
		}
		return User{}, err
	}

	return user, nil
}

// ListUsers returns the users visible to scope with pagination applied.
func (s *UserStore) ListUsers(ctx context.Context, scope tenant.Scope, params ListUsersParams) (ListUsersResult, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	predicate, args, err := scopePredicate(scope, "company_id", nil)
	if err != nil {
		return ListUsersResult{}, err
	}
	whereParts := []string{predicate}

	if params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		email := strings.TrimSpace(*params.Email)
		args = append(args, "%"+strings.ToLower(email)+"%")
		whereParts = append(whereParts, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	orderSQL, err := buildUserOrderBy(params.Sort)
	if err != nil {
		return ListUsersResult{}, err
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", UsersTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListUsersResult{}, fmt.Errorf("count users: %w", err)
	}

	result := ListUsersResult{Users: []User{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        %s
        LIMIT $%d OFFSET $%d
    `, userColumns, UsersTable, whereSQL, orderSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListUsersResult{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return ListUsersResult{}, fmt.Errorf("scan user: %w", scanErr)
		}
		result.Users = append(result.Users, user)
	}

	if err = rows.Err(); err != nil {
		return ListUsersResult{}, fmt.Errorf("iterate users: %w", err)
	}

	return result, nil
}

func buildUserOrderBy(sort *string) (string, error) {
	const defaultOrder = "ORDER BY created_at DESC"
	if sort == nil || strings.TrimSpace(*sort) == "" {
		return defaultOrder, nil
	}

	fields := strings.Split(strings.TrimSpace(*sort), ",")
	orderClauses := make([]string, 0, len(fields))
	mapping := map[string]string{
		"email":     "email",
		"fullName":  "full_name",
		"role":      "role",
		"createdAt": "created_at",
	}

	for _, raw := range fields {
		f := strings.TrimSpace(raw)
		if f == "" {
			continue
		}

		direction := "ASC"
		if strings.HasPrefix(f, "-") {
			direction = "DESC"
			f = strings.TrimPrefix(f, "-")
		}

		column, ok := mapping[f]
		if !ok {
			return "", fmt.Errorf("unsupported sort field %q", f)
		}

		orderClauses = append(orderClauses, fmt.Sprintf("%s %s", column, direction))
	}

	if len(orderClauses) == 0 {
		return defaultOrder, nil
	}

	return "ORDER BY " + strings.Join(orderClauses, ", "), nil
}

// GetUser returns a single user by identifier regardless of tenant. It backs credential
// resolution, before any scope exists.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, userColumns, UsersTable), id)
	return scanUser(row)
}

// GetUserByEmail resolves credentials that carry only an email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(email) = LOWER($1)`, userColumns, UsersTable), strings.TrimSpace(email))
	return scanUser(row)
}

// GetScopedUser returns a user only when it belongs to the scope's company.
func (s *UserStore) GetScopedUser(ctx context.Context, scope tenant.Scope, id uuid.UUID) (User, error) {
	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND %s`, userColumns, UsersTable, predicate), args...)
	return scanUser(row)
}

// SetActive toggles is_active on a user visible to scope.
func (s *UserStore) SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (User, error) {
	predicate, args, err := scopePredicate(scope, "company_id", []any{id, active})
	if err != nil {
		return User{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET is_active = $2, updated_at = NOW()
        WHERE user_id = $1 AND %s
        RETURNING %s
    `, UsersTable, predicate, userColumns), args...)
	return scanUser(row)
}

// DeleteUser removes a user visible to scope.
func (s *UserStore) DeleteUser(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrUserNotFound
	}

	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s`, UsersTable, predicate), args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User

	if err := row.Scan(&user.UserID, &user.CompanyID, &user.Email, &user.FullName, &user.Role, &user.UserType, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}
