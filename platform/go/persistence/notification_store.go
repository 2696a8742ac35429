package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

const NotificationsTable = "subscription_notifications"

// NotificationRecord represents a row in subscription_notifications.
type NotificationRecord struct {
	NotificationID   uuid.UUID `db:"notification_id"`
	CompanyID        uuid.UUID `db:"company_id"`
	NotificationType string    `db:"notification_type"`
	Title            string    `db:"title"`
	Message          string    `db:"message"`
	IsRead           bool      `db:"is_read"`
	CreatedAt        time.Time `db:"created_at"`
}

// ErrNotificationNotFound indicates a missing notification or one outside the caller scope.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationStore provides access to subscription_notifications.
type NotificationStore struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewNotificationStore creates a store; assumes BootstrapSchema already ran.
func NewNotificationStore(pool *pgxpool.Pool) (*NotificationStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &NotificationStore{pool: pool, tx: NewTxRunner(pool)}, nil
}

const notificationColumns = `notification_id, company_id, notification_type, title, message, is_read, created_at`

// AppendIfNoneSince inserts rec unless the company already has a notification of the same type
// created after since. The boolean reports whether a row was written.
//
// A transaction-scoped advisory lock keyed on the company serializes concurrent scanners, so the
// existence check and the insert observe each other.
func (s *NotificationStore) AppendIfNoneSince(ctx context.Context, rec NotificationRecord, since time.Time) (NotificationRecord, bool, error) {
	if rec.NotificationID == uuid.Nil {
		return NotificationRecord{}, false, errors.New("notification id is required")
	}

	var (
		out     NotificationRecord
		written bool
	)
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('notify:' || $1::text))`, rec.CompanyID); err != nil {
			return fmt.Errorf("lock notifications: %w", err)
		}

		row := tx.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %[1]s (notification_id, company_id, notification_type, title, message, created_at)
            SELECT $1, $2, $3, $4, $5, $6
            WHERE NOT EXISTS (
                SELECT 1 FROM %[1]s
                WHERE company_id = $2 AND notification_type = $3 AND created_at > $7
            )
            RETURNING %[2]s
        `, NotificationsTable, notificationColumns),
			rec.NotificationID, rec.CompanyID, rec.NotificationType, rec.Title, rec.Message, rec.CreatedAt, since,
		)

		var err error
		out, err = scanNotification(row)
		if errors.Is(err, ErrNotificationNotFound) {
			return nil
		}
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrCompanyNotFound
			}
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return NotificationRecord{}, false, err
	}
	return out, written, nil
}

// ListNotificationsParams filters List.
type ListNotificationsParams struct {
	UnreadOnly bool
	Limit      int
}

// List returns notifications visible to scope, newest first.
func (s *NotificationStore) List(ctx context.Context, scope tenant.Scope, params ListNotificationsParams) ([]NotificationRecord, error) {
	predicate, args, err := scopePredicate(scope, "company_id", nil)
	if err != nil {
		return nil, err
	}
	if params.UnreadOnly {
		predicate += " AND NOT is_read"
	}
	_, limit := normalizePage(1, params.Limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT %d
    `, notificationColumns, NotificationsTable, predicate, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]NotificationRecord, 0)
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkRead flags a notification visible to scope as read.
func (s *NotificationStore) MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (NotificationRecord, error) {
	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return NotificationRecord{}, err
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET is_read = TRUE
        WHERE notification_id = $1 AND %s
        RETURNING %s
    `, NotificationsTable, predicate, notificationColumns), args...)
	return scanNotification(row)
}

func scanNotification(row pgx.Row) (NotificationRecord, error) {
	var rec NotificationRecord
	if err := row.Scan(&rec.NotificationID, &rec.CompanyID, &rec.NotificationType, &rec.Title, &rec.Message, &rec.IsRead, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotificationRecord{}, ErrNotificationNotFound
		}
		return NotificationRecord{}, err
	}
	return rec, nil
}
