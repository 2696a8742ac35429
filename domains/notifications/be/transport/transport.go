package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is what a channel delivers to a tenant.
type Message struct {
	NotificationID uuid.UUID
	CompanyID      uuid.UUID
	Type           string
	Title          string
	Body           string
}

// Transport delivers notifications outside the system (email, SMS, chat). Delivery is best
// effort: the notification row is already stored when Send runs.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Log writes every message to the logger. It is the default when no channel is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		panic("logger is required")
	}
	return &Log{logger: logger.With(zap.String("component", "notification-transport"))}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	l.logger.Info("notification delivered",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("company_id", msg.CompanyID.String()),
		zap.String("type", msg.Type),
		zap.String("title", msg.Title),
	)
	return nil
}

// Fanout sends to every transport and joins their errors.
type Fanout []Transport

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, t := range f {
		if err := t.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
