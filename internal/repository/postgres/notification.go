package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

// Enqueue writes the notification row and its outbox event in one transaction,
// so the worker only ever delivers notifications that exist.
func (r *notificationRepository) Enqueue(ctx context.Context, n *model.Notification, event *model.OutboxEvent) error {
	now := r.now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = now
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO notifications (
				id, recipient_id, title, message, related_entity_type, related_entity_id, status, created_at
			) VALUES (
				:id, :recipient_id, :title, :message, :related_entity_type, :related_entity_id, :status, :created_at
			)`, n); err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		return insertEvent(ctx, tx, event, now)
	})
}

func (r *notificationRepository) MarkStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return classify(err, "update notification")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("notification", nil)
	}
	return nil
}
