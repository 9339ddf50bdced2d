package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

const notificationColumns = `id, recipient_id, sender_id, title, message, type, category,
	   priority, action_url, action_label, metadata, read, read_at,
	   created_at, updated_at, deleted_at`

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient_id, sender_id, title, message, type, category,
			priority, action_url, action_label, metadata, read,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		notification.ID,
		notification.RecipientID,
		notification.SenderID,
		notification.Title,
		notification.Message,
		notification.Type,
		notification.Category,
		notification.Priority,
		notification.ActionURL,
		notification.ActionLabel,
		notification.Metadata,
		notification.Read,
		notification.CreatedAt,
		notification.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND deleted_at IS NULL`

	var notification model.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &notification, nil
}

func (r *notificationRepository) List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.RecipientID != uuid.Nil {
			query += fmt.Sprintf(" AND recipient_id = $%d", argCount)
			args = append(args, filters.RecipientID)
			argCount++
		}
		if filters.Category != "" {
			query += fmt.Sprintf(" AND category = $%d", argCount)
			args = append(args, filters.Category)
			argCount++
		}
		if filters.UnreadOnly {
			query += " AND read = false"
		}
	}

	query += " ORDER BY created_at DESC"

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead only touches the recipient's own notification rows.
func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = true, read_at = $1, updated_at = $1
		 WHERE id = $2 AND recipient_id = $3 AND deleted_at IS NULL`,
		now, id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET deleted_at = $1 WHERE id = $2 AND recipient_id = $3 AND deleted_at IS NULL`,
		time.Now(), id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = true AND read_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	return result.RowsAffected()
}
