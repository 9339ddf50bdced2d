package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// maxDeliveryAttempts caps redelivery of failed events; beyond it an event
// stays FAILED for manual inspection.
const maxDeliveryAttempts = 5

// GetPendingEventsWithLock claims a batch of deliverable events: pending
// ones plus failed ones whose backoff has elapsed. SKIP LOCKED lets
// multiple worker instances drain the outbox without stepping on each
// other.
func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, error_message, retry_count,
			   retry_at, created_at, processed_at, updated_at
		FROM outbox_events
		WHERE (status = $1 OR (status = $2 AND retry_count < $3))
		AND (retry_at IS NULL OR retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	`
	var events []*model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query,
		model.OutboxStatusPending, model.OutboxStatusFailed, maxDeliveryAttempts, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	now := time.Now()
	var query string
	var args []interface{}

	switch status {
	case model.OutboxStatusProcessed:
		query = `
			UPDATE outbox_events
			SET status = $1, processed_at = $2, updated_at = $2, error_message = NULL
			WHERE id = $3
		`
		args = []interface{}{status, now, id}
	case model.OutboxStatusFailed:
		query = `
			UPDATE outbox_events
			SET status = $1, error_message = $2, updated_at = $3,
				retry_count = retry_count + 1,
				retry_at = $3 + (INTERVAL '1 minute' * POWER(2, retry_count))
			WHERE id = $4
		`
		args = []interface{}{status, errorMessage, now, id}
	default:
		query = `UPDATE outbox_events SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox event status: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE status = $1 AND processed_at < $2`,
		model.OutboxStatusProcessed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed outbox events: %w", err)
	}
	return result.RowsAffected()
}
