package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
)

// Service dispatches in-app notifications. Delivery to external channels
// goes through the outbox: the row and the event are written here, the
// worker publishes and emails later. Callers treat dispatch as best-effort;
// a notification failure never fails the operation that triggered it.
type Service interface {
	Notify(ctx context.Context, notification *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	Delete(ctx context.Context, id, recipientID uuid.UUID) error
}

const EventTypeNotificationCreated = "notification.created"

type service struct {
	repo        repository.NotificationRepository
	outboxRepo  repository.OutboxRepository
	patientRepo repository.PatientRepository
	logger      zerolog.Logger
}

func NewService(repo repository.NotificationRepository, outboxRepo repository.OutboxRepository, patientRepo repository.PatientRepository, logger zerolog.Logger) Service {
	return &service{
		repo:        repo,
		outboxRepo:  outboxRepo,
		patientRepo: patientRepo,
		logger:      logger.With().Str("service", "notification").Logger(),
	}
}

func (s *service) Notify(ctx context.Context, notification *model.Notification) error {
	if notification.RecipientID == uuid.Nil {
		return fmt.Errorf("notification requires a recipient")
	}
	if notification.Title == "" || notification.Message == "" {
		return fmt.Errorf("notification requires a title and message")
	}

	now := time.Now()
	notification.ID = uuid.New()
	notification.CreatedAt = now
	notification.UpdatedAt = now
	if notification.Type == "" {
		notification.Type = model.NotificationTypeInfo
	}
	if notification.Priority == "" {
		notification.Priority = model.NotificationPriorityNormal
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	// The outbox event is what reaches the broker and the email channel.
	// Losing it degrades delivery to in-app only, so log and move on.
	if err := s.enqueueEvent(ctx, notification); err != nil {
		s.logger.Error().Err(err).
			Str("notification_id", notification.ID.String()).
			Msg("failed to enqueue notification event")
	}

	return nil
}

func (s *service) enqueueEvent(ctx context.Context, notification *model.Notification) error {
	event := model.NotificationEvent{
		NotificationID: notification.ID,
		RecipientID:    notification.RecipientID,
		Title:          notification.Title,
		Message:        notification.Message,
		Category:       notification.Category,
		Priority:       notification.Priority,
		CreatedAt:      notification.CreatedAt,
	}

	// Recipients are usually patients; doctors have no stored address and
	// simply get no email leg.
	if patient, err := s.patientRepo.Get(ctx, notification.RecipientID); err == nil {
		event.RecipientEmail = patient.Email
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	now := time.Now()
	return s.outboxRepo.Create(ctx, &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeNotificationCreated,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error) {
	return s.repo.List(ctx, filters)
}

func (s *service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, recipientID)
}

func (s *service) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.Delete(ctx, id, recipientID)
}
