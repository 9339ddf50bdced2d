package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentara/clinic-api/internal/model"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type fakeNotificationRepo struct {
	notifications map[uuid.UUID]*model.Notification
	failCreate    bool
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{notifications: make(map[uuid.UUID]*model.Notification)}
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if f.failCreate {
		return apperrors.Persistence(nil)
	}
	f.notifications[n.ID] = n
	return nil
}

func (f *fakeNotificationRepo) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return nil, apperrors.NotFound("notification", nil)
	}
	return n, nil
}

func (f *fakeNotificationRepo) List(_ context.Context, filters *model.NotificationFilters) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, n := range f.notifications {
		if filters != nil && filters.RecipientID != uuid.Nil && n.RecipientID != filters.RecipientID {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id, recipientID uuid.UUID) error {
	n, ok := f.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return apperrors.NotFound("notification", nil)
	}
	n.Read = true
	now := time.Now()
	n.ReadAt = &now
	return nil
}

func (f *fakeNotificationRepo) Delete(_ context.Context, id, recipientID uuid.UUID) error {
	n, ok := f.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return apperrors.NotFound("notification", nil)
	}
	delete(f.notifications, id)
	return nil
}

func (f *fakeNotificationRepo) DeleteReadBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEventsWithLock(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeOutboxRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type stubPatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (s *stubPatientRepo) Create(_ context.Context, _ *model.Patient) error { return nil }
func (s *stubPatientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	return p, nil
}
func (s *stubPatientRepo) GetByEmail(_ context.Context, _ string) (*model.Patient, error) {
	return nil, apperrors.NotFound("patient", nil)
}
func (s *stubPatientRepo) Update(_ context.Context, _ *model.Patient) error { return nil }
func (s *stubPatientRepo) Delete(_ context.Context, _ uuid.UUID) error      { return nil }
func (s *stubPatientRepo) List(_ context.Context, _ *model.PatientFilters) ([]*model.Patient, error) {
	return nil, nil
}

func TestNotifyWritesRowAndOutboxEvent(t *testing.T) {
	repo := newFakeNotificationRepo()
	outbox := &fakeOutboxRepo{}
	patientID := uuid.New()
	patients := &stubPatientRepo{patients: map[uuid.UUID]*model.Patient{
		patientID: {Base: model.Base{ID: patientID}, Email: "ana@example.com"},
	}}
	svc := NewService(repo, outbox, patients, zerolog.Nop())

	err := svc.Notify(context.Background(), &model.Notification{
		RecipientID: patientID,
		Title:       "Payment approved",
		Message:     "Your payment was approved.",
		Category:    model.NotificationCategoryPayment,
	})
	require.NoError(t, err)

	require.Len(t, repo.notifications, 1)
	require.Len(t, outbox.events, 1)

	event := outbox.events[0]
	assert.Equal(t, EventTypeNotificationCreated, event.EventType)
	assert.Equal(t, model.OutboxStatusPending, event.Status)

	var payload model.NotificationEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, patientID, payload.RecipientID)
	assert.Equal(t, "ana@example.com", payload.RecipientEmail)
	assert.Equal(t, "Payment approved", payload.Title)
}

func TestNotifyDoctorRecipientHasNoEmail(t *testing.T) {
	repo := newFakeNotificationRepo()
	outbox := &fakeOutboxRepo{}
	svc := NewService(repo, outbox, &stubPatientRepo{patients: map[uuid.UUID]*model.Patient{}}, zerolog.Nop())

	err := svc.Notify(context.Background(), &model.Notification{
		RecipientID: uuid.New(),
		Title:       "Payment awaiting review",
		Message:     "A payment was submitted.",
		Category:    model.NotificationCategoryPayment,
	})
	require.NoError(t, err)

	require.Len(t, outbox.events, 1)
	var payload model.NotificationEvent
	require.NoError(t, json.Unmarshal(outbox.events[0].Payload, &payload))
	assert.Empty(t, payload.RecipientEmail)
}

func TestNotifyValidation(t *testing.T) {
	svc := NewService(newFakeNotificationRepo(), &fakeOutboxRepo{}, &stubPatientRepo{}, zerolog.Nop())

	err := svc.Notify(context.Background(), &model.Notification{
		Title:   "Missing recipient",
		Message: "x",
	})
	assert.Error(t, err)

	err = svc.Notify(context.Background(), &model.Notification{
		RecipientID: uuid.New(),
	})
	assert.Error(t, err)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	repo := newFakeNotificationRepo()
	svc := NewService(repo, &fakeOutboxRepo{}, &stubPatientRepo{patients: map[uuid.UUID]*model.Patient{}}, zerolog.Nop())

	recipient := uuid.New()
	require.NoError(t, svc.Notify(context.Background(), &model.Notification{
		RecipientID: recipient,
		Title:       "t",
		Message:     "m",
	}))

	var id uuid.UUID
	for nid := range repo.notifications {
		id = nid
	}

	err := svc.MarkRead(context.Background(), id, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound), "other recipients cannot mark it read")

	require.NoError(t, svc.MarkRead(context.Background(), id, recipient))
	assert.True(t, repo.notifications[id].Read)
}
