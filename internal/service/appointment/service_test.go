package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	"github.com/dentara/clinic-api/internal/service/billing"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type fakeAppointmentRepo struct {
	appointments map[uuid.UUID]*model.Appointment
	services     map[uuid.UUID][]*model.BilledService
	conflict     bool
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{
		appointments: make(map[uuid.UUID]*model.Appointment),
		services:     make(map[uuid.UUID][]*model.BilledService),
	}
}

func (f *fakeAppointmentRepo) Create(_ context.Context, apt *model.Appointment, _ []uuid.UUID) error {
	f.appointments[apt.ID] = apt
	return nil
}

func (f *fakeAppointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := f.appointments[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", nil)
	}
	cp := *apt
	return &cp, nil
}

func (f *fakeAppointmentRepo) Update(_ context.Context, apt *model.Appointment) error {
	if _, ok := f.appointments[apt.ID]; !ok {
		return apperrors.NotFound("appointment", nil)
	}
	f.appointments[apt.ID] = apt
	return nil
}

func (f *fakeAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.appointments, id)
	return nil
}

func (f *fakeAppointmentRepo) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointmentRepo) CheckConflicts(_ context.Context, _ uuid.UUID, _, _ time.Time, _ *uuid.UUID) (bool, error) {
	return f.conflict, nil
}

func (f *fakeAppointmentRepo) ListServices(_ context.Context, id uuid.UUID) ([]*model.BilledService, error) {
	return f.services[id], nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (f *fakePatientRepo) Create(_ context.Context, p *model.Patient) error {
	f.patients[p.ID] = p
	return nil
}

func (f *fakePatientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	return p, nil
}

func (f *fakePatientRepo) GetByEmail(_ context.Context, _ string) (*model.Patient, error) {
	return nil, apperrors.NotFound("patient", nil)
}

func (f *fakePatientRepo) Update(_ context.Context, _ *model.Patient) error { return nil }
func (f *fakePatientRepo) Delete(_ context.Context, _ uuid.UUID) error      { return nil }
func (f *fakePatientRepo) List(_ context.Context, _ *model.PatientFilters) ([]*model.Patient, error) {
	return nil, nil
}

// stubBillingRepo covers only what invoice generation touches.
type stubBillingRepo struct {
	repository.BillingRepository
	invoices []*model.Invoice
}

func (s *stubBillingRepo) NextInvoiceSequence(_ context.Context, _ time.Time) (int, error) {
	return len(s.invoices) + 1, nil
}

func (s *stubBillingRepo) CreateInvoice(_ context.Context, invoice *model.Invoice, _ []*model.InvoiceItem) error {
	s.invoices = append(s.invoices, invoice)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *model.Notification) error { return nil }
func (nopNotifier) Get(context.Context, uuid.UUID) (*model.Notification, error) {
	return nil, apperrors.NotFound("notification", nil)
}
func (nopNotifier) List(context.Context, *model.NotificationFilters) ([]*model.Notification, error) {
	return nil, nil
}
func (nopNotifier) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (nopNotifier) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

func newTestService() (*Service, *fakeAppointmentRepo, *stubBillingRepo, uuid.UUID) {
	repo := newFakeAppointmentRepo()
	billingRepo := &stubBillingRepo{}
	patientID := uuid.New()
	patientRepo := &fakePatientRepo{patients: map[uuid.UUID]*model.Patient{
		patientID: {Base: model.Base{ID: patientID}, Name: "Ana Santos", Email: "ana@example.com"},
	}}
	billingSvc := billing.NewService(billingRepo, nopNotifier{}, zerolog.Nop())
	svc := NewService(repo, patientRepo, billingSvc, nopNotifier{}, zerolog.Nop())
	return svc, repo, billingRepo, patientID
}

func validRequest(patientID uuid.UUID) *model.CreateAppointmentRequest {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	return &model.CreateAppointmentRequest{
		PatientID: patientID,
		DoctorID:  uuid.New(),
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
}

func TestCreateAppointment(t *testing.T) {
	svc, _, _, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
}

func TestCreateAppointmentValidation(t *testing.T) {
	svc, repo, _, patientID := newTestService()

	req := validRequest(patientID)
	req.StartTime = time.Now().Add(-time.Hour)
	req.EndTime = time.Now()
	_, err := svc.Create(context.Background(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation), "past appointment must fail")

	req = validRequest(patientID)
	req.EndTime = req.StartTime.Add(5 * time.Minute)
	_, err = svc.Create(context.Background(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation), "too short must fail")

	req = validRequest(patientID)
	req.PatientID = uuid.New()
	_, err = svc.Create(context.Background(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound), "unknown patient must fail")

	repo.conflict = true
	_, err = svc.Create(context.Background(), validRequest(patientID))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict), "overlapping slot must fail")
}

func TestCompleteGeneratesInvoice(t *testing.T) {
	svc, repo, billingRepo, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)

	repo.services[apt.ID] = []*model.BilledService{
		{DentalService: model.DentalService{Name: "Cleaning", Price: decimal.NewFromInt(800)}, Quantity: 1},
		{DentalService: model.DentalService{Name: "Filling", Price: decimal.NewFromInt(150)}, Quantity: 2},
	}

	completed, invoice, err := svc.Complete(context.Background(), apt.ID, "Reyes")
	require.NoError(t, err)
	require.NotNil(t, invoice)

	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
	assert.True(t, decimal.NewFromInt(1100).Equal(invoice.TotalAmount), "total: %s", invoice.TotalAmount)
	assert.Equal(t, patientID, invoice.PatientID)
	require.NotNil(t, invoice.AppointmentID)
	assert.Equal(t, apt.ID, *invoice.AppointmentID)

	// The treating doctor is tagged into the invoice notes.
	ref, ok := billing.ExtractDoctor(invoice.Notes)
	require.True(t, ok)
	require.NotNil(t, ref.ID)
	assert.Equal(t, apt.DoctorID, *ref.ID)

	require.Len(t, billingRepo.invoices, 1)
}

func TestCompleteWithoutServices(t *testing.T) {
	svc, _, billingRepo, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)

	completed, invoice, err := svc.Complete(context.Background(), apt.ID, "Reyes")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
	assert.Nil(t, invoice)
	assert.Empty(t, billingRepo.invoices)
}

func TestCompleteTerminalStates(t *testing.T) {
	svc, _, _, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), apt.ID, "patient request")
	require.NoError(t, err)

	_, _, err = svc.Complete(context.Background(), apt.ID, "Reyes")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestCancelCompletedFails(t *testing.T) {
	svc, _, _, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)

	_, _, err = svc.Complete(context.Background(), apt.ID, "Reyes")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), apt.ID, "too late")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestRescheduleCancelled(t *testing.T) {
	svc, _, _, patientID := newTestService()

	apt, err := svc.Create(context.Background(), validRequest(patientID))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), apt.ID, "no show")
	require.NoError(t, err)

	start := time.Now().Add(48 * time.Hour)
	_, err = svc.Reschedule(context.Background(), apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}
