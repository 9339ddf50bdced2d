package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	"github.com/dentara/clinic-api/internal/service/billing"
	"github.com/dentara/clinic-api/internal/service/notification"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

const (
	MinAppointmentDuration = 15 * time.Minute
	MaxAppointmentDuration = 4 * time.Hour
	MaxAdvanceBooking      = 90 * 24 * time.Hour
)

type Service struct {
	repo        repository.AppointmentRepository
	patientRepo repository.PatientRepository
	billingSvc  *billing.Service
	notifSvc    notification.Service
	logger      zerolog.Logger
}

func NewService(repo repository.AppointmentRepository, patientRepo repository.PatientRepository, billingSvc *billing.Service, notifSvc notification.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		patientRepo: patientRepo,
		billingSvc:  billingSvc,
		notifSvc:    notifSvc,
		logger:      logger.With().Str("service", "appointment").Logger(),
	}
}

func (s *Service) validateTimes(startTime, endTime time.Time) error {
	now := time.Now()
	duration := endTime.Sub(startTime)

	if startTime.Before(now) {
		return apperrors.Validation("appointment cannot be scheduled in the past")
	}
	if duration < MinAppointmentDuration {
		return apperrors.Validation(fmt.Sprintf("appointment duration must be at least %v", MinAppointmentDuration))
	}
	if duration > MaxAppointmentDuration {
		return apperrors.Validation(fmt.Sprintf("appointment duration cannot exceed %v", MaxAppointmentDuration))
	}
	if startTime.After(now.Add(MaxAdvanceBooking)) {
		return apperrors.Validation("appointment cannot be booked more than 90 days ahead")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := s.validateTimes(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	if _, err := s.patientRepo.Get(ctx, req.PatientID); err != nil {
		return nil, err
	}

	conflict, err := s.repo.CheckConflicts(ctx, req.DoctorID, req.StartTime, req.EndTime, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check appointment conflicts: %w", err)
	}
	if conflict {
		return nil, apperrors.Conflict("doctor already has an appointment in this time slot", nil)
	}

	now := time.Now()
	appointment := &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    model.AppointmentStatusScheduled,
		Notes:     req.Notes,
	}

	if err := s.repo.Create(ctx, appointment, req.ServiceIDs); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.notify(ctx, appointment.PatientID, &model.Notification{
		Title:    "Appointment scheduled",
		Message:  fmt.Sprintf("Your appointment on %s has been scheduled.", appointment.StartTime.Format("Jan 2, 2006 at 3:04 PM")),
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryAppointment,
		Priority: model.NotificationPriorityNormal,
	})

	return appointment, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListServices(ctx context.Context, id uuid.UUID) ([]*model.BilledService, error) {
	return s.repo.ListServices(ctx, id)
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status == model.AppointmentStatusCompleted || appointment.Status == model.AppointmentStatusCancelled {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot reschedule a %s appointment", appointment.Status), nil)
	}

	if err := s.validateTimes(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	conflict, err := s.repo.CheckConflicts(ctx, appointment.DoctorID, req.StartTime, req.EndTime, &appointment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check appointment conflicts: %w", err)
	}
	if conflict {
		return nil, apperrors.Conflict("doctor already has an appointment in this time slot", nil)
	}

	appointment.StartTime = req.StartTime
	appointment.EndTime = req.EndTime
	appointment.Status = model.AppointmentStatusScheduled

	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to reschedule appointment: %w", err)
	}

	s.notify(ctx, appointment.PatientID, &model.Notification{
		Title:    "Appointment rescheduled",
		Message:  fmt.Sprintf("Your appointment was moved to %s.", appointment.StartTime.Format("Jan 2, 2006 at 3:04 PM")),
		Type:     model.NotificationTypeInfo,
		Category: model.NotificationCategoryAppointment,
		Priority: model.NotificationPriorityHigh,
	})

	return appointment, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot confirm a %s appointment", appointment.Status), nil)
	}

	appointment.Status = model.AppointmentStatusConfirmed
	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to confirm appointment: %w", err)
	}
	return appointment, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status == model.AppointmentStatusCompleted {
		return nil, apperrors.Conflict("cannot cancel a completed appointment", nil)
	}
	if appointment.Status == model.AppointmentStatusCancelled {
		return appointment, nil
	}

	appointment.Status = model.AppointmentStatusCancelled
	appointment.CancelReason = &reason

	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	s.notify(ctx, appointment.PatientID, &model.Notification{
		Title:    "Appointment cancelled",
		Message:  fmt.Sprintf("Your appointment on %s was cancelled.", appointment.StartTime.Format("Jan 2, 2006 at 3:04 PM")),
		Type:     model.NotificationTypeWarning,
		Category: model.NotificationCategoryAppointment,
		Priority: model.NotificationPriorityHigh,
	})

	return appointment, nil
}

// Complete marks the appointment done and generates its invoice from the
// services performed, tagged with the treating doctor so later payment
// decisions can be routed back.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, doctorName string) (*model.Appointment, *model.Invoice, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if appointment.Status == model.AppointmentStatusCancelled {
		return nil, nil, apperrors.Conflict("cannot complete a cancelled appointment", nil)
	}
	if appointment.Status == model.AppointmentStatusCompleted {
		return nil, nil, apperrors.Conflict("appointment is already completed", nil)
	}

	appointment.Status = model.AppointmentStatusCompleted
	if err := s.repo.Update(ctx, appointment); err != nil {
		return nil, nil, fmt.Errorf("failed to complete appointment: %w", err)
	}

	services, err := s.repo.ListServices(ctx, appointment.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list appointment services: %w", err)
	}
	if len(services) == 0 {
		// Nothing billable was performed; completion without an invoice.
		return appointment, nil, nil
	}

	items := make([]model.CreateInvoiceItemRequest, 0, len(services))
	for _, svc := range services {
		items = append(items, model.CreateInvoiceItemRequest{
			Description: svc.Name,
			UnitPrice:   svc.Price,
			Quantity:    svc.Quantity,
		})
	}

	invoice, err := s.billingSvc.CreateInvoice(ctx, &model.CreateInvoiceRequest{
		PatientID:     appointment.PatientID,
		AppointmentID: &appointment.ID,
		DoctorID:      &appointment.DoctorID,
		DoctorName:    doctorName,
		Items:         items,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate invoice: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", appointment.ID.String()).
		Str("invoice_id", invoice.ID.String()).
		Msg("appointment completed and invoiced")

	return appointment, invoice, nil
}

func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, n *model.Notification) {
	n.RecipientID = recipientID
	if err := s.notifSvc.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).
			Str("recipient_id", recipientID.String()).
			Msg("failed to send notification")
	}
}
