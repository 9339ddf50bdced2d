package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	Base
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	StartTime    time.Time         `db:"start_time" json:"start_time"`
	EndTime      time.Time         `db:"end_time" json:"end_time"`
	Status       AppointmentStatus `db:"status" json:"status"`
	Notes        string            `db:"notes" json:"notes,omitempty"`
	CancelReason *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// AppointmentService links an appointment to a catalog service performed
// during it. Completed services drive invoice line items.
type AppointmentService struct {
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	ServiceID     uuid.UUID `db:"service_id" json:"service_id"`
	Quantity      int       `db:"quantity" json:"quantity"`
}

// BilledService is a catalog service joined with the quantity performed
// during one appointment.
type BilledService struct {
	DentalService
	Quantity int `db:"quantity" json:"quantity"`
}

type CreateAppointmentRequest struct {
	PatientID  uuid.UUID   `json:"patient_id" binding:"required"`
	DoctorID   uuid.UUID   `json:"doctor_id" binding:"required"`
	StartTime  time.Time   `json:"start_time" binding:"required"`
	EndTime    time.Time   `json:"end_time" binding:"required,gtfield=StartTime"`
	ServiceIDs []uuid.UUID `json:"service_ids"`
	Notes      string      `json:"notes" binding:"max=1000"`
}

type RescheduleAppointmentRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
}

type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	StartDate time.Time
	EndDate   time.Time
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
