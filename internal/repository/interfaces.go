package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dentara/clinic-api/internal/model"
)

// All repository interfaces in one file
type (
	// BillingRepository owns invoices, invoice items and payments. Payment
	// decisions and reconciliation run inside a single transaction so the
	// payment ledger and the invoice aggregate cannot drift apart on a
	// partial failure.
	BillingRepository interface {
		CreateInvoice(ctx context.Context, invoice *model.Invoice, items []*model.InvoiceItem) error
		GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
		GetInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error)
		ListInvoices(ctx context.Context, filters *model.InvoiceFilters) ([]*model.Invoice, error)
		ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]*model.InvoiceItem, error)
		CancelInvoice(ctx context.Context, id uuid.UUID) error
		NextInvoiceSequence(ctx context.Context, day time.Time) (int, error)

		CreatePayment(ctx context.Context, payment *model.Payment) error
		GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		ListPayments(ctx context.Context, filters *model.PaymentFilters) ([]*model.Payment, error)
		ListInvoicePayments(ctx context.Context, invoiceID uuid.UUID) ([]*model.Payment, error)

		// DecidePayment applies a guarded approval transition (the update
		// only succeeds while the payment is in one of the allowed states)
		// and recomputes the owning invoice's amount_paid and status from
		// the full payment set, all in one transaction.
		DecidePayment(ctx context.Context, paymentID uuid.UUID, allowedFrom []model.ApprovalStatus, to model.ApprovalStatus, notes string) (*model.Payment, *model.Invoice, error)

		// ReconcileInvoice recomputes amount_paid and status from the
		// payment ledger. Idempotent; never overrides a cancelled status.
		ReconcileInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment, serviceIDs []uuid.UUID) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		CheckConflicts(ctx context.Context, doctorID uuid.UUID, startTime, endTime time.Time, excludeID *uuid.UUID) (bool, error)
		ListServices(ctx context.Context, appointmentID uuid.UUID) ([]*model.BilledService, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByEmail(ctx context.Context, email string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	ServiceRepository interface {
		Create(ctx context.Context, service *model.DentalService) error
		Get(ctx context.Context, id uuid.UUID) (*model.DentalService, error)
		Update(ctx context.Context, service *model.DentalService) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, activeOnly bool) ([]*model.DentalService, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error)
		MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
		Delete(ctx context.Context, id, recipientID uuid.UUID) error
		DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
