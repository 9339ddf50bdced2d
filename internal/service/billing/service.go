package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	"github.com/dentara/clinic-api/internal/service/notification"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

// decisionStates are the approval states a doctor decision may start from.
// Pending is the normal case; approved lets a doctor reverse a mistaken
// approval into a rejection (or re-approve, a no-op). Rejected is terminal
// and is deliberately absent.
var decisionStates = []model.ApprovalStatus{
	model.ApprovalStatusPending,
	model.ApprovalStatusApproved,
}

type Service struct {
	repo     repository.BillingRepository
	notifSvc notification.Service
	logger   zerolog.Logger
}

func NewService(repo repository.BillingRepository, notifSvc notification.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifSvc: notifSvc,
		logger:   logger.With().Str("service", "billing").Logger(),
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req *model.CreateInvoiceRequest) (*model.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, apperrors.Validation("invoice requires at least one line item")
	}
	if req.Discount.IsNegative() || req.Tax.IsNegative() {
		return nil, apperrors.Validation("discount and tax cannot be negative")
	}

	now := time.Now()
	invoiceID := uuid.New()

	subtotal := decimal.Zero
	items := make([]*model.InvoiceItem, 0, len(req.Items))
	for _, ir := range req.Items {
		if !ir.UnitPrice.IsPositive() {
			return nil, apperrors.Validation(fmt.Sprintf("item %q requires a positive unit price", ir.Description))
		}
		if ir.Discount.IsNegative() {
			return nil, apperrors.Validation(fmt.Sprintf("item %q has a negative discount", ir.Description))
		}
		item := &model.InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   invoiceID,
			Description: ir.Description,
			UnitPrice:   ir.UnitPrice,
			Quantity:    ir.Quantity,
			Discount:    ir.Discount,
			CreatedAt:   now,
		}
		subtotal = subtotal.Add(item.Total())
		items = append(items, item)
	}

	total := subtotal.Sub(req.Discount).Add(req.Tax)
	if total.IsNegative() {
		return nil, apperrors.Validation("invoice total cannot be negative")
	}

	seq, err := s.repo.NextInvoiceSequence(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	notes := req.Notes
	if req.DoctorID != nil && req.DoctorName != "" {
		tag := FormatDoctorTag(req.DoctorName, *req.DoctorID)
		if notes == "" {
			notes = tag
		} else {
			notes = notes + " | " + tag
		}
	}

	invoice := &model.Invoice{
		Base: model.Base{
			ID:        invoiceID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		InvoiceNumber: FormatInvoiceNumber(now, seq),
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Subtotal:      subtotal,
		Discount:      req.Discount,
		Tax:           req.Tax,
		TotalAmount:   total,
		AmountPaid:    decimal.Zero,
		Status:        model.InvoiceStatusPending,
		Notes:         notes,
	}

	if err := s.repo.CreateInvoice(ctx, invoice, items); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.notify(ctx, invoice.PatientID, &model.Notification{
		Title:    "New invoice issued",
		Message:  fmt.Sprintf("Invoice %s for %s has been issued.", invoice.InvoiceNumber, invoice.TotalAmount.StringFixed(2)),
		Type:     model.NotificationTypeInfo,
		Category: model.NotificationCategoryPayment,
		Priority: model.NotificationPriorityNormal,
	})

	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error) {
	return s.repo.GetInvoiceByNumber(ctx, number)
}

func (s *Service) ListInvoices(ctx context.Context, filters *model.InvoiceFilters) ([]*model.Invoice, error) {
	return s.repo.ListInvoices(ctx, filters)
}

func (s *Service) ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]*model.InvoiceItem, error) {
	return s.repo.ListInvoiceItems(ctx, invoiceID)
}

func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID) error {
	return s.repo.CancelInvoice(ctx, id)
}

// SubmitPayment records a patient payment attempt in the pending state.
// Non-cash methods fail closed: without a reference number and proof the
// doctor has nothing to verify, so the submission is refused rather than
// recorded unverifiable. Cash gets a synthesized reference and an inline
// placeholder receipt.
func (s *Service) SubmitPayment(ctx context.Context, req *model.SubmitPaymentRequest) (*model.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.Validation("payment amount must be positive")
	}

	invoice, err := s.repo.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == model.InvoiceStatusCancelled {
		return nil, apperrors.Conflict("invoice is cancelled", nil)
	}
	if invoice.Status == model.InvoiceStatusPaid {
		return nil, apperrors.Conflict("invoice is already fully paid", nil)
	}

	now := time.Now()
	reference := req.ReferenceNumber
	proofURL := req.ProofURL

	if req.PaymentMethod == model.PaymentMethodCash {
		if reference == "" {
			reference = CashReference(now)
		}
		if proofURL == "" {
			proofURL = PlaceholderProof(reference)
		}
	} else {
		if reference == "" {
			return nil, apperrors.Validation("reference number is required for non-cash payments")
		}
		if proofURL == "" {
			return nil, apperrors.Validation("proof of payment is required for non-cash payments")
		}
	}

	payment := &model.Payment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		InvoiceID:       invoice.ID,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: reference,
		ApprovalStatus:  model.ApprovalStatusPending,
		Notes:           ProofNotes(proofURL),
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if doctor, ok := ExtractDoctor(invoice.Notes); ok && doctor.ID != nil {
		s.notify(ctx, *doctor.ID, &model.Notification{
			Title:    "Payment awaiting review",
			Message:  fmt.Sprintf("A payment of %s was submitted for invoice %s.", payment.Amount.StringFixed(2), invoice.InvoiceNumber),
			Type:     model.NotificationTypeInfo,
			Category: model.NotificationCategoryPayment,
			Priority: model.NotificationPriorityHigh,
		})
	}

	return payment, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, filters *model.PaymentFilters) ([]*model.Payment, error) {
	return s.repo.ListPayments(ctx, filters)
}

func (s *Service) ListInvoicePayments(ctx context.Context, invoiceID uuid.UUID) ([]*model.Payment, error) {
	return s.repo.ListInvoicePayments(ctx, invoiceID)
}

// ApprovePayment moves a payment to approved and recomputes the owning
// invoice. Rejection is terminal: approving a rejected payment fails with
// a conflict telling the doctor the patient must submit a new payment.
// Re-approving an approved payment is an idempotent no-op.
func (s *Service) ApprovePayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, *model.Invoice, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment.ApprovalStatus == model.ApprovalStatusRejected {
		return nil, nil, apperrors.AlreadyRejected("payment was already rejected; the patient must submit a new payment")
	}

	notes := Annotate(payment.Notes, ApprovedAnnotation)

	payment, invoice, err := s.repo.DecidePayment(ctx, paymentID, decisionStates, model.ApprovalStatusApproved, notes)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("invoice_id", invoice.ID.String()).
		Str("invoice_status", string(invoice.Status)).
		Msg("payment approved")

	s.notify(ctx, invoice.PatientID, &model.Notification{
		Title:    "Payment approved",
		Message:  fmt.Sprintf("Your payment of %s for invoice %s was approved.", payment.Amount.StringFixed(2), invoice.InvoiceNumber),
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryPayment,
		Priority: model.NotificationPriorityNormal,
	})

	return payment, invoice, nil
}

// RejectPayment moves a payment to rejected and recomputes the owning
// invoice. An approved payment may be rejected to reverse a mistaken
// approval; its amount leaves the invoice's paid total in the same
// transaction.
func (s *Service) RejectPayment(ctx context.Context, paymentID uuid.UUID, doctorName string) (*model.Payment, *model.Invoice, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment.ApprovalStatus == model.ApprovalStatusRejected {
		return nil, nil, apperrors.AlreadyRejected("payment was already rejected")
	}

	message := RejectionMessage(doctorName)
	notes := Annotate(payment.Notes, message)

	payment, invoice, err := s.repo.DecidePayment(ctx, paymentID, decisionStates, model.ApprovalStatusRejected, notes)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("invoice_id", invoice.ID.String()).
		Str("invoice_status", string(invoice.Status)).
		Msg("payment rejected")

	s.notify(ctx, invoice.PatientID, &model.Notification{
		Title:    "Payment rejected",
		Message:  message,
		Type:     model.NotificationTypeError,
		Category: model.NotificationCategoryPayment,
		Priority: model.NotificationPriorityHigh,
	})

	return payment, invoice, nil
}

// RecomputeInvoiceTotals re-derives amount_paid and status from the payment
// ledger. Safe to run at any time; used to repair drift after manual data
// edits.
func (s *Service) RecomputeInvoiceTotals(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, error) {
	return s.repo.ReconcileInvoice(ctx, invoiceID)
}

// InvoiceProofs returns the proof-of-payment gallery for an invoice.
func (s *Service) InvoiceProofs(ctx context.Context, invoiceID uuid.UUID) ([]Proof, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListInvoicePayments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return RelatedProofs(payments), nil
}

// notify dispatches a notification without letting a failure bubble
// up; the billing operation already committed.
func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, n *model.Notification) {
	n.RecipientID = recipientID
	if err := s.notifSvc.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).
			Str("recipient_id", recipientID.String()).
			Msg("failed to send notification")
	}
}
