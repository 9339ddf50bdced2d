package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOther        PaymentMethod = "other"
)

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Payment is one patient-submitted payment attempt against an invoice.
// Approval transitions are terminal: a rejected payment is never approved
// later; the patient submits a new one.
type Payment struct {
	Base
	InvoiceID       uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	ReferenceNumber string          `db:"reference_number" json:"reference_number"`
	ApprovalStatus  ApprovalStatus  `db:"approval_status" json:"approval_status"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
}

type SubmitPaymentRequest struct {
	InvoiceID       uuid.UUID       `json:"invoice_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod   PaymentMethod   `json:"payment_method" binding:"required,oneof=gcash cash bank_transfer other"`
	ReferenceNumber string          `json:"reference_number"`
	ProofURL        string          `json:"proof_url"`
}

type DecidePaymentRequest struct {
	DoctorName string `json:"doctor_name" binding:"required,max=200"`
}

type PaymentFilters struct {
	InvoiceID uuid.UUID
	Status    ApprovalStatus
	Method    PaymentMethod
	StartDate time.Time
	EndDate   time.Time
}
