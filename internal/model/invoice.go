package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusRejected  InvoiceStatus = "rejected"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	Base
	InvoiceNumber string        `db:"invoice_number" json:"invoice_number"`
	PatientID     uuid.UUID     `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID    `db:"appointment_id" json:"appointment_id,omitempty"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountPaid    decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Status        InvoiceStatus `db:"status" json:"status"`
	Notes         string        `db:"notes" json:"notes,omitempty"`
}

type InvoiceItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Description string          `db:"description" json:"description"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Discount    decimal.Decimal `db:"discount" json:"discount"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Total is unit price times quantity, less the line discount.
func (i *InvoiceItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

type CreateInvoiceRequest struct {
	PatientID     uuid.UUID                  `json:"patient_id" binding:"required"`
	AppointmentID *uuid.UUID                 `json:"appointment_id"`
	DoctorID      *uuid.UUID                 `json:"doctor_id"`
	DoctorName    string                     `json:"doctor_name" binding:"max=200"`
	Discount      decimal.Decimal            `json:"discount"`
	Tax           decimal.Decimal            `json:"tax"`
	Notes         string                     `json:"notes" binding:"max=2000"`
	Items         []CreateInvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CreateInvoiceItemRequest struct {
	Description string          `json:"description" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	Discount    decimal.Decimal `json:"discount"`
}

type InvoiceFilters struct {
	PatientID uuid.UUID
	Status    InvoiceStatus
	StartDate time.Time
	EndDate   time.Time
}

// DeriveInvoiceStatus computes the payment-derived status of an invoice.
// paid once the approved amount covers the total, partial while something
// but not everything is approved, pending otherwise. A zero-total invoice
// with nothing approved stays pending rather than reading as settled.
// Cancellation is an out-of-band status and is never produced here.
func DeriveInvoiceStatus(amountPaid, totalAmount decimal.Decimal) InvoiceStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(totalAmount) && totalAmount.IsPositive():
		return InvoiceStatusPaid
	case amountPaid.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPending
	}
}

// SumApprovedPayments totals the amounts of payments whose approval status
// is approved. Pending and rejected payments never contribute.
func SumApprovedPayments(payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.ApprovalStatus == ApprovalStatusApproved {
			total = total.Add(p.Amount)
		}
	}
	return total
}
