package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveInvoiceStatus(t *testing.T) {
	total := decimal.NewFromInt(1000)

	assert.Equal(t, InvoiceStatusPending, DeriveInvoiceStatus(decimal.Zero, total))
	assert.Equal(t, InvoiceStatusPartial, DeriveInvoiceStatus(decimal.NewFromInt(400), total))
	assert.Equal(t, InvoiceStatusPaid, DeriveInvoiceStatus(total, total))

	// Overpayment still reads as paid.
	assert.Equal(t, InvoiceStatusPaid, DeriveInvoiceStatus(decimal.NewFromInt(1200), total))

	// A zero-total invoice never reads as paid from a zero amount.
	assert.Equal(t, InvoiceStatusPending, DeriveInvoiceStatus(decimal.Zero, decimal.Zero))
}

func TestSumApprovedPayments(t *testing.T) {
	payments := []*Payment{
		{Amount: decimal.NewFromInt(400), ApprovalStatus: ApprovalStatusApproved},
		{Amount: decimal.NewFromInt(600), ApprovalStatus: ApprovalStatusApproved},
		{Amount: decimal.NewFromInt(250), ApprovalStatus: ApprovalStatusPending},
		{Amount: decimal.NewFromInt(999), ApprovalStatus: ApprovalStatusRejected},
	}

	assert.True(t, decimal.NewFromInt(1000).Equal(SumApprovedPayments(payments)))
	assert.True(t, SumApprovedPayments(nil).IsZero())
}

func TestInvoiceItemTotal(t *testing.T) {
	item := &InvoiceItem{
		UnitPrice: decimal.NewFromInt(500),
		Quantity:  3,
		Discount:  decimal.NewFromInt(100),
	}
	assert.True(t, decimal.NewFromInt(1400).Equal(item.Total()))
}
