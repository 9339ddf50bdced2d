package billing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentara/clinic-api/internal/model"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

// fakeBillingRepo is an in-memory BillingRepository with the same decision
// and reconciliation semantics as the postgres implementation, including the
// per-day invoice counter.
type fakeBillingRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*model.Invoice
	items    map[uuid.UUID][]*model.InvoiceItem
	payments map[uuid.UUID]*model.Payment
	seqs     map[string]int
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		invoices: make(map[uuid.UUID]*model.Invoice),
		items:    make(map[uuid.UUID][]*model.InvoiceItem),
		payments: make(map[uuid.UUID]*model.Payment),
		seqs:     make(map[string]int),
	}
}

func (f *fakeBillingRepo) CreateInvoice(_ context.Context, invoice *model.Invoice, items []*model.InvoiceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[invoice.ID] = invoice
	f.items[invoice.ID] = items
	return nil
}

func (f *fakeBillingRepo) GetInvoice(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", nil)
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeBillingRepo) GetInvoiceByNumber(_ context.Context, number string) (*model.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.InvoiceNumber == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("invoice", nil)
}

func (f *fakeBillingRepo) ListInvoices(_ context.Context, _ *model.InvoiceFilters) ([]*model.Invoice, error) {
	out := make([]*model.Invoice, 0, len(f.invoices))
	for _, inv := range f.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeBillingRepo) ListInvoiceItems(_ context.Context, invoiceID uuid.UUID) ([]*model.InvoiceItem, error) {
	return f.items[invoiceID], nil
}

func (f *fakeBillingRepo) CancelInvoice(_ context.Context, id uuid.UUID) error {
	inv, ok := f.invoices[id]
	if !ok {
		return apperrors.NotFound("invoice", nil)
	}
	if inv.Status == model.InvoiceStatusPaid || inv.Status == model.InvoiceStatusCancelled {
		return apperrors.Conflict("invoice cannot be cancelled", nil)
	}
	inv.Status = model.InvoiceStatusCancelled
	return nil
}

func (f *fakeBillingRepo) NextInvoiceSequence(_ context.Context, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format("2006-01-02")
	f.seqs[key]++
	return f.seqs[key], nil
}

func (f *fakeBillingRepo) CreatePayment(_ context.Context, payment *model.Payment) error {
	f.payments[payment.ID] = payment
	return nil
}

func (f *fakeBillingRepo) GetPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, apperrors.NotFound("payment", nil)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBillingRepo) ListPayments(_ context.Context, _ *model.PaymentFilters) ([]*model.Payment, error) {
	out := make([]*model.Payment, 0, len(f.payments))
	for _, p := range f.payments {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeBillingRepo) ListInvoicePayments(_ context.Context, invoiceID uuid.UUID) ([]*model.Payment, error) {
	var out []*model.Payment
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBillingRepo) DecidePayment(ctx context.Context, paymentID uuid.UUID, allowedFrom []model.ApprovalStatus, to model.ApprovalStatus, notes string) (*model.Payment, *model.Invoice, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, nil, apperrors.NotFound("payment", nil)
	}

	allowed := false
	for _, from := range allowedFrom {
		if p.ApprovalStatus == from {
			allowed = true
			break
		}
	}
	if !allowed {
		if p.ApprovalStatus == model.ApprovalStatusRejected {
			return nil, nil, apperrors.AlreadyRejected("payment was already rejected")
		}
		return nil, nil, apperrors.Conflict("payment is already decided", nil)
	}

	p.ApprovalStatus = to
	p.Notes = notes
	p.UpdatedAt = time.Now()

	invoice, err := f.ReconcileInvoice(ctx, p.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	cp := *p
	return &cp, invoice, nil
}

func (f *fakeBillingRepo) ReconcileInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, apperrors.NotFound("invoice", nil)
	}

	payments, _ := f.ListInvoicePayments(ctx, invoiceID)
	inv.AmountPaid = model.SumApprovedPayments(payments)
	if inv.Status != model.InvoiceStatusCancelled {
		inv.Status = model.DeriveInvoiceStatus(inv.AmountPaid, inv.TotalAmount)
	}
	cp := *inv
	return &cp, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*model.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) Get(context.Context, uuid.UUID) (*model.Notification, error) {
	return nil, apperrors.NotFound("notification", nil)
}

func (f *fakeNotifier) List(context.Context, *model.NotificationFilters) ([]*model.Notification, error) {
	return nil, nil
}

func (f *fakeNotifier) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (f *fakeNotifier) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

func newTestService() (*Service, *fakeBillingRepo, *fakeNotifier) {
	repo := newFakeBillingRepo()
	notifier := &fakeNotifier{}
	return NewService(repo, notifier, zerolog.Nop()), repo, notifier
}

func createTestInvoice(t *testing.T, svc *Service, total int64) *model.Invoice {
	t.Helper()
	invoice, err := svc.CreateInvoice(context.Background(), &model.CreateInvoiceRequest{
		PatientID: uuid.New(),
		Items: []model.CreateInvoiceItemRequest{
			{Description: "Tooth Extraction", UnitPrice: decimal.NewFromInt(total), Quantity: 1},
		},
	})
	require.NoError(t, err)
	return invoice
}

func submitTestPayment(t *testing.T, svc *Service, invoiceID uuid.UUID, amount int64) *model.Payment {
	t.Helper()
	payment, err := svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:       invoiceID,
		Amount:          decimal.NewFromInt(amount),
		PaymentMethod:   model.PaymentMethodGCash,
		ReferenceNumber: "GC-" + uuid.NewString()[:8],
		ProofURL:        "https://cdn.example.com/" + uuid.NewString() + ".jpg",
	})
	require.NoError(t, err)
	return payment
}

func TestCreateInvoice(t *testing.T) {
	svc, _, notifier := newTestService()

	doctorID := uuid.New()
	invoice, err := svc.CreateInvoice(context.Background(), &model.CreateInvoiceRequest{
		PatientID:  uuid.New(),
		DoctorID:   &doctorID,
		DoctorName: "Reyes",
		Discount:   decimal.NewFromInt(50),
		Tax:        decimal.NewFromInt(120),
		Items: []model.CreateInvoiceItemRequest{
			{Description: "Cleaning", UnitPrice: decimal.NewFromInt(800), Quantity: 1},
			{Description: "Filling", UnitPrice: decimal.NewFromInt(150), Quantity: 2, Discount: decimal.NewFromInt(30)},
		},
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(1070).Equal(invoice.Subtotal), "subtotal: %s", invoice.Subtotal)
	assert.True(t, decimal.NewFromInt(1140).Equal(invoice.TotalAmount), "total: %s", invoice.TotalAmount)
	assert.Equal(t, model.InvoiceStatusPending, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))

	// The doctor tag in the notes must round-trip.
	ref, ok := ExtractDoctor(invoice.Notes)
	require.True(t, ok)
	require.NotNil(t, ref.ID)
	assert.Equal(t, doctorID, *ref.ID)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, model.NotificationCategoryPayment, notifier.sent[0].Category)
}

func TestConcurrentInvoicesGetDistinctNumbers(t *testing.T) {
	svc, _, _ := newTestService()

	const n = 8
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			invoice, err := svc.CreateInvoice(context.Background(), &model.CreateInvoiceRequest{
				PatientID: uuid.New(),
				Items: []model.CreateInvoiceItemRequest{
					{Description: "Cleaning", UnitPrice: decimal.NewFromInt(800), Quantity: 1},
				},
			})
			if err == nil {
				numbers <- invoice.InvoiceNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for num := range numbers {
		assert.False(t, seen[num], "invoice number %s allocated twice", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateInvoice(context.Background(), &model.CreateInvoiceRequest{
		PatientID: uuid.New(),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	_, err = svc.CreateInvoice(context.Background(), &model.CreateInvoiceRequest{
		PatientID: uuid.New(),
		Items: []model.CreateInvoiceItemRequest{
			{Description: "Free", UnitPrice: decimal.Zero, Quantity: 1},
		},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestSubmitPaymentNonCashFailsClosed(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	_, err := svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:     invoice.ID,
		Amount:        decimal.NewFromInt(500),
		PaymentMethod: model.PaymentMethodGCash,
		ProofURL:      "https://cdn.example.com/r.jpg",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation), "missing reference must fail")

	_, err = svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:       invoice.ID,
		Amount:          decimal.NewFromInt(500),
		PaymentMethod:   model.PaymentMethodBankTransfer,
		ReferenceNumber: "BT-1",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation), "missing proof must fail")
}

func TestSubmitPaymentCashSynthesizes(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	payment, err := svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:     invoice.ID,
		Amount:        decimal.NewFromInt(1000),
		PaymentMethod: model.PaymentMethodCash,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(payment.ReferenceNumber, "CASH-"))
	assert.Equal(t, model.ApprovalStatusPending, payment.ApprovalStatus)

	url, ok := ExtractProofURL(payment.Notes)
	require.True(t, ok)
	assert.True(t, IsPlaceholderProof(url))
}

func TestApprovePaymentsToPaid(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	p1 := submitTestPayment(t, svc, invoice.ID, 400)
	p2 := submitTestPayment(t, svc, invoice.ID, 600)

	_, inv, err := svc.ApprovePayment(context.Background(), p1.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(inv.AmountPaid))
	assert.Equal(t, model.InvoiceStatusPartial, inv.Status)

	approved, inv, err := svc.ApprovePayment(context.Background(), p2.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(inv.AmountPaid))
	assert.Equal(t, model.InvoiceStatusPaid, inv.Status)
	assert.Contains(t, approved.Notes, ApprovedAnnotation)
}

func TestApproveIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)
	payment := submitTestPayment(t, svc, invoice.ID, 400)

	_, _, err := svc.ApprovePayment(context.Background(), payment.ID)
	require.NoError(t, err)

	// A second approval neither errors nor stacks annotations.
	approved, inv, err := svc.ApprovePayment(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(approved.Notes, ApprovedAnnotation))
	assert.True(t, decimal.NewFromInt(400).Equal(inv.AmountPaid))
}

func TestRejectApprovedPaymentReverses(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	p1 := submitTestPayment(t, svc, invoice.ID, 400)
	p2 := submitTestPayment(t, svc, invoice.ID, 600)

	_, _, err := svc.ApprovePayment(context.Background(), p1.ID)
	require.NoError(t, err)
	_, inv, err := svc.ApprovePayment(context.Background(), p2.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceStatusPaid, inv.Status)

	// Rejecting a mistakenly approved payment pulls its amount back out.
	rejected, inv, err := svc.RejectPayment(context.Background(), p2.ID, "Cruz")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(inv.AmountPaid))
	assert.Equal(t, model.InvoiceStatusPartial, inv.Status)
	assert.Contains(t, rejected.Notes, "Dr. Cruz rejected your payment.")
	assert.NotContains(t, rejected.Notes, ApprovedAnnotation)
}

func TestRejectionIsTerminal(t *testing.T) {
	svc, _, notifier := newTestService()
	invoice := createTestInvoice(t, svc, 1000)
	payment := submitTestPayment(t, svc, invoice.ID, 1000)

	_, inv, err := svc.RejectPayment(context.Background(), payment.ID, "Cruz")
	require.NoError(t, err)
	assert.True(t, inv.AmountPaid.IsZero())
	assert.Equal(t, model.InvoiceStatusPending, inv.Status)

	// The patient is told to pay again with the structured message.
	last := notifier.sent[len(notifier.sent)-1]
	assert.Equal(t, invoice.PatientID, last.RecipientID)
	assert.Contains(t, last.Message, "rejected your payment")

	_, _, err = svc.ApprovePayment(context.Background(), payment.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrAlreadyRejected))

	_, _, err = svc.RejectPayment(context.Background(), payment.ID, "Cruz")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrAlreadyRejected))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)
	payment := submitTestPayment(t, svc, invoice.ID, 400)

	_, _, err := svc.ApprovePayment(context.Background(), payment.ID)
	require.NoError(t, err)

	first, err := svc.RecomputeInvoiceTotals(context.Background(), invoice.ID)
	require.NoError(t, err)
	second, err := svc.RecomputeInvoiceTotals(context.Background(), invoice.ID)
	require.NoError(t, err)

	assert.True(t, first.AmountPaid.Equal(second.AmountPaid))
	assert.Equal(t, first.Status, second.Status)
}

func TestSubmitPaymentOnCancelledInvoice(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	require.NoError(t, svc.CancelInvoice(context.Background(), invoice.ID))

	_, err := svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:     invoice.ID,
		Amount:        decimal.NewFromInt(500),
		PaymentMethod: model.PaymentMethodCash,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestInvoiceProofs(t *testing.T) {
	svc, _, _ := newTestService()
	invoice := createTestInvoice(t, svc, 1000)

	submitTestPayment(t, svc, invoice.ID, 400)
	_, err := svc.SubmitPayment(context.Background(), &model.SubmitPaymentRequest{
		InvoiceID:     invoice.ID,
		Amount:        decimal.NewFromInt(600),
		PaymentMethod: model.PaymentMethodCash,
	})
	require.NoError(t, err)

	proofs, err := svc.InvoiceProofs(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 2)
}
