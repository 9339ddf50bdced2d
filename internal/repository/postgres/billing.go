package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

const (
	invoiceColumns = `id, invoice_number, patient_id, appointment_id, subtotal, discount, tax,
		   total_amount, amount_paid, status, notes, created_at, updated_at, deleted_at`
	paymentColumns = `id, invoice_id, amount, payment_method, reference_number,
		   approval_status, notes, created_at, updated_at, deleted_at`
)

type billingRepository struct {
	BaseRepository
}

func NewBillingRepository(db *sqlx.DB) repository.BillingRepository {
	return &billingRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *billingRepository) CreateInvoice(ctx context.Context, invoice *model.Invoice, items []*model.InvoiceItem) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO invoices (
				id, invoice_number, patient_id, appointment_id, subtotal,
				discount, tax, total_amount, amount_paid, status, notes,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err := tx.ExecContext(ctx, query,
			invoice.ID,
			invoice.InvoiceNumber,
			invoice.PatientID,
			invoice.AppointmentID,
			invoice.Subtotal,
			invoice.Discount,
			invoice.Tax,
			invoice.TotalAmount,
			invoice.AmountPaid,
			invoice.Status,
			invoice.Notes,
			invoice.CreatedAt,
			invoice.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		itemQuery := `
			INSERT INTO invoice_items (
				id, invoice_id, description, unit_price, quantity, discount, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, itemQuery,
				item.ID,
				item.InvoiceID,
				item.Description,
				item.UnitPrice,
				item.Quantity,
				item.Discount,
				item.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to create invoice item: %w", err)
			}
		}
		return nil
	})
}

func (r *billingRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND deleted_at IS NULL`

	var invoice model.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("invoice", err)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

func (r *billingRepository) GetInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = $1 AND deleted_at IS NULL`

	var invoice model.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("invoice", err)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

func (r *billingRepository) ListInvoices(ctx context.Context, filters *model.InvoiceFilters) ([]*model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.StartDate.IsZero() {
			query += fmt.Sprintf(" AND created_at >= $%d", argCount)
			args = append(args, filters.StartDate)
			argCount++
		}
		if !filters.EndDate.IsZero() {
			query += fmt.Sprintf(" AND created_at < $%d", argCount)
			args = append(args, filters.EndDate)
			argCount++
		}
	}

	query += " ORDER BY created_at DESC"

	var invoices []*model.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func (r *billingRepository) ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]*model.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, description, unit_price, quantity, discount, created_at
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`
	var items []*model.InvoiceItem
	if err := r.db.SelectContext(ctx, &items, query, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	return items, nil
}

func (r *billingRepository) CancelInvoice(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE invoices
		SET status = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL AND status NOT IN ('paid', 'cancelled')
	`
	result, err := r.db.ExecContext(ctx, query, model.InvoiceStatusCancelled, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel invoice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.Conflict("invoice cannot be cancelled", nil)
	}
	return nil
}

// NextInvoiceSequence returns the next per-day sequence used in the
// INV-YYMMDD-NNN invoice number. The upsert takes a row lock on the day's
// counter, so concurrent creations serialize here and never share a
// sequence. A sequence allocated for an insert that later fails leaves a
// gap, which is fine; numbers must be unique, not dense.
func (r *billingRepository) NextInvoiceSequence(ctx context.Context, day time.Time) (int, error) {
	query := `
		INSERT INTO invoice_counters (day, seq)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`
	var seq int
	if err := r.db.GetContext(ctx, &seq, query, day.Format("2006-01-02")); err != nil {
		return 0, fmt.Errorf("failed to allocate invoice sequence: %w", err)
	}
	return seq, nil
}

func (r *billingRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (
			id, invoice_id, amount, payment_method, reference_number,
			approval_status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.InvoiceID,
		payment.Amount,
		payment.PaymentMethod,
		payment.ReferenceNumber,
		payment.ApprovalStatus,
		payment.Notes,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *billingRepository) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND deleted_at IS NULL`

	var payment model.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("payment", err)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *billingRepository) ListPayments(ctx context.Context, filters *model.PaymentFilters) ([]*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.InvoiceID != uuid.Nil {
			query += fmt.Sprintf(" AND invoice_id = $%d", argCount)
			args = append(args, filters.InvoiceID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND approval_status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if filters.Method != "" {
			query += fmt.Sprintf(" AND payment_method = $%d", argCount)
			args = append(args, filters.Method)
			argCount++
		}
		if !filters.StartDate.IsZero() {
			query += fmt.Sprintf(" AND created_at >= $%d", argCount)
			args = append(args, filters.StartDate)
			argCount++
		}
		if !filters.EndDate.IsZero() {
			query += fmt.Sprintf(" AND created_at < $%d", argCount)
			args = append(args, filters.EndDate)
			argCount++
		}
	}

	query += " ORDER BY created_at ASC"

	var payments []*model.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (r *billingRepository) ListInvoicePayments(ctx context.Context, invoiceID uuid.UUID) ([]*model.Payment, error) {
	return r.ListPayments(ctx, &model.PaymentFilters{InvoiceID: invoiceID})
}

func (r *billingRepository) DecidePayment(ctx context.Context, paymentID uuid.UUID, allowedFrom []model.ApprovalStatus, to model.ApprovalStatus, notes string) (*model.Payment, *model.Invoice, error) {
	var payment model.Payment
	var invoice model.Invoice

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		states := make([]string, len(allowedFrom))
		for i, s := range allowedFrom {
			states[i] = string(s)
		}

		now := time.Now()
		query := `
			UPDATE payments
			SET approval_status = $1, notes = $2, updated_at = $3
			WHERE id = $4 AND deleted_at IS NULL AND approval_status = ANY($5)
			RETURNING ` + paymentColumns

		err := tx.GetContext(ctx, &payment, query, to, notes, now, paymentID, pq.Array(states))
		if errors.Is(err, sql.ErrNoRows) {
			// The guarded update matched nothing: either the payment is
			// gone or another decision won the race.
			var current model.Payment
			checkErr := tx.GetContext(ctx, &current,
				`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND deleted_at IS NULL`, paymentID)
			if errors.Is(checkErr, sql.ErrNoRows) {
				return apperrors.NotFound("payment", checkErr)
			}
			if checkErr != nil {
				return fmt.Errorf("failed to get payment: %w", checkErr)
			}
			if current.ApprovalStatus == model.ApprovalStatusRejected {
				return apperrors.AlreadyRejected("payment has been rejected and cannot be approved")
			}
			return apperrors.Conflict(fmt.Sprintf("payment is already %s", current.ApprovalStatus), nil)
		}
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		return r.reconcileTx(ctx, tx, payment.InvoiceID, &invoice)
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, &invoice, nil
}

func (r *billingRepository) ReconcileInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.reconcileTx(ctx, tx, invoiceID, &invoice)
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// reconcileTx recomputes amount_paid from the full set of approved payments
// rather than applying an increment, so historical edits and races cannot
// accumulate drift. A cancelled invoice keeps its status.
func (r *billingRepository) reconcileTx(ctx context.Context, tx *sqlx.Tx, invoiceID uuid.UUID, invoice *model.Invoice) error {
	err := tx.GetContext(ctx, invoice,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("invoice", err)
	}
	if err != nil {
		return fmt.Errorf("failed to get invoice: %w", err)
	}

	var payments []*model.Payment
	if err := tx.SelectContext(ctx, &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 AND deleted_at IS NULL`, invoiceID); err != nil {
		return fmt.Errorf("failed to list payments: %w", err)
	}

	approved := model.SumApprovedPayments(payments)
	status := invoice.Status
	if status != model.InvoiceStatusCancelled {
		status = model.DeriveInvoiceStatus(approved, invoice.TotalAmount)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE invoices SET amount_paid = $1, status = $2, updated_at = $3 WHERE id = $4`,
		approved, status, now, invoiceID); err != nil {
		return fmt.Errorf("failed to update invoice totals: %w", err)
	}

	invoice.AmountPaid = approved
	invoice.Status = status
	invoice.UpdatedAt = now
	return nil
}
