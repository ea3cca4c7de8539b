package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
)

// TxRepository exposes settlement operations bound to one transaction.
// Savepoint scopes a phase so it can roll back without unwinding work
// already done on the same transaction.
type TxRepository interface {
	Savepoint(ctx context.Context, name string, fn func() error) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	CountInstallments(ctx context.Context, invoice string) (int, error)
	InsertInstallment(ctx context.Context, row Installment) error
	PaymentExecutionExists(ctx context.Context, idempotencyKey string) (bool, error)
	InsertPaymentExecution(ctx context.Context, exec PaymentExecution) (int64, error)
	MarkInstallmentPaid(ctx context.Context, invoice string, number int, paidAmount float64, paidDate time.Time, ref string, fxVariance float64) (bool, error)
	ListInstallmentStatuses(ctx context.Context, invoice string) ([]InstallmentStatus, error)
	SetInvoiceStatus(ctx context.Context, invoice string, status InvoiceStatus) error
	GetPaymentExecution(ctx context.Context, id int64) (PaymentExecution, error)
	ListInvoiceItems(ctx context.Context, invoice string) ([]InvoiceItem, error)
	Ledger() LedgerStore
}

// Repository persists settlement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetInvoice loads an invoice outside any transaction.
func (r *Repository) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return getInvoice(ctx, r.pool, id)
}

// ListInstallments returns the invoice schedule ordered by number.
func (r *Repository) ListInstallments(ctx context.Context, invoice string) ([]Installment, error) {
	const query = `
		SELECT invoice_id, installment_number, due_date, amount, paid_amount,
		       status, paid_date, COALESCE(payment_reference, ''), exchange_rate_variance
		FROM installments
		WHERE invoice_id = $1
		ORDER BY installment_number ASC`

	rows, err := r.pool.Query(ctx, query, invoice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []Installment
	for rows.Next() {
		var row Installment
		var status string
		if err := rows.Scan(&row.InvoiceID, &row.Number, &row.DueDate, &row.Amount,
			&row.PaidAmount, &status, &row.PaidDate, &row.PaymentReference, &row.FXVariance); err != nil {
			return nil, err
		}
		row.Status = InstallmentStatus(status)
		installments = append(installments, row)
	}
	return installments, rows.Err()
}

// MarkOverdue flips past-due pending installments to Overdue in one
// statement and returns the number of rows affected.
func (r *Repository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE installments
		SET status = $1
		WHERE status = $2 AND due_date < $3`

	tag, err := r.pool.Exec(ctx, query, string(InstallmentOverdue), string(InstallmentPending), now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListDueReminders returns pending installments due exactly on the target
// date, joined with the invoice counterparty.
func (r *Repository) ListDueReminders(ctx context.Context, dueOn time.Time) ([]ReminderRow, error) {
	const query = `
		SELECT i.invoice_id, i.installment_number, i.due_date, i.amount,
		       inv.total_amount, inv.currency, inv.entity, COALESCE(inv.entity_email, '')
		FROM installments i
		JOIN invoices inv ON inv.id = i.invoice_id
		WHERE i.status = $1 AND i.due_date::date = $2::date
		ORDER BY i.invoice_id, i.installment_number`

	rows, err := r.pool.Query(ctx, query, string(InstallmentPending), dueOn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []ReminderRow
	for rows.Next() {
		var row ReminderRow
		if err := rows.Scan(&row.Invoice, &row.Installment, &row.DueDate, &row.Amount,
			&row.TotalAmount, &row.Currency, &row.Entity, &row.Email); err != nil {
			return nil, err
		}
		reminders = append(reminders, row)
	}
	return reminders, rows.Err()
}

func getInvoice(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id string) (Invoice, error) {
	const query = `
		SELECT id, COALESCE(payment_terms, ''), status, total_amount, currency,
		       invoice_date, COALESCE(actual_exchange_rate, 0),
		       entity, COALESCE(entity_email, '')
		FROM invoices
		WHERE id = $1`

	var inv Invoice
	var terms, status string
	err := q.QueryRow(ctx, query, id).Scan(
		&inv.ID, &terms, &status, &inv.TotalAmount, &inv.Currency,
		&inv.InvoiceDate, &inv.ActualExchangeRate, &inv.Entity, &inv.EntityEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Invoice{}, err
	}
	inv.Terms = PaymentTerms(terms)
	inv.Status = InvoiceStatus(status)
	return inv, nil
}

func (t *txRepo) Savepoint(ctx context.Context, name string, fn func() error) error {
	return db.WithSavepoint(ctx, t.tx, name, func(pgx.Tx) error { return fn() })
}

func (t *txRepo) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return getInvoice(ctx, t.tx, id)
}

func (t *txRepo) CountInstallments(ctx context.Context, invoice string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM installments WHERE invoice_id = $1`, invoice).Scan(&count)
	return count, err
}

func (t *txRepo) InsertInstallment(ctx context.Context, row Installment) error {
	const query = `
		INSERT INTO installments (
			invoice_id, installment_number, due_date, amount, paid_amount,
			status, exchange_rate_variance
		) VALUES ($1, $2, $3, $4, 0, $5, 0)`

	_, err := t.tx.Exec(ctx, query,
		row.InvoiceID, row.Number, row.DueDate, row.Amount, string(InstallmentPending))
	return err
}

func (t *txRepo) PaymentExecutionExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_executions WHERE idempotency_key = $1)`,
		idempotencyKey).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertPaymentExecution(ctx context.Context, exec PaymentExecution) (int64, error) {
	const query = `
		INSERT INTO payment_executions (
			invoice_id, installment_number, payment_date, amount_paid,
			exchange_rate, remittance_reference, bank_reference,
			idempotency_key, fx_variance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		exec.Invoice, exec.Installment, exec.PaymentDate, exec.AmountPaid,
		exec.ExchangeRate, exec.RemittanceReference, exec.BankReference,
		exec.IdempotencyKey, exec.FXVariance,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicatePayment, exec.IdempotencyKey)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) MarkInstallmentPaid(ctx context.Context, invoice string, number int, paidAmount float64, paidDate time.Time, ref string, fxVariance float64) (bool, error) {
	const query = `
		UPDATE installments
		SET status = $3,
		    paid_amount = $4,
		    paid_date = $5,
		    payment_reference = $6,
		    exchange_rate_variance = $7
		WHERE invoice_id = $1 AND installment_number = $2`

	tag, err := t.tx.Exec(ctx, query, invoice, number,
		string(InstallmentPaid), paidAmount, paidDate, ref, fxVariance)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) ListInstallmentStatuses(ctx context.Context, invoice string) ([]InstallmentStatus, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT status FROM installments WHERE invoice_id = $1`, invoice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []InstallmentStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		statuses = append(statuses, InstallmentStatus(s))
	}
	return statuses, rows.Err()
}

func (t *txRepo) SetInvoiceStatus(ctx context.Context, invoice string, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`,
		invoice, string(status))
	return err
}

func (t *txRepo) GetPaymentExecution(ctx context.Context, id int64) (PaymentExecution, error) {
	const query = `
		SELECT id, invoice_id, installment_number, payment_date, amount_paid,
		       exchange_rate, remittance_reference, COALESCE(bank_reference, ''),
		       idempotency_key, fx_variance, created_at
		FROM payment_executions
		WHERE id = $1`

	var exec PaymentExecution
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&exec.ID, &exec.Invoice, &exec.Installment, &exec.PaymentDate,
		&exec.AmountPaid, &exec.ExchangeRate, &exec.RemittanceReference,
		&exec.BankReference, &exec.IdempotencyKey, &exec.FXVariance, &exec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentExecution{}, fmt.Errorf("%w: execution %d", ErrNotFound, id)
		}
		return PaymentExecution{}, err
	}
	return exec, nil
}

func (t *txRepo) ListInvoiceItems(ctx context.Context, invoice string) ([]InvoiceItem, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT item_name, qty, amount FROM invoice_items WHERE invoice_id = $1 ORDER BY item_name`,
		invoice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var row InvoiceItem
		if err := rows.Scan(&row.Item, &row.Qty, &row.Amount); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

func (t *txRepo) Ledger() LedgerStore {
	return ledger.NewStore(t.tx)
}
