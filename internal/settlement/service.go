package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInstallments(ctx context.Context, invoice string) ([]Installment, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	ListDueReminders(ctx context.Context, dueOn time.Time) ([]ReminderRow, error)
}

// LedgerStore is the slice of the stock ledger the revaluation phase needs.
// Satisfied by *ledger.Store bound to the settlement transaction.
type LedgerStore interface {
	ApplyCostDelta(ctx context.Context, item string, landedDelta, declaredDelta float64) (ledger.CostLevels, error)
	InsertPriceHistory(ctx context.Context, entry ledger.PriceHistory) error
}

// Sender delivers reminder mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs schedule generation, two-phase payment recording and the
// daily overdue/reminder sweeps.
type Service struct {
	repo     RepositoryPort
	sender   Sender
	audit    AuditPort
	settings shared.Settings
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, sender Sender, audit AuditPort, settings shared.Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sender: sender, audit: audit, settings: settings, logger: logger}
}

// GenerateSchedule creates the installment rows for an invoice from its
// payment terms. A second call on a populated invoice is a no-op that
// returns the existing schedule. The total splits equally across
// installments by simple division.
func (s *Service) GenerateSchedule(ctx context.Context, invoiceID string) ([]Installment, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice required", ErrValidation)
	}

	var generated bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		count, err := tx.CountInstallments(ctx, invoiceID)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		offsets, ok := termOffsets[inv.Terms]
		if !ok {
			return fmt.Errorf("%w: %q on %s", ErrUnknownTerms, inv.Terms, invoiceID)
		}
		perInstallment := inv.TotalAmount / float64(len(offsets))
		for i, offset := range offsets {
			row := Installment{
				InvoiceID: invoiceID,
				Number:    i + 1,
				DueDate:   inv.InvoiceDate.AddDate(0, 0, offset),
				Amount:    perInstallment,
			}
			if err := tx.InsertInstallment(ctx, row); err != nil {
				return err
			}
		}
		generated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if generated {
		s.recordAudit(ctx, "SCHEDULE_GENERATE", invoiceID, map[string]any{"invoice": invoiceID})
	}
	return s.repo.ListInstallments(ctx, invoiceID)
}

// RecordPayment records one remittance against an installment. All writes
// run under savepoint payment_phase1 so a failure leaves no trace of the
// attempt. A repeat remittance reference fails with ErrDuplicatePayment.
// Revaluation is not part of this call; see TriggerRevaluation.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (PaymentExecution, error) {
	if input.Invoice == "" || input.RemittanceReference == "" {
		return PaymentExecution{}, fmt.Errorf("%w: invoice and remittance reference required", ErrValidation)
	}
	if input.Installment < 1 {
		return PaymentExecution{}, fmt.Errorf("%w: installment number must be at least 1", ErrValidation)
	}
	if input.AmountPaid <= 0 {
		return PaymentExecution{}, fmt.Errorf("%w: amount paid must be greater than 0", ErrValidation)
	}

	var exec PaymentExecution
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Savepoint(ctx, "payment_phase1", func() error {
			inv, err := tx.GetInvoice(ctx, input.Invoice)
			if err != nil {
				return err
			}
			invoiceRate := inv.ActualExchangeRate
			if invoiceRate == 0 {
				invoiceRate = 1.0
			}
			fxVariance := (input.ExchangeRate - invoiceRate) * input.AmountPaid

			key := IdempotencyKey(input.Invoice, input.Installment, input.RemittanceReference)
			exists, err := tx.PaymentExecutionExists(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s", ErrDuplicatePayment, key)
			}

			exec = PaymentExecution{
				Invoice:             input.Invoice,
				Installment:         input.Installment,
				PaymentDate:         input.PaymentDate,
				AmountPaid:          input.AmountPaid,
				ExchangeRate:        input.ExchangeRate,
				RemittanceReference: input.RemittanceReference,
				BankReference:       input.BankReference,
				IdempotencyKey:      key,
				FXVariance:          fxVariance,
			}
			exec.ID, err = tx.InsertPaymentExecution(ctx, exec)
			if err != nil {
				return err
			}

			updated, err := tx.MarkInstallmentPaid(ctx, input.Invoice, input.Installment,
				input.AmountPaid, input.PaymentDate, input.RemittanceReference, fxVariance)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: %s #%d", ErrInstallmentNotFound, input.Invoice, input.Installment)
			}

			return syncInvoiceStatus(ctx, tx, input.Invoice)
		})
	})
	if err != nil {
		if db.IsRetryable(err) {
			return PaymentExecution{}, fmt.Errorf("%w: payment for %s", db.ErrRetryable, input.Invoice)
		}
		return PaymentExecution{}, err
	}

	s.recordAudit(ctx, "PAYMENT_RECORD", input.Invoice, map[string]any{
		"installment":    input.Installment,
		"amount_paid":    input.AmountPaid,
		"remittance_ref": input.RemittanceReference,
		"fx_variance":    exec.FXVariance,
	})
	return exec, nil
}

// syncInvoiceStatus recomputes the aggregate status from the schedule rows.
// All paid moves the invoice to Paid, at least one paid to Partial, none
// paid leaves the status untouched.
func syncInvoiceStatus(ctx context.Context, tx TxRepository, invoice string) error {
	statuses, err := tx.ListInstallmentStatuses(ctx, invoice)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}
	paid := 0
	for _, st := range statuses {
		if st == InstallmentPaid {
			paid++
		}
	}
	switch {
	case paid == len(statuses):
		return tx.SetInvoiceStatus(ctx, invoice, InvoicePaid)
	case paid > 0:
		return tx.SetInvoiceStatus(ctx, invoice, InvoicePartial)
	}
	return nil
}

// TriggerRevaluation runs the post-payment cost revaluation under savepoint
// payment_phase2. The execution's fx variance is apportioned across the
// invoice lines by amount and pushed into landed cost with a REVALUATION
// price history entry per item. Failure rolls back only this phase and is
// logged, never returned, so the recorded payment stays durable.
func (s *Service) TriggerRevaluation(ctx context.Context, invoiceID string, executionID int64) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Savepoint(ctx, "payment_phase2", func() error {
			return revalueOnPayment(ctx, tx, invoiceID, executionID)
		})
	})
	if err != nil {
		s.logger.Error("revaluation failed",
			slog.String("invoice", invoiceID),
			slog.Int64("execution_id", executionID),
			slog.Any("error", err))
	}
}

func revalueOnPayment(ctx context.Context, tx TxRepository, invoiceID string, executionID int64) error {
	exec, err := tx.GetPaymentExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Invoice != invoiceID {
		return fmt.Errorf("%w: execution %d belongs to %s", ErrValidation, executionID, exec.Invoice)
	}
	if exec.FXVariance == 0 {
		return nil
	}

	items, err := tx.ListInvoiceItems(ctx, invoiceID)
	if err != nil {
		return err
	}
	var total float64
	for _, line := range items {
		total += line.Amount
	}
	if total <= 0 {
		return nil
	}

	store := tx.Ledger()
	for _, line := range items {
		share := exec.FXVariance * line.Amount / total
		costs, err := store.ApplyCostDelta(ctx, line.Item, share, 0)
		if err != nil {
			return err
		}
		entry := ledger.PriceHistory{
			ItemName:      line.Item,
			Date:          exec.PaymentDate,
			Type:          ledger.ChangeTypeRevaluation,
			CostType:      ledger.CostTypeLanded,
			UnitPrice:     costs.Landed,
			Source:        exec.RemittanceReference,
			ExchangeRate:  exec.ExchangeRate,
			ForeignAmount: exec.AmountPaid,
		}
		if err := store.InsertPriceHistory(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// MarkOverdueInstallments flips past-due pending installments to Overdue
// in one batch statement.
func (s *Service) MarkOverdueInstallments(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("installments marked overdue", slog.Int64("count", count))
	}
	return count, nil
}

// SendPaymentReminders mails counterparties for pending installments due in
// 7, 3 and 1 days. Rows without an email are skipped silently; a failed
// send is logged and the batch continues.
func (s *Service) SendPaymentReminders(ctx context.Context) (int, error) {
	if s.sender == nil {
		return 0, nil
	}
	offsets := s.settings.ReminderOffsets
	if len(offsets) == 0 {
		offsets = shared.DefaultSettings().ReminderOffsets
	}

	now := time.Now().UTC()
	printer := message.NewPrinter(language.English)
	sent := 0
	for _, offset := range offsets {
		rows, err := s.repo.ListDueReminders(ctx, now.AddDate(0, 0, offset))
		if err != nil {
			return sent, err
		}
		for _, row := range rows {
			if row.Email == "" {
				continue
			}
			subject := fmt.Sprintf("Payment reminder: invoice %s installment %d due %s",
				row.Invoice, row.Installment, row.DueDate.Format("2006-01-02"))
			body := printer.Sprintf(
				"Installment %d of invoice %s (%s %.2f of %s %.2f total) is due on %s. Please arrange payment.",
				row.Installment, row.Invoice,
				row.Currency, row.Amount, row.Currency, row.TotalAmount,
				row.DueDate.Format("2006-01-02"))
			if err := s.sender.Send(ctx, row.Email, subject, body); err != nil {
				s.logger.Warn("reminder send failed",
					slog.String("invoice", row.Invoice),
					slog.Int("installment", row.Installment),
					slog.String("to", row.Email),
					slog.Any("error", err))
				continue
			}
			sent++
		}
	}
	return sent, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "settlement:" + action,
		Entity:   "invoice",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
