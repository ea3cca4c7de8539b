package settlement

import (
	"errors"
	"fmt"
	"time"
)

// PaymentTerms enumerates supported term tables.
type PaymentTerms string

const (
	TermsImmediate    PaymentTerms = "IMMEDIATE"
	TermsNet30        PaymentTerms = "NET_30"
	TermsNet60        PaymentTerms = "NET_60"
	TermsNet90        PaymentTerms = "NET_90"
	TermsInstallment3 PaymentTerms = "INSTALLMENT_3"
	TermsInstallment6 PaymentTerms = "INSTALLMENT_6"
)

// termOffsets maps payment terms to due-date offsets in days from the
// invoice date. Split plans divide the total equally across the offsets;
// rounding drift on the split is accepted as-is.
var termOffsets = map[PaymentTerms][]int{
	TermsImmediate:    {0},
	TermsNet30:        {30},
	TermsNet60:        {60},
	TermsNet90:        {90},
	TermsInstallment3: {30, 60, 90},
	TermsInstallment6: {30, 60, 90, 120, 150, 180},
}

// Installment statuses. Pending moves to Paid or Overdue; Overdue may still
// move to Paid.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
	InstallmentPaid    InstallmentStatus = "PAID"
)

// Invoice aggregate statuses.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePartial InvoiceStatus = "PARTIAL"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// Invoice is the settlement view of an invoice.
type Invoice struct {
	ID                 string
	Terms              PaymentTerms
	Status             InvoiceStatus
	TotalAmount        float64
	Currency           string
	InvoiceDate        time.Time
	ActualExchangeRate float64
	Entity             string
	EntityEmail        string
}

// Installment is one payment schedule row. Rows are generated once per
// invoice and mutated only by the settlement engine.
type Installment struct {
	InvoiceID        string            `json:"invoice_id"`
	Number           int               `json:"installment_number"`
	DueDate          time.Time         `json:"due_date"`
	Amount           float64           `json:"amount"`
	PaidAmount       float64           `json:"paid_amount"`
	Status           InstallmentStatus `json:"status"`
	PaidDate         *time.Time        `json:"paid_date,omitempty"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	FXVariance       float64           `json:"exchange_rate_variance"`
}

// PaymentExecution records one actual remittance. Immutable once created;
// the derived idempotency key is unique.
type PaymentExecution struct {
	ID                  int64     `json:"id"`
	Invoice             string    `json:"invoice"`
	Installment         int       `json:"installment"`
	PaymentDate         time.Time `json:"payment_date"`
	AmountPaid          float64   `json:"amount_paid"`
	ExchangeRate        float64   `json:"exchange_rate"`
	RemittanceReference string    `json:"remittance_reference"`
	BankReference       string    `json:"bank_reference,omitempty"`
	IdempotencyKey      string    `json:"idempotency_key"`
	FXVariance          float64   `json:"fx_variance"`
	CreatedAt           time.Time `json:"created_at"`
}

// IdempotencyKey derives the uniqueness token for a remittance.
func IdempotencyKey(invoice string, installment int, remittanceRef string) string {
	return fmt.Sprintf("%s|%d|%s", invoice, installment, remittanceRef)
}

// RecordPaymentInput describes a payment to record.
type RecordPaymentInput struct {
	Invoice             string
	Installment         int
	PaymentDate         time.Time
	AmountPaid          float64
	ExchangeRate        float64
	RemittanceReference string
	BankReference       string
}

// InvoiceItem is one priced line on an invoice, used to apportion
// revaluation deltas.
type InvoiceItem struct {
	Item   string
	Qty    float64
	Amount float64
}

// ReminderRow is one pending installment due at a reminder threshold.
type ReminderRow struct {
	Invoice     string
	Installment int
	DueDate     time.Time
	Amount      float64
	TotalAmount float64
	Currency    string
	Entity      string
	Email       string
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("settlement: invalid input")
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("settlement: invoice not found")
	// ErrInstallmentNotFound indicates the installment number is not on the
	// invoice schedule.
	ErrInstallmentNotFound = errors.New("settlement: installment not found")
	// ErrDuplicatePayment indicates the remittance was already recorded.
	ErrDuplicatePayment = errors.New("settlement: duplicate payment execution")
	// ErrUnknownTerms indicates terms outside the fixed table.
	ErrUnknownTerms = errors.New("settlement: unknown payment terms")
)
