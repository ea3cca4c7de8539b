package receiving

import (
	"errors"
	"time"
)

// Shipment lifecycle statuses.
type ShipmentStatus string

const (
	ShipmentStatusDraft     ShipmentStatus = "DRAFT"
	ShipmentStatusSubmitted ShipmentStatus = "SUBMITTED"
	ShipmentStatusCancelled ShipmentStatus = "CANCELLED"
)

// Purchase order statuses eligible for receipt.
type POStatus string

const (
	POStatusOrdered   POStatus = "ORDERED"
	POStatusConfirmed POStatus = "CONFIRMED"
	POStatusShipped   POStatus = "SHIPPED"
	POStatusReceived  POStatus = "RECEIVED"
)

// receivablePOStatuses is the fixed allowed set for receipt validation.
var receivablePOStatuses = map[POStatus]bool{
	POStatusOrdered:   true,
	POStatusConfirmed: true,
	POStatusShipped:   true,
	POStatusReceived:  true,
}

// Shipment is read by the processor; the only field it writes back is the
// receipt-processed flag.
type Shipment struct {
	ID                  string
	Status              ShipmentStatus
	IsFormal            bool
	IsLending           bool
	CustomsExchangeRate float64
	ReceiptProcessed    bool
	ReceivedAt          time.Time
	Lines               []ShipmentLine
}

// ShipmentLine references a PO and the received quantity for one item.
type ShipmentLine struct {
	ID   int64
	PO   string
	Item string
	Qty  float64
}

// POInfo is the purchase order metadata needed for pre-validation.
type POInfo struct {
	ID        string
	Status    POStatus
	InvoiceID string
}

// ItemMeta carries the item fields receipt processing depends on.
type ItemMeta struct {
	Name        string
	CustomsName string
}

// POLine tracks cumulative received quantity against the ordered quantity.
type POLine struct {
	PO          string
	Item        string
	Quantity    float64
	ReceivedQty float64
}

// ReceivedItem is one committed receipt line in the result payload.
type ReceivedItem struct {
	Item   string  `json:"item"`
	PO     string  `json:"po"`
	Qty    float64 `json:"qty"`
	Formal bool    `json:"formal"`
	GapID  int64   `json:"gap_id,omitempty"`
}

// OverReceiptLine is one over-received item on a PO.
type OverReceiptLine struct {
	Item    string  `json:"item"`
	OverQty float64 `json:"over_qty"`
}

// OverReceipt reports an over-receipt hand-off for one PO, including whether
// the downstream handler failed.
type OverReceipt struct {
	PO            string            `json:"po"`
	Lines         []OverReceiptLine `json:"lines"`
	HandlerFailed bool              `json:"handler_failed"`
	FailureDetail string            `json:"failure_detail,omitempty"`
}

// ProcessResult is the receipt processing outcome. Success is true only when
// the receipt committed and no PO's over-receipt hand-off failed.
type ProcessResult struct {
	Success        bool           `json:"success"`
	AlreadyExisted bool           `json:"already_existed"`
	Items          []ReceivedItem `json:"items"`
	OverReceipts   []OverReceipt  `json:"over_receipts,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Message        string         `json:"message,omitempty"`
}

var (
	// ErrValidation indicates the shipment failed pre-validation.
	ErrValidation = errors.New("receiving: invalid shipment")
	// ErrNotFound indicates the shipment is missing.
	ErrNotFound = errors.New("receiving: shipment not found")
	// ErrReceiptFailed is the opaque failure returned when the mutating
	// phase rolls back; detail stays in the log under the correlation ref.
	ErrReceiptFailed = errors.New("receiving: receipt failed")
)
