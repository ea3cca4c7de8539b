package customs

import (
	"errors"
	"time"
)

// Gap lifecycle statuses.
type GapStatus string

const (
	GapStatusPending  GapStatus = "PENDING"
	GapStatusPartial  GapStatus = "PARTIAL"
	GapStatusResolved GapStatus = "RESOLVED"
)

// Gap is an outstanding declared-vs-physical mismatch for one
// product/shipment/PO combination. Gaps are never deleted; fully consumed
// gaps stay behind as the audit trail.
type Gap struct {
	ID            int64     `json:"id"`
	Product       string    `json:"product"`
	Shipment      string    `json:"shipment"`
	PO            string    `json:"po"`
	CustomsName   string    `json:"customs_name"`
	GapQty        float64   `json:"gap_qty"`
	ResolvedQty   float64   `json:"resolved_qty"`
	Status        GapStatus `json:"status"`
	Deadline      time.Time `json:"deadline"`
	ResolutionRef string    `json:"resolution_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// GapLock is the row shape held under FOR UPDATE during resolution.
type GapLock struct {
	ID          int64
	Product     string
	GapQty      float64
	ResolvedQty float64
}

// ResolveResult reports the outcome of one FIFO resolution call.
type ResolveResult struct {
	ResolvedCount int     `json:"resolved_count"`
	RemainingQty  float64 `json:"remaining_qty"`
	GapsAffected  []int64 `json:"gaps_affected"`
}

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("customs: invalid input")
