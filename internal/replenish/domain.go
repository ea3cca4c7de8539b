package replenish

import (
	"errors"
	"time"
)

// RequestStatus tracks a material request through procurement.
type RequestStatus string

const (
	StatusOpen      RequestStatus = "OPEN"
	StatusOrdered   RequestStatus = "ORDERED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// MaterialRequest asks procurement to restock one item.
type MaterialRequest struct {
	ID           int64         `json:"id"`
	Item         string        `json:"item"`
	RequiredQty  float64       `json:"required_qty"`
	CurrentStock float64       `json:"current_stock"`
	ReorderLevel float64       `json:"reorder_level"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReorderCandidate is an item below its reorder level.
type ReorderCandidate struct {
	Item          string
	StockPhysical float64
	ReorderLevel  float64
	ReorderQty    float64
}

// ErrNotFound indicates a missing material request.
var ErrNotFound = errors.New("replenish: material request not found")
