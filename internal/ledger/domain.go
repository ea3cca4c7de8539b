package ledger

import (
	"errors"
	"time"
)

// ChangeType categorises a price history entry.
type ChangeType string

const (
	ChangeTypeAdjustment  ChangeType = "ADJUSTMENT"
	ChangeTypePurchase    ChangeType = "PURCHASE"
	ChangeTypeRevaluation ChangeType = "REVALUATION"
)

// CostType identifies which cost track a history entry belongs to.
type CostType string

const (
	// CostTypeLanded tracks the landed (physical) cost.
	CostTypeLanded CostType = "LANDED"
	// CostTypeDeclared tracks the customs-declared cost.
	CostTypeDeclared CostType = "DECLARED"
)

// Item is the ledger view of a catalog item. Quantity and cost fields are
// mutated only through delta operations, never overwritten wholesale.
type Item struct {
	Name          string    `json:"name"`
	CustomsName   string    `json:"customs_name"`
	StockPhysical float64   `json:"stock_physical"`
	StockDeclared float64   `json:"stock_declared"`
	CostLanded    float64   `json:"cost_landed"`
	CostDeclared  float64   `json:"cost_declared"`
	ReorderLevel  float64   `json:"reorder_level"`
	ReorderQty    float64   `json:"reorder_qty"`
	Retired       bool      `json:"retired"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PriceHistory is an append-only cost change record.
type PriceHistory struct {
	ID              int64
	ItemName        string
	Date            time.Time
	Type            ChangeType
	CostType        CostType
	UnitPrice       float64
	Source          string
	ExchangeRate    float64
	ForeignAmount   float64
	IsTemporaryRate bool
}

// StockLevels is the quantity snapshot returned by a delta update.
type StockLevels struct {
	Physical float64
	Declared float64
}

// CostLevels is the cost snapshot returned by a delta update.
type CostLevels struct {
	Landed   float64
	Declared float64
}

var (
	// ErrItemNotFound indicates the item row is missing.
	ErrItemNotFound = errors.New("ledger: item not found")
	// ErrNegativeStock indicates a delta would drive a quantity below zero.
	ErrNegativeStock = errors.New("ledger: stock would become negative")
)
