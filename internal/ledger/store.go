package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so ledger operations
// can join a transaction opened by another module.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store performs atomic ledger mutations against items.
type Store struct {
	db DBTX
}

// NewStore constructs a Store over a pool or an open transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// ApplyStockDelta mutates stock quantities in a single atomic statement and
// returns the resulting levels. Deltas are speculative: callers must treat a
// negative result as a validation failure and roll back the enclosing
// transaction.
func (s *Store) ApplyStockDelta(ctx context.Context, item string, physicalDelta, declaredDelta float64) (StockLevels, error) {
	const query = `
		UPDATE items
		SET stock_physical = stock_physical + $2,
		    stock_declared = stock_declared + $3,
		    updated_at = NOW()
		WHERE name = $1
		RETURNING stock_physical, stock_declared`

	var levels StockLevels
	err := s.db.QueryRow(ctx, query, item, physicalDelta, declaredDelta).Scan(&levels.Physical, &levels.Declared)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevels{}, fmt.Errorf("%w: %s", ErrItemNotFound, item)
		}
		return StockLevels{}, err
	}
	return levels, nil
}

// ApplyCostDelta mutates cost fields in a single atomic statement and
// returns the resulting costs.
func (s *Store) ApplyCostDelta(ctx context.Context, item string, landedDelta, declaredDelta float64) (CostLevels, error) {
	const query = `
		UPDATE items
		SET cost_landed = cost_landed + $2,
		    cost_declared = cost_declared + $3,
		    updated_at = NOW()
		WHERE name = $1
		RETURNING cost_landed, cost_declared`

	var costs CostLevels
	err := s.db.QueryRow(ctx, query, item, landedDelta, declaredDelta).Scan(&costs.Landed, &costs.Declared)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostLevels{}, fmt.Errorf("%w: %s", ErrItemNotFound, item)
		}
		return CostLevels{}, err
	}
	return costs, nil
}

// InsertPriceHistory appends a price history row for the item.
func (s *Store) InsertPriceHistory(ctx context.Context, entry PriceHistory) error {
	const query = `
		INSERT INTO price_history (
			item_name, recorded_on, change_type, cost_type, unit_price,
			source, exchange_rate, foreign_amount, is_temporary_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	recordedOn := entry.Date
	if recordedOn.IsZero() {
		recordedOn = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		entry.ItemName,
		recordedOn,
		string(entry.Type),
		string(entry.CostType),
		entry.UnitPrice,
		entry.Source,
		entry.ExchangeRate,
		entry.ForeignAmount,
		entry.IsTemporaryRate,
	)
	return err
}

// GetItem loads a single item row.
func (s *Store) GetItem(ctx context.Context, name string) (Item, error) {
	const query = `
		SELECT name, customs_name, stock_physical, stock_declared,
		       cost_landed, cost_declared, reorder_level, reorder_qty,
		       retired, updated_at
		FROM items
		WHERE name = $1`

	var item Item
	err := s.db.QueryRow(ctx, query, name).Scan(
		&item.Name,
		&item.CustomsName,
		&item.StockPhysical,
		&item.StockDeclared,
		&item.CostLanded,
		&item.CostDeclared,
		&item.ReorderLevel,
		&item.ReorderQty,
		&item.Retired,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, name)
		}
		return Item{}, err
	}
	return item, nil
}
