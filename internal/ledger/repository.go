package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexport-erp/nexport-erp/internal/platform/db"
)

// TxRepository exposes ledger operations bound to one transaction.
type TxRepository interface {
	ApplyStockDelta(ctx context.Context, item string, physicalDelta, declaredDelta float64) (StockLevels, error)
	ApplyCostDelta(ctx context.Context, item string, landedDelta, declaredDelta float64) (CostLevels, error)
	InsertPriceHistory(ctx context.Context, entry PriceHistory) error
	GetItem(ctx context.Context, name string) (Item, error)
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// GetItem reads an item outside any transaction.
func (r *Repository) GetItem(ctx context.Context, name string) (Item, error) {
	return NewStore(r.pool).GetItem(ctx, name)
}

// ListPriceHistory returns recorded price changes, newest first.
func (r *Repository) ListPriceHistory(ctx context.Context, item string, limit int) ([]PriceHistory, error) {
	const query = `
		SELECT id, item_name, recorded_on, change_type, cost_type, unit_price,
		       source, exchange_rate, foreign_amount, is_temporary_rate
		FROM price_history
		WHERE item_name = $1
		ORDER BY recorded_on DESC, id DESC
		LIMIT $2`

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, item, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PriceHistory
	for rows.Next() {
		var e PriceHistory
		var changeType, costType string
		if err := rows.Scan(&e.ID, &e.ItemName, &e.Date, &changeType, &costType,
			&e.UnitPrice, &e.Source, &e.ExchangeRate, &e.ForeignAmount, &e.IsTemporaryRate); err != nil {
			return nil, err
		}
		e.Type = ChangeType(changeType)
		e.CostType = CostType(costType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
