package customs

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
)

// TxRepository exposes gap operations bound to one transaction.
type TxRepository interface {
	// PendingGapsForUpdate locks open gaps for the customs name with
	// row-level exclusive locks, ordered oldest-created-first.
	PendingGapsForUpdate(ctx context.Context, customsName string) ([]GapLock, error)
	// ApplyGapResolution adds qty to resolved_qty and records status and
	// declaration reference.
	ApplyGapResolution(ctx context.Context, gapID int64, qty float64, status GapStatus, resolutionRef string) error
	// ApplyDeclaredDelta moves the declared stock track for one item.
	ApplyDeclaredDelta(ctx context.Context, item string, delta float64) error
}

// Store performs gap persistence over a pool or an open transaction.
type Store struct {
	db ledger.DBTX
}

// NewStore constructs a Store.
func NewStore(db ledger.DBTX) *Store {
	return &Store{db: db}
}

// CreateGap inserts a new pending gap and returns its id. Intended to run
// inside the receipt transaction.
func (s *Store) CreateGap(ctx context.Context, gap Gap) (int64, error) {
	const query = `
		INSERT INTO customs_gaps (
			product, shipment, po, customs_name, gap_qty, resolved_qty,
			status, deadline, created_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, NOW())
		RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, query,
		gap.Product, gap.Shipment, gap.PO, gap.CustomsName,
		gap.GapQty, string(GapStatusPending), gap.Deadline,
	).Scan(&id)
	return id, err
}

// PendingGapsForUpdate implements the FIFO lock acquisition.
func (s *Store) PendingGapsForUpdate(ctx context.Context, customsName string) ([]GapLock, error) {
	const query = `
		SELECT id, product, gap_qty, resolved_qty
		FROM customs_gaps
		WHERE customs_name = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC, id ASC
		FOR UPDATE`

	rows, err := s.db.Query(ctx, query, customsName, string(GapStatusPending), string(GapStatusPartial))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []GapLock
	for rows.Next() {
		var g GapLock
		if err := rows.Scan(&g.ID, &g.Product, &g.GapQty, &g.ResolvedQty); err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// ApplyGapResolution advances a locked gap by the consumed quantity.
func (s *Store) ApplyGapResolution(ctx context.Context, gapID int64, qty float64, status GapStatus, resolutionRef string) error {
	const query = `
		UPDATE customs_gaps
		SET resolved_qty = resolved_qty + $2,
		    status = $3,
		    resolution_ref = $4,
		    updated_at = NOW()
		WHERE id = $1`

	_, err := s.db.Exec(ctx, query, gapID, qty, string(status), resolutionRef)
	return err
}

// ApplyDeclaredDelta moves declared stock through the ledger, keeping its
// non-negativity contract.
func (s *Store) ApplyDeclaredDelta(ctx context.Context, item string, delta float64) error {
	_, err := ledger.ApplyStockDelta(ctx, ledger.NewStore(s.db), item, 0, delta)
	return err
}

// Repository persists customs gaps in PostgreSQL.
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

// ListOpenGaps returns pending/partial gaps, optionally filtered by customs
// name, oldest first.
func (r *Repository) ListOpenGaps(ctx context.Context, customsName string, limit int) ([]Gap, error) {
	query := `
		SELECT id, product, shipment, po, customs_name, gap_qty, resolved_qty,
		       status, deadline, COALESCE(resolution_ref, ''), created_at
		FROM customs_gaps
		WHERE status IN ($1, $2)`
	args := []any{string(GapStatusPending), string(GapStatusPartial)}
	if customsName != "" {
		query += ` AND customs_name = $3`
		args = append(args, customsName)
	}
	query += ` ORDER BY created_at ASC`
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []Gap
	for rows.Next() {
		var g Gap
		var status string
		var deadline *time.Time
		if err := rows.Scan(&g.ID, &g.Product, &g.Shipment, &g.PO, &g.CustomsName,
			&g.GapQty, &g.ResolvedQty, &status, &deadline, &g.ResolutionRef, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Status = GapStatus(status)
		if deadline != nil {
			g.Deadline = *deadline
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
