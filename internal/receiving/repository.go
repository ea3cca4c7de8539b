package receiving

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexport-erp/nexport-erp/internal/customs"
	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/platform/db"
)

// TxRepository exposes the mutating receipt operations bound to one
// transaction.
type TxRepository interface {
	ApplyStockDelta(ctx context.Context, item string, physicalDelta, declaredDelta float64) (ledger.StockLevels, error)
	CreateGap(ctx context.Context, gap customs.Gap) (int64, error)
	IncrementReceivedQty(ctx context.Context, po, item string, qty float64) error
	MarkReceiptProcessed(ctx context.Context, shipmentID string) error
}

// Repository persists receiving data in PostgreSQL.
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

// GetShipment loads a shipment header and its ordered lines.
func (r *Repository) GetShipment(ctx context.Context, id string) (Shipment, error) {
	const header = `
		SELECT id, status, is_formal, is_lending, customs_exchange_rate,
		       receipt_processed, received_at
		FROM shipments
		WHERE id = $1`

	var sh Shipment
	var status string
	err := r.pool.QueryRow(ctx, header, id).Scan(
		&sh.ID, &status, &sh.IsFormal, &sh.IsLending,
		&sh.CustomsExchangeRate, &sh.ReceiptProcessed, &sh.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, err
	}
	sh.Status = ShipmentStatus(status)

	const lines = `
		SELECT id, po, item, qty
		FROM shipment_lines
		WHERE shipment_id = $1
		ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, lines, id)
	if err != nil {
		return Shipment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line ShipmentLine
		if err := rows.Scan(&line.ID, &line.PO, &line.Item, &line.Qty); err != nil {
			return Shipment{}, err
		}
		sh.Lines = append(sh.Lines, line)
	}
	return sh, rows.Err()
}

// GetPOInfo reads PO status and invoice linkage for validation.
func (r *Repository) GetPOInfo(ctx context.Context, po string) (POInfo, error) {
	const query = `
		SELECT id, status, COALESCE(invoice_id, '')
		FROM purchase_orders
		WHERE id = $1`

	var info POInfo
	var status string
	err := r.pool.QueryRow(ctx, query, po).Scan(&info.ID, &status, &info.InvoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POInfo{}, errors.New("receiving: purchase order not found: " + po)
		}
		return POInfo{}, err
	}
	info.Status = POStatus(status)
	return info, nil
}

// GetItemMeta reads the item fields needed for validation.
func (r *Repository) GetItemMeta(ctx context.Context, item string) (ItemMeta, error) {
	const query = `
		SELECT name, COALESCE(customs_name, '')
		FROM items
		WHERE name = $1`

	var meta ItemMeta
	err := r.pool.QueryRow(ctx, query, item).Scan(&meta.Name, &meta.CustomsName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemMeta{}, errors.New("receiving: item not found: " + item)
		}
		return ItemMeta{}, err
	}
	return meta, nil
}

// ListPOLines returns received-vs-ordered quantities for one PO. Used by the
// post-commit over-receipt scan.
func (r *Repository) ListPOLines(ctx context.Context, po string) ([]POLine, error) {
	const query = `
		SELECT po, item, quantity, received_qty
		FROM po_lines
		WHERE po = $1
		ORDER BY item ASC`

	rows, err := r.pool.Query(ctx, query, po)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []POLine
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.PO, &line.Item, &line.Quantity, &line.ReceivedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txRepo) ApplyStockDelta(ctx context.Context, item string, physicalDelta, declaredDelta float64) (ledger.StockLevels, error) {
	return ledger.ApplyStockDelta(ctx, ledger.NewStore(t.tx), item, physicalDelta, declaredDelta)
}

func (t *txRepo) CreateGap(ctx context.Context, gap customs.Gap) (int64, error) {
	return customs.NewStore(t.tx).CreateGap(ctx, gap)
}

func (t *txRepo) IncrementReceivedQty(ctx context.Context, po, item string, qty float64) error {
	const query = `
		UPDATE po_lines
		SET received_qty = received_qty + $3
		WHERE po = $1 AND item = $2`

	tag, err := t.tx.Exec(ctx, query, po, item, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("receiving: po line not found: " + po + "/" + item)
	}
	return nil
}

func (t *txRepo) MarkReceiptProcessed(ctx context.Context, shipmentID string) error {
	const query = `
		UPDATE shipments
		SET receipt_processed = TRUE, updated_at = NOW()
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query, shipmentID)
	return err
}
