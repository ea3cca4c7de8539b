package receiving

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NoticeRecorder is the default OverReceiptHandler. It files one notice row
// per over-received PO line for procurement to review.
type NoticeRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewNoticeRecorder constructs NoticeRecorder.
func NewNoticeRecorder(pool *pgxpool.Pool, logger *slog.Logger) *NoticeRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoticeRecorder{pool: pool, logger: logger}
}

// HandleOverReceipt records the over-received lines. It runs after the
// receipt transaction has committed; a failure here must not undo the
// receipt, so the caller treats errors as advisory.
func (n *NoticeRecorder) HandleOverReceipt(ctx context.Context, po, shipment string, lines []OverReceiptLine) error {
	const query = `
		INSERT INTO over_receipt_notices (
			po, shipment, item_name, over_qty, created_at
		) VALUES ($1, $2, $3, $4, $5)`

	now := time.Now().UTC()
	for _, line := range lines {
		if _, err := n.pool.Exec(ctx, query,
			po, shipment, line.Item, line.OverQty, now); err != nil {
			return err
		}
		n.logger.Warn("over-receipt recorded",
			slog.String("po", po),
			slog.String("item", line.Item),
			slog.Float64("over_qty", line.OverQty))
	}
	return nil
}
