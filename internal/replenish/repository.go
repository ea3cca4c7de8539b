package replenish

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists material requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListReorderCandidates returns items with a reorder level set whose
// physical stock has fallen below it.
func (r *Repository) ListReorderCandidates(ctx context.Context) ([]ReorderCandidate, error) {
	const query = `
		SELECT name, stock_physical, reorder_level, reorder_qty
		FROM items
		WHERE reorder_level > 0
		  AND stock_physical < reorder_level
		  AND NOT retired
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []ReorderCandidate
	for rows.Next() {
		var c ReorderCandidate
		if err := rows.Scan(&c.Item, &c.StockPhysical, &c.ReorderLevel, &c.ReorderQty); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// HasOpenRequest reports whether an Open material request already exists
// for the item.
func (r *Repository) HasOpenRequest(ctx context.Context, item string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM material_requests WHERE item_name = $1 AND status = $2)`,
		item, string(StatusOpen)).Scan(&exists)
	return exists, err
}

// CreateRequest inserts an Open material request and returns its id.
func (r *Repository) CreateRequest(ctx context.Context, req MaterialRequest) (int64, error) {
	const query = `
		INSERT INTO material_requests (
			item_name, required_qty, current_stock, reorder_level, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := r.pool.QueryRow(ctx, query,
		req.Item, req.RequiredQty, req.CurrentStock, req.ReorderLevel,
		string(StatusOpen), createdAt).Scan(&id)
	return id, err
}

// ListOpenRequests returns open material requests, newest first.
func (r *Repository) ListOpenRequests(ctx context.Context, limit int) ([]MaterialRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, item_name, required_qty, current_stock, reorder_level, status, created_at
		FROM material_requests
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT ` + strconv.Itoa(limit)

	rows, err := r.pool.Query(ctx, query, string(StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []MaterialRequest
	for rows.Next() {
		var req MaterialRequest
		var status string
		if err := rows.Scan(&req.ID, &req.Item, &req.RequiredQty, &req.CurrentStock,
			&req.ReorderLevel, &status, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Status = RequestStatus(status)
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
