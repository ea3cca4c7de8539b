package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItemStock reads total stock levels for one item.
func (r *Repository) GetItemStock(ctx context.Context, item string) (physical, declared float64, err error) {
	const query = `
		SELECT stock_physical, stock_declared
		FROM items
		WHERE name = $1`

	err = r.pool.QueryRow(ctx, query, item).Scan(&physical, &declared)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, errors.New("reservation: item not found: " + item)
		}
		return 0, 0, err
	}
	return physical, declared, nil
}

// SumActiveReservations aggregates reserved quantities for one item.
func (r *Repository) SumActiveReservations(ctx context.Context, item string) (physical, declared float64, err error) {
	const query = `
		SELECT COALESCE(SUM(reserved_physical), 0), COALESCE(SUM(reserved_declared), 0)
		FROM stock_reservations
		WHERE item = $1 AND status = $2`

	err = r.pool.QueryRow(ctx, query, item, string(StatusActive)).Scan(&physical, &declared)
	return physical, declared, err
}

// CreateReservation inserts an Active reservation and returns its id.
func (r *Repository) CreateReservation(ctx context.Context, res Reservation) (int64, error) {
	const query = `
		INSERT INTO stock_reservations (
			item, sales_order, reserved_physical, reserved_declared, status, created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		res.Item, res.SalesOrder, res.ReservedPhysical, res.ReservedDeclared, string(StatusActive),
	).Scan(&id)
	return id, err
}

// GetReservation loads one reservation row.
func (r *Repository) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	const query = `
		SELECT id, item, sales_order, reserved_physical, reserved_declared, status, created_at
		FROM stock_reservations
		WHERE id = $1`

	var res Reservation
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&res.ID, &res.Item, &res.SalesOrder,
		&res.ReservedPhysical, &res.ReservedDeclared, &status, &res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	res.Status = Status(status)
	return res, nil
}

// SetStatus transitions a reservation out of Active. The status predicate
// keeps the write idempotent when two releases race.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) (bool, error) {
	const query = `
		UPDATE stock_reservations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, id, string(status), string(StatusActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
