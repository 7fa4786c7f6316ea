package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snackline/snackline/internal/platform/db"
)

// Filter narrows order list queries.
type Filter struct {
	ShopkeeperID int64
	SalesmanID   int64
	SalesmanIDs  []int64
	Status       Status
}

// RepositoryPort defines order data access used by the service.
type RepositoryPort interface {
	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error
	Insert(ctx context.Context, tx pgx.Tx, o *Order) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, o *Order) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Order, int, error)
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool       *pgxpool.Pool
	txAttempts int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, attempts int) *Repository {
	if attempts < 1 {
		attempts = 1
	}
	return &Repository{pool: pool, txAttempts: attempts}
}

// WithTxRetry runs fn in a repeatable-read transaction with bounded retries.
func (r *Repository) WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithTxRetry(ctx, r.pool, r.txAttempts, fn)
}

const orderColumns = `id, shopkeeper_id, salesman_id, items, total_amount, status, notes,
delivered_at, cancelled_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var items []byte
	var notes *string
	err := row.Scan(&o.ID, &o.ShopkeeperID, &o.SalesmanID, &items, &o.TotalAmount, &o.Status, &notes,
		&o.DeliveredAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return Order{}, fmt.Errorf("decode order items: %w", err)
		}
	}
	if notes != nil {
		o.Notes = *notes
	}
	return o, nil
}

// Insert writes an order and fills its id and timestamps.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	var notes *string
	if o.Notes != "" {
		notes = &o.Notes
	}
	return tx.QueryRow(ctx, `INSERT INTO shop_orders
(shopkeeper_id, salesman_id, items, total_amount, status, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		o.ShopkeeperID, o.SalesmanID, items, o.TotalAmount, o.Status, notes).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

// GetForUpdate locks an order row for a status change.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM shop_orders WHERE id=$1 FOR UPDATE`, id))
}

// UpdateStatus persists a status transition and its timestamps.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, o *Order) error {
	tag, err := tx.Exec(ctx, `UPDATE shop_orders SET status=$1, delivered_at=$2, cancelled_at=$3, updated_at=NOW() WHERE id=$4`,
		o.Status, o.DeliveredAt, o.CancelledAt, o.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches an order by id.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM shop_orders WHERE id=$1`, id))
}

// List returns orders matching the filter, newest first, plus the unpaged
// total.
func (r *Repository) List(ctx context.Context, f Filter, limit, offset int) ([]Order, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1
	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND "+clause, argPos)
		args = append(args, v)
		argPos++
	}
	if f.ShopkeeperID != 0 {
		add("shopkeeper_id = $%d", f.ShopkeeperID)
	}
	if f.SalesmanID != 0 {
		add("salesman_id = $%d", f.SalesmanID)
	}
	if len(f.SalesmanIDs) > 0 {
		add("salesman_id = ANY($%d)", f.SalesmanIDs)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shop_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM shop_orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
