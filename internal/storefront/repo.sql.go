package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/platform/db"
)

// Filter narrows store order listings.
type Filter struct {
	Status        Status
	CustomerEmail string
}

// RepositoryPort defines storefront data access used by the service.
type RepositoryPort interface {
	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error
	Insert(ctx context.Context, tx pgx.Tx, o *StoreOrder) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (StoreOrder, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, o *StoreOrder) error
	MarkStockRestored(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
	AdjustWarehouseStock(ctx context.Context, tx pgx.Tx, productID, delta int64) error
	Get(ctx context.Context, id int64) (StoreOrder, error)
	GetByReference(ctx context.Context, reference string) (StoreOrder, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]StoreOrder, int, error)
}

// Repository persists store orders in PostgreSQL.
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

// AdjustWarehouseStock moves warehouse stock under the product row lock.
func (r *Repository) AdjustWarehouseStock(ctx context.Context, tx pgx.Tx, productID, delta int64) error {
	_, err := catalog.AdjustStockTx(ctx, tx, productID, delta)
	return err
}

const orderColumns = `id, reference, customer_name, customer_email, customer_phone, shipping_address,
lines, total_amount, status, stock_restored, created_at, updated_at`

func scanOrder(row pgx.Row) (StoreOrder, error) {
	var o StoreOrder
	var lines []byte
	var phone *string
	err := row.Scan(&o.ID, &o.Reference, &o.CustomerName, &o.CustomerEmail, &phone, &o.ShippingAddress,
		&lines, &o.TotalAmount, &o.Status, &o.StockRestored, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoreOrder{}, ErrNotFound
		}
		return StoreOrder{}, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &o.Lines); err != nil {
			return StoreOrder{}, fmt.Errorf("decode order lines: %w", err)
		}
	}
	if phone != nil {
		o.CustomerPhone = *phone
	}
	return o, nil
}

// Insert writes a store order and fills its id and timestamps.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, o *StoreOrder) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	var phone *string
	if o.CustomerPhone != "" {
		phone = &o.CustomerPhone
	}
	return tx.QueryRow(ctx, `INSERT INTO store_orders
(reference, customer_name, customer_email, customer_phone, shipping_address, lines, total_amount, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		o.Reference, o.CustomerName, o.CustomerEmail, phone, o.ShippingAddress, lines, o.TotalAmount, o.Status).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

// GetForUpdate locks a store order row for a status change.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (StoreOrder, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM store_orders WHERE id=$1 FOR UPDATE`, id))
}

// UpdateStatus persists a status transition.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, o *StoreOrder) error {
	tag, err := tx.Exec(ctx, `UPDATE store_orders SET status=$1, updated_at=NOW() WHERE id=$2`, o.Status, o.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStockRestored flips the restoration guard once. Returns false when the
// guard was already set.
func (r *Repository) MarkStockRestored(ctx context.Context, tx pgx.Tx, id int64) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE store_orders SET stock_restored=TRUE, updated_at=NOW()
WHERE id=$1 AND NOT stock_restored`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a store order by id.
func (r *Repository) Get(ctx context.Context, id int64) (StoreOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM store_orders WHERE id=$1`, id))
}

// GetByReference fetches a store order by its public reference.
func (r *Repository) GetByReference(ctx context.Context, reference string) (StoreOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM store_orders WHERE reference=$1`, reference))
}

// List returns store orders matching the filter, newest first, plus the
// unpaged total.
func (r *Repository) List(ctx context.Context, f Filter, limit, offset int) ([]StoreOrder, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, f.Status)
		argPos++
	}
	if f.CustomerEmail != "" {
		where += fmt.Sprintf(" AND customer_email = $%d", argPos)
		args = append(args, f.CustomerEmail)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM store_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM store_orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []StoreOrder{}
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
