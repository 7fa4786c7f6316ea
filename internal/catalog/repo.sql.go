package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snackline/snackline/internal/platform/db"
)

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID *int64
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// RepositoryPort defines catalog data access used by the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	CreateProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeactivateProduct(ctx context.Context, id int64) error
	AdjustStock(ctx context.Context, productID, delta int64) (int64, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (int64, error)
	UpdateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, id int64) error
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, description, category_id, price, image_url, stock, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.Price, &p.ImageURL,
		&p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProduct fetches a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// ListProducts returns products matching the filter plus the unpaged total.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1

	if filter.ActiveOnly {
		where += " AND is_active"
	}
	if filter.CategoryID != nil {
		where += fmt.Sprintf(" AND category_id = $%d", argPos)
		args = append(args, *filter.CategoryID)
		argPos++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY name LIMIT $%d OFFSET $%d`,
		productColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, description, category_id, price, image_url, stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW()) RETURNING id`,
		p.Name, p.Description, p.CategoryID, p.Price, p.ImageURL, p.Stock).Scan(&id)
	return id, err
}

// UpdateProduct updates mutable product fields. Stock is excluded; stock
// moves only through AdjustStock or the ledger's transactional path.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name=$1, description=$2, category_id=$3, price=$4, image_url=$5, is_active=$6, updated_at=NOW() WHERE id=$7`,
		p.Name, p.Description, p.CategoryID, p.Price, p.ImageURL, p.IsActive, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateProduct soft-disables a product.
func (r *Repository) DeactivateProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock applies a warehouse stock delta under a row lock, refusing to
// go negative. Returns the stock after the adjustment.
func (r *Repository) AdjustStock(ctx context.Context, productID, delta int64) (int64, error) {
	var after int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		updated, err := AdjustStockTx(ctx, tx, productID, delta)
		after = updated
		return err
	})
	return after, err
}

// AdjustStockTx is the transactional form of AdjustStock, shared with the
// ledger repository so stock moves commit with the entries that caused them.
func AdjustStockTx(ctx context.Context, tx pgx.Tx, productID, delta int64) (int64, error) {
	var current int64
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	after := current + delta
	if after < 0 {
		return current, &StockError{ProductID: productID, Available: current, Requested: -delta}
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock=$1, updated_at=NOW() WHERE id=$2`, after, productID); err != nil {
		return 0, err
	}
	return after, nil
}

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetCategory fetches a category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `SELECT id, name, slug, description, created_at, updated_at FROM categories WHERE id=$1`, id))
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, description, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, slug, description, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING id`, c.Name, c.Slug, c.Description).Scan(&id)
	return id, err
}

// UpdateCategory updates a category.
func (r *Repository) UpdateCategory(ctx context.Context, c Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name=$1, slug=$2, description=$3, updated_at=NOW() WHERE id=$4`,
		c.Name, c.Slug, c.Description, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category; products keep a NULL category.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
