package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Filter narrows sales record queries.
type Filter struct {
	SalesmanID   int64
	SalesmanIDs  []int64
	ShopkeeperID int64
	From         *time.Time
	To           *time.Time
}

// Stats aggregates sales in a filter window.
type Stats struct {
	TotalSales       int64           `json:"total_sales"`
	TotalQuantity    int64           `json:"total_quantity"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	AverageSaleValue decimal.Decimal `json:"average_sale_value"`
}

// MonthlyPoint is one calendar month of sales volume.
type MonthlyPoint struct {
	Year    int             `json:"year"`
	Month   time.Month      `json:"month"`
	Sales   int64           `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
}

// ProfitLoss is the company-wide earnings summary.
type ProfitLoss struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	SalesCount      int64           `json:"sales_count"`
	ProfitMargin    decimal.Decimal `json:"profit_margin"`
}

// RepositoryPort defines sales data access used by the service.
type RepositoryPort interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Record, int, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Record, error)
	Stats(ctx context.Context, f Filter) (Stats, error)
	MonthlyStats(ctx context.Context, f Filter) ([]MonthlyPoint, error)
	ProfitLoss(ctx context.Context, f Filter) (ProfitLoss, error)
}

// Repository persists sales records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, salesman_id, shopkeeper_id, product_id, quantity, unit_price,
total_amount, commission, profit, sale_date, payment_status, payment_method, notes,
created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var notes *string
	err := row.Scan(&rec.ID, &rec.SalesmanID, &rec.ShopkeeperID, &rec.ProductID, &rec.Quantity,
		&rec.UnitPrice, &rec.TotalAmount, &rec.Commission, &rec.Profit, &rec.SaleDate,
		&rec.PaymentStatus, &rec.PaymentMethod, &notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if notes != nil {
		rec.Notes = *notes
	}
	return rec, nil
}

// Insert writes a sales record and fills its id and timestamps.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	var notes *string
	if rec.Notes != "" {
		notes = &rec.Notes
	}
	return r.pool.QueryRow(ctx, `INSERT INTO sales_records
(salesman_id, shopkeeper_id, product_id, quantity, unit_price, total_amount, commission, profit,
sale_date, payment_status, payment_method, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		rec.SalesmanID, rec.ShopkeeperID, rec.ProductID, rec.Quantity, rec.UnitPrice,
		rec.TotalAmount, rec.Commission, rec.Profit, rec.SaleDate, rec.PaymentStatus,
		rec.PaymentMethod, notes).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// Get fetches one sales record by id.
func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM sales_records WHERE id=$1`, id))
}

func salesWhere(f Filter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND "+clause, len(args)+1)
		args = append(args, v)
	}
	if f.SalesmanID != 0 {
		add("salesman_id = $%d", f.SalesmanID)
	}
	if len(f.SalesmanIDs) > 0 {
		add("salesman_id = ANY($%d)", f.SalesmanIDs)
	}
	if f.ShopkeeperID != 0 {
		add("shopkeeper_id = $%d", f.ShopkeeperID)
	}
	if f.From != nil {
		add("sale_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("sale_date <= $%d", *f.To)
	}
	return where, args
}

// List returns sales records matching the filter, newest first, plus the
// unpaged total.
func (r *Repository) List(ctx context.Context, f Filter, limit, offset int) ([]Record, int, error) {
	where, args := salesWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM sales_records %s ORDER BY sale_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// UpdatePaymentStatus sets the payment status and returns the updated row.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `UPDATE sales_records SET payment_status=$1, updated_at=NOW()
WHERE id=$2 RETURNING `+recordColumns, status, id))
}

// Stats aggregates sales records in the filter.
func (r *Repository) Stats(ctx context.Context, f Filter) (Stats, error) {
	where, args := salesWhere(f)

	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(quantity), 0),
COALESCE(SUM(total_amount), 0), COALESCE(SUM(commission), 0), COALESCE(SUM(profit), 0),
COALESCE(AVG(total_amount), 0)
FROM sales_records `+where, args...).
		Scan(&s.TotalSales, &s.TotalQuantity, &s.TotalRevenue, &s.TotalCommission, &s.TotalProfit, &s.AverageSaleValue)
	return s, err
}

// MonthlyStats buckets sales by calendar month, newest first.
func (r *Repository) MonthlyStats(ctx context.Context, f Filter) ([]MonthlyPoint, error) {
	where, args := salesWhere(f)

	rows, err := r.pool.Query(ctx, `SELECT
EXTRACT(YEAR FROM sale_date)::int, EXTRACT(MONTH FROM sale_date)::int,
COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(profit), 0)
FROM sales_records `+where+`
GROUP BY 1, 2 ORDER BY 1 DESC, 2 DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []MonthlyPoint{}
	for rows.Next() {
		var p MonthlyPoint
		var month int
		if err := rows.Scan(&p.Year, &month, &p.Sales, &p.Revenue, &p.Profit); err != nil {
			return nil, err
		}
		p.Month = time.Month(month)
		points = append(points, p)
	}
	return points, rows.Err()
}

// ProfitLoss sums revenue, commission and profit across the filter window.
// The margin is computed in Go so a zero-revenue window divides safely.
func (r *Repository) ProfitLoss(ctx context.Context, f Filter) (ProfitLoss, error) {
	where, args := salesWhere(f)

	var pl ProfitLoss
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0),
COALESCE(SUM(commission), 0), COALESCE(SUM(profit), 0), COUNT(*)
FROM sales_records `+where, args...).
		Scan(&pl.TotalRevenue, &pl.TotalCommission, &pl.TotalProfit, &pl.SalesCount)
	if err != nil {
		return ProfitLoss{}, err
	}
	if pl.TotalRevenue.IsPositive() {
		pl.ProfitMargin = pl.TotalProfit.Div(pl.TotalRevenue).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return pl, nil
}

var _ RepositoryPort = (*Repository)(nil)
