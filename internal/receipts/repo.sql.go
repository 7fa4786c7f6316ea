package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Filter narrows receipt queries.
type Filter struct {
	Kind         Kind
	SalesmanID   int64
	SalesmanIDs  []int64
	ShopkeeperID int64
	From         *time.Time
	To           *time.Time
}

// Summary aggregates receipts in a filter window, with a per-kind split.
type Summary struct {
	TotalReceipts int64            `json:"total_receipts"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	AverageAmount decimal.Decimal  `json:"average_amount"`
	ByKind        []KindSummaryRow `json:"by_type"`
}

// KindSummaryRow is one receipt kind's slice of the summary.
type KindSummaryRow struct {
	Kind        Kind            `json:"receipt_type"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// RepositoryPort defines receipt data access used by the service.
type RepositoryPort interface {
	Insert(ctx context.Context, rc *Receipt) error
	Get(ctx context.Context, id int64) (Receipt, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Receipt, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (Receipt, error)
	Summarize(ctx context.Context, f Filter) (Summary, error)
}

// Repository persists receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const receiptColumns = `id, receipt_type, order_id, recovery_id, shopkeeper_id, salesman_id,
receipt_content, total_amount, status, printed_by, printed_at, notes, created_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	var notes *string
	err := row.Scan(&rc.ID, &rc.Kind, &rc.OrderID, &rc.RecoveryID, &rc.ShopkeeperID, &rc.SalesmanID,
		&rc.Content, &rc.TotalAmount, &rc.Status, &rc.PrintedBy, &rc.PrintedAt, &notes, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}
	if notes != nil {
		rc.Notes = *notes
	}
	return rc, nil
}

// Insert writes a receipt and fills its id and creation time.
func (r *Repository) Insert(ctx context.Context, rc *Receipt) error {
	var notes *string
	if rc.Notes != "" {
		notes = &rc.Notes
	}
	return r.pool.QueryRow(ctx, `INSERT INTO receipts
(receipt_type, order_id, recovery_id, shopkeeper_id, salesman_id, receipt_content, total_amount,
status, printed_by, printed_at, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id, created_at`,
		rc.Kind, rc.OrderID, rc.RecoveryID, rc.ShopkeeperID, rc.SalesmanID, rc.Content,
		rc.TotalAmount, rc.Status, rc.PrintedBy, rc.PrintedAt, notes).
		Scan(&rc.ID, &rc.CreatedAt)
}

// Get fetches one receipt by id.
func (r *Repository) Get(ctx context.Context, id int64) (Receipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id=$1`, id))
}

func receiptWhere(f Filter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND "+clause, len(args)+1)
		args = append(args, v)
	}
	if f.Kind != "" {
		add("receipt_type = $%d", f.Kind)
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
		add("printed_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("printed_at <= $%d", *f.To)
	}
	return where, args
}

// List returns receipts matching the filter, newest print first, plus the
// unpaged total.
func (r *Repository) List(ctx context.Context, f Filter, limit, offset int) ([]Receipt, int, error) {
	where, args := receiptWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM receipts `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM receipts %s ORDER BY printed_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		receiptColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	receipts := []Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, total, rows.Err()
}

// UpdateStatus sets the receipt status and returns the updated row.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) (Receipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `UPDATE receipts SET status=$1
WHERE id=$2 RETURNING `+receiptColumns, status, id))
}

// Summarize aggregates receipts in the filter, overall and per kind.
func (r *Repository) Summarize(ctx context.Context, f Filter) (Summary, error) {
	where, args := receiptWhere(f)

	s := Summary{ByKind: []KindSummaryRow{}}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(AVG(total_amount), 0)
FROM receipts `+where, args...).
		Scan(&s.TotalReceipts, &s.TotalAmount, &s.AverageAmount)
	if err != nil {
		return Summary{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT receipt_type, COUNT(*), COALESCE(SUM(total_amount), 0)
FROM receipts `+where+` GROUP BY receipt_type ORDER BY receipt_type`, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var row KindSummaryRow
		if err := rows.Scan(&row.Kind, &row.Count, &row.TotalAmount); err != nil {
			return Summary{}, err
		}
		s.ByKind = append(s.ByKind, row)
	}
	return s, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
