package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Debtor is one shopkeeper with an open balance.
type Debtor struct {
	ShopkeeperID  int64           `json:"shopkeeper_id"`
	Name          string          `json:"name"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	SalesmanID    *int64          `json:"salesman_id,omitempty"`
}

// Outstanding summarises open shopkeeper debt.
type Outstanding struct {
	Total       decimal.Decimal `json:"total"`
	Shopkeepers int64           `json:"shopkeepers"`
}

// RepositoryPort defines the direct aggregate queries analytics owns.
type RepositoryPort interface {
	TotalOutstanding(ctx context.Context) (Outstanding, error)
	TopDebtors(ctx context.Context, limit int) ([]Debtor, error)
}

// Repository runs analytics aggregates against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TotalOutstanding sums open pending amounts across active shopkeepers.
func (r *Repository) TotalOutstanding(ctx context.Context) (Outstanding, error) {
	var o Outstanding
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(pending_amount), 0),
COUNT(*) FILTER (WHERE pending_amount > 0)
FROM accounts WHERE role='shopkeeper' AND is_active`).Scan(&o.Total, &o.Shopkeepers)
	return o, err
}

// TopDebtors lists shopkeepers with the largest open balances. The joined
// salesman is the one actively assigned, when there is one.
func (r *Repository) TopDebtors(ctx context.Context, limit int) ([]Debtor, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, a.pending_amount, s.salesman_id
FROM accounts a
LEFT JOIN shop_salesman_assignments s ON s.shopkeeper_id = a.id AND s.is_active
WHERE a.role='shopkeeper' AND a.is_active AND a.pending_amount > 0
ORDER BY a.pending_amount DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debtors := []Debtor{}
	for rows.Next() {
		var d Debtor
		if err := rows.Scan(&d.ShopkeeperID, &d.Name, &d.PendingAmount, &d.SalesmanID); err != nil {
			return nil, err
		}
		debtors = append(debtors, d)
	}
	return debtors, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
