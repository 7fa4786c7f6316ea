package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PartyRow is the locked view of an account inside a ledger transaction.
type PartyRow struct {
	ID            int64
	Role          string
	PendingAmount decimal.Decimal
	AssignedBy    *int64
	IsActive      bool
}

// RecoveryFilter narrows recovery list queries.
type RecoveryFilter struct {
	ShopkeeperID  int64
	SalesmanID    int64
	SalesmanIDs   []int64
	Status        RecoveryStatus
	Type          RecoveryType
	PaymentMethod PaymentMethod
	From          *time.Time
	To            *time.Time
}

// DistributionFilter narrows distribution list queries.
type DistributionFilter struct {
	ProductID int64
	FromID    int64
	ToID      int64
	PartyID   int64
	PartyIDs  []int64
	Type      DistributionType
	Status    DistributionStatus
	From      *time.Time
	To        *time.Time
}

// RecoveryStats aggregates completed, non-reversed recoveries.
type RecoveryStats struct {
	TotalRecoveries  int64           `json:"total_recoveries"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalItemsValue  decimal.Decimal `json:"total_items_value"`
	TotalNetPayment  decimal.Decimal `json:"total_net_payment"`
	PaymentOnly      int64           `json:"payment_only"`
	PaymentWithItems int64           `json:"payment_with_items"`
}

// DistributionStats aggregates distributions by status.
type DistributionStats struct {
	TotalDistributions int64           `json:"total_distributions"`
	TotalQuantity      int64           `json:"total_quantity"`
	TotalValue         decimal.Decimal `json:"total_value"`
	Pending            int64           `json:"pending"`
	Delivered          int64           `json:"delivered"`
	Returned           int64           `json:"returned"`
}

// MonthlyPoint is one month of recovery volume for trend reporting.
type MonthlyPoint struct {
	Year      int             `json:"year"`
	Month     time.Month      `json:"month"`
	Count     int64           `json:"count"`
	Collected decimal.Decimal `json:"collected"`
}

// TxRepository exposes the row-locked mutations available inside one
// ledger transaction. Every method runs on the supplied pgx.Tx so a
// balance write, a stock move and the entry insert commit or roll back
// together.
type TxRepository interface {
	// GetAccountForUpdate locks the account row for the duration of the
	// transaction. Concurrent recoveries against the same shopkeeper
	// serialize on this lock.
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, id int64) (PartyRow, error)
	SetPendingAmount(ctx context.Context, tx pgx.Tx, accountID int64, amount decimal.Decimal) error

	// AdjustWarehouseStock locks the product row and applies delta,
	// refusing to take stock below zero.
	AdjustWarehouseStock(ctx context.Context, tx pgx.Tx, productID int64, delta int64) error

	// SalesmanOutbound sums the quantities a salesman has committed
	// downstream for a product: delivered or pending salesman_to_shopkeeper
	// distributions plus items of completed non-reversed recoveries.
	SalesmanOutbound(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error)
	// SalesmanInbound sums delivered admin_to_salesman quantities.
	SalesmanInbound(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error)

	InsertDistribution(ctx context.Context, tx pgx.Tx, d *Distribution) error
	InsertRecovery(ctx context.Context, tx pgx.Tx, r *RecoveryRecord) error

	GetRecoveryForUpdate(ctx context.Context, tx pgx.Tx, id int64) (RecoveryRecord, error)
	GetDistributionForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Distribution, error)

	// MarkRecoveryReversed stamps reversed_at exactly once. It returns
	// ErrAlreadyReversed when the stamp is already set.
	MarkRecoveryReversed(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error
	UpdateDistributionStatus(ctx context.Context, tx pgx.Tx, d *Distribution) error
	// MarkDistributionStockReversed flips the stock_reversed guard once.
	MarkDistributionStockReversed(ctx context.Context, tx pgx.Tx, id int64) (bool, error)

	UpdateRecoveryAnnotations(ctx context.Context, tx pgx.Tx, id int64, status *RecoveryStatus, notes, location *string) (RecoveryRecord, error)
}

// Repository is the read side plus the transaction runner.
type Repository interface {
	TxRepository

	WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error

	GetRecovery(ctx context.Context, id int64) (RecoveryRecord, error)
	ListRecoveries(ctx context.Context, f RecoveryFilter, limit, offset int) ([]RecoveryRecord, int, error)
	GetDistribution(ctx context.Context, id int64) (Distribution, error)
	ListDistributions(ctx context.Context, f DistributionFilter, limit, offset int) ([]Distribution, int, error)

	RecoveryStats(ctx context.Context, f RecoveryFilter) (RecoveryStats, error)
	DistributionStats(ctx context.Context, f DistributionFilter) (DistributionStats, error)
	MonthlyRecoveryTrend(ctx context.Context, f RecoveryFilter, months int) ([]MonthlyPoint, error)

	// PendingBalanceDrift recomputes each shopkeeper's expected pending
	// amount from the entry history and reports rows whose stored value
	// disagrees. Used by the integrity scan job.
	PendingBalanceDrift(ctx context.Context) ([]DriftRow, error)
}

// DriftRow is one shopkeeper whose stored pending amount disagrees with
// the amount derived from the entry history.
type DriftRow struct {
	ShopkeeperID int64           `json:"shopkeeper_id"`
	Stored       decimal.Decimal `json:"stored"`
	Derived      decimal.Decimal `json:"derived"`
}
