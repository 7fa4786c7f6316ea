package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/platform/db"
)

// PGRepository persists ledger entries in PostgreSQL.
type PGRepository struct {
	pool       *pgxpool.Pool
	txAttempts int
}

// NewPGRepository constructs PGRepository. attempts bounds the retry loop
// for serialization failures.
func NewPGRepository(pool *pgxpool.Pool, attempts int) *PGRepository {
	if attempts < 1 {
		attempts = 1
	}
	return &PGRepository{pool: pool, txAttempts: attempts}
}

// WithTxRetry runs fn in a repeatable-read transaction, retrying bounded
// times on serialization failures.
func (r *PGRepository) WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithTxRetry(ctx, r.pool, r.txAttempts, fn)
}

// GetAccountForUpdate locks the account row until the transaction ends.
func (r *PGRepository) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, id int64) (PartyRow, error) {
	var p PartyRow
	var pending decimal.NullDecimal
	err := tx.QueryRow(ctx, `SELECT id, role, pending_amount, assigned_by, is_active FROM accounts WHERE id=$1 FOR UPDATE`, id).
		Scan(&p.ID, &p.Role, &pending, &p.AssignedBy, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartyRow{}, ErrAccountNotFound
		}
		return PartyRow{}, err
	}
	if pending.Valid {
		p.PendingAmount = pending.Decimal
	}
	return p, nil
}

// SetPendingAmount writes the shopkeeper balance inside the transaction.
func (r *PGRepository) SetPendingAmount(ctx context.Context, tx pgx.Tx, accountID int64, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET pending_amount=$1, updated_at=NOW() WHERE id=$2`, amount, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AdjustWarehouseStock moves warehouse stock under the product row lock.
func (r *PGRepository) AdjustWarehouseStock(ctx context.Context, tx pgx.Tx, productID, delta int64) error {
	_, err := catalog.AdjustStockTx(ctx, tx, productID, delta)
	var stockErr *catalog.StockError
	if errors.As(err, &stockErr) {
		return &InsufficientStockError{
			Tier:      "warehouse",
			ProductID: stockErr.ProductID,
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		}
	}
	return err
}

// SalesmanInbound sums delivered admin_to_salesman quantities for a product.
func (r *PGRepository) SalesmanInbound(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM distributions
WHERE to_id=$1 AND product_id=$2 AND distribution_type='admin_to_salesman' AND status='delivered'`,
		salesmanID, productID).Scan(&total)
	return total, err
}

// SalesmanOutbound sums quantities the salesman has committed downstream:
// pending or delivered salesman_to_shopkeeper distributions plus items of
// completed, non-reversed recoveries.
func (r *PGRepository) SalesmanOutbound(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error) {
	var distributed int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM distributions
WHERE from_id=$1 AND product_id=$2 AND distribution_type='salesman_to_shopkeeper' AND status IN ('pending','delivered')`,
		salesmanID, productID).Scan(&distributed)
	if err != nil {
		return 0, err
	}

	var recovered int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM((item->>'quantity')::bigint), 0)
FROM recoveries, jsonb_array_elements(items) AS item
WHERE salesman_id=$1 AND (item->>'product_id')::bigint=$2
  AND status='completed' AND reversed_at IS NULL`,
		salesmanID, productID).Scan(&recovered)
	if err != nil {
		return 0, err
	}

	var ordered int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM((item->>'quantity')::bigint), 0)
FROM shop_orders, jsonb_array_elements(items) AS item
WHERE salesman_id=$1 AND (item->>'product_id')::bigint=$2 AND status <> 'cancelled'`,
		salesmanID, productID).Scan(&ordered)
	if err != nil {
		return 0, err
	}
	return distributed + recovered + ordered, nil
}

const distributionColumns = `id, product_id, from_id, to_id, quantity, unit_price, total_amount,
distribution_type, status, notes, delivered_at, returned_at, return_reason, stock_reversed, created_at, updated_at`

func scanDistribution(row pgx.Row) (Distribution, error) {
	var d Distribution
	var notes, reason *string
	err := row.Scan(&d.ID, &d.ProductID, &d.FromID, &d.ToID, &d.Quantity, &d.UnitPrice, &d.TotalAmount,
		&d.Type, &d.Status, &notes, &d.DeliveredAt, &d.ReturnedAt, &reason, &d.StockReversed, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Distribution{}, ErrDistributionNotFound
		}
		return Distribution{}, err
	}
	if notes != nil {
		d.Notes = *notes
	}
	if reason != nil {
		d.ReturnReason = *reason
	}
	return d, nil
}

// InsertDistribution writes a distribution and fills its id and timestamps.
func (r *PGRepository) InsertDistribution(ctx context.Context, tx pgx.Tx, d *Distribution) error {
	return tx.QueryRow(ctx, `INSERT INTO distributions
(product_id, from_id, to_id, quantity, unit_price, total_amount, distribution_type, status, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		d.ProductID, d.FromID, d.ToID, d.Quantity, d.UnitPrice, d.TotalAmount, d.Type, d.Status, nullIfEmpty(d.Notes)).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

const recoveryColumns = `id, shopkeeper_id, salesman_id, recovery_type, amount_collected, payment_method,
items, items_value, net_payment, previous_pending_amount, new_pending_amount, status, notes,
recovery_date, recovery_location, receipt_number, bank_details, reversed_at, created_at, updated_at`

func scanRecovery(row pgx.Row) (RecoveryRecord, error) {
	var rec RecoveryRecord
	var items, bank []byte
	var notes, location, receipt *string
	err := row.Scan(&rec.ID, &rec.ShopkeeperID, &rec.SalesmanID, &rec.Type, &rec.AmountCollected, &rec.PaymentMethod,
		&items, &rec.ItemsValue, &rec.NetPayment, &rec.PreviousPendingAmount, &rec.NewPendingAmount, &rec.Status, &notes,
		&rec.RecoveryDate, &location, &receipt, &bank, &rec.ReversedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecoveryRecord{}, ErrRecoveryNotFound
		}
		return RecoveryRecord{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return RecoveryRecord{}, fmt.Errorf("decode recovery items: %w", err)
		}
	}
	if len(bank) > 0 {
		rec.BankDetails = &BankDetails{}
		if err := json.Unmarshal(bank, rec.BankDetails); err != nil {
			return RecoveryRecord{}, fmt.Errorf("decode bank details: %w", err)
		}
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if location != nil {
		rec.RecoveryLocation = *location
	}
	if receipt != nil {
		rec.ReceiptNumber = *receipt
	}
	return rec, nil
}

// InsertRecovery writes a recovery and fills its id and timestamps.
func (r *PGRepository) InsertRecovery(ctx context.Context, tx pgx.Tx, rec *RecoveryRecord) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("encode recovery items: %w", err)
	}
	var bank []byte
	if rec.BankDetails != nil {
		if bank, err = json.Marshal(rec.BankDetails); err != nil {
			return fmt.Errorf("encode bank details: %w", err)
		}
	}
	return tx.QueryRow(ctx, `INSERT INTO recoveries
(shopkeeper_id, salesman_id, recovery_type, amount_collected, payment_method, items, items_value, net_payment,
 previous_pending_amount, new_pending_amount, status, notes, recovery_date, recovery_location, receipt_number,
 bank_details, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		rec.ShopkeeperID, rec.SalesmanID, rec.Type, rec.AmountCollected, rec.PaymentMethod, items,
		rec.ItemsValue, rec.NetPayment, rec.PreviousPendingAmount, rec.NewPendingAmount, rec.Status,
		nullIfEmpty(rec.Notes), rec.RecoveryDate, nullIfEmpty(rec.RecoveryLocation), nullIfEmpty(rec.ReceiptNumber), bank).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetRecoveryForUpdate locks a recovery row for reversal.
func (r *PGRepository) GetRecoveryForUpdate(ctx context.Context, tx pgx.Tx, id int64) (RecoveryRecord, error) {
	return scanRecovery(tx.QueryRow(ctx, `SELECT `+recoveryColumns+` FROM recoveries WHERE id=$1 FOR UPDATE`, id))
}

// GetDistributionForUpdate locks a distribution row for a status change.
func (r *PGRepository) GetDistributionForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Distribution, error) {
	return scanDistribution(tx.QueryRow(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE id=$1 FOR UPDATE`, id))
}

// MarkRecoveryReversed stamps reversed_at once; the WHERE clause makes a
// second reversal a no-op surfaced as ErrAlreadyReversed.
func (r *PGRepository) MarkRecoveryReversed(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE recoveries SET reversed_at=$1, status='cancelled', updated_at=NOW()
WHERE id=$2 AND reversed_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

// UpdateDistributionStatus persists a status transition and its timestamps.
func (r *PGRepository) UpdateDistributionStatus(ctx context.Context, tx pgx.Tx, d *Distribution) error {
	tag, err := tx.Exec(ctx, `UPDATE distributions SET status=$1, delivered_at=$2, returned_at=$3, return_reason=$4, updated_at=NOW() WHERE id=$5`,
		d.Status, d.DeliveredAt, d.ReturnedAt, nullIfEmpty(d.ReturnReason), d.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDistributionNotFound
	}
	return nil
}

// MarkDistributionStockReversed flips the stock_reversed guard. Returns
// false when the guard was already set, so the caller skips the credit.
func (r *PGRepository) MarkDistributionStockReversed(ctx context.Context, tx pgx.Tx, id int64) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE distributions SET stock_reversed=TRUE, updated_at=NOW()
WHERE id=$1 AND NOT stock_reversed`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateRecoveryAnnotations changes only the mutable recovery fields.
func (r *PGRepository) UpdateRecoveryAnnotations(ctx context.Context, tx pgx.Tx, id int64, status *RecoveryStatus, notes, location *string) (RecoveryRecord, error) {
	set := "updated_at=NOW()"
	args := []any{}
	argPos := 1
	if status != nil {
		set += fmt.Sprintf(", status=$%d", argPos)
		args = append(args, *status)
		argPos++
	}
	if notes != nil {
		set += fmt.Sprintf(", notes=$%d", argPos)
		args = append(args, nullIfEmpty(*notes))
		argPos++
	}
	if location != nil {
		set += fmt.Sprintf(", recovery_location=$%d", argPos)
		args = append(args, nullIfEmpty(*location))
		argPos++
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE recoveries SET %s WHERE id=$%d RETURNING %s`, set, argPos, recoveryColumns)
	return scanRecovery(tx.QueryRow(ctx, query, args...))
}

// GetRecovery fetches a recovery by id.
func (r *PGRepository) GetRecovery(ctx context.Context, id int64) (RecoveryRecord, error) {
	return scanRecovery(r.pool.QueryRow(ctx, `SELECT `+recoveryColumns+` FROM recoveries WHERE id=$1`, id))
}

// GetDistribution fetches a distribution by id.
func (r *PGRepository) GetDistribution(ctx context.Context, id int64) (Distribution, error) {
	return scanDistribution(r.pool.QueryRow(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE id=$1`, id))
}

func recoveryWhere(f RecoveryFilter) (string, []any) {
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
	if f.Type != "" {
		add("recovery_type = $%d", f.Type)
	}
	if f.PaymentMethod != "" {
		add("payment_method = $%d", f.PaymentMethod)
	}
	if f.From != nil {
		add("recovery_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("recovery_date <= $%d", *f.To)
	}
	return where, args
}

// ListRecoveries returns recoveries matching the filter, newest first, plus
// the unpaged total.
func (r *PGRepository) ListRecoveries(ctx context.Context, f RecoveryFilter, limit, offset int) ([]RecoveryRecord, int, error) {
	where, args := recoveryWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recoveries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM recoveries %s ORDER BY recovery_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		recoveryColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recoveries := []RecoveryRecord{}
	for rows.Next() {
		rec, err := scanRecovery(rows)
		if err != nil {
			return nil, 0, err
		}
		recoveries = append(recoveries, rec)
	}
	return recoveries, total, rows.Err()
}

func distributionWhere(f DistributionFilter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1
	add := func(clause string, v any) {
		where += fmt.Sprintf(" AND "+clause, argPos)
		args = append(args, v)
		argPos++
	}
	if f.ProductID != 0 {
		add("product_id = $%d", f.ProductID)
	}
	if f.FromID != 0 {
		add("from_id = $%d", f.FromID)
	}
	if f.ToID != 0 {
		add("to_id = $%d", f.ToID)
	}
	if f.PartyID != 0 {
		where += fmt.Sprintf(" AND (from_id = $%d OR to_id = $%d)", argPos, argPos)
		args = append(args, f.PartyID)
		argPos++
	}
	if len(f.PartyIDs) > 0 {
		where += fmt.Sprintf(" AND (from_id = ANY($%d) OR to_id = ANY($%d))", argPos, argPos)
		args = append(args, f.PartyIDs)
		argPos++
	}
	if f.Type != "" {
		add("distribution_type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	return where, args
}

// ListDistributions returns distributions matching the filter, newest first,
// plus the unpaged total.
func (r *PGRepository) ListDistributions(ctx context.Context, f DistributionFilter, limit, offset int) ([]Distribution, int, error) {
	where, args := distributionWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM distributions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM distributions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		distributionColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	distributions := []Distribution{}
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, 0, err
		}
		distributions = append(distributions, d)
	}
	return distributions, total, rows.Err()
}

// RecoveryStats aggregates completed, non-reversed recoveries in the filter.
func (r *PGRepository) RecoveryStats(ctx context.Context, f RecoveryFilter) (RecoveryStats, error) {
	where, args := recoveryWhere(f)
	where += " AND status='completed' AND reversed_at IS NULL"

	var s RecoveryStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
COALESCE(SUM(amount_collected), 0), COALESCE(SUM(items_value), 0), COALESCE(SUM(net_payment), 0),
COUNT(*) FILTER (WHERE recovery_type='payment_only'),
COUNT(*) FILTER (WHERE recovery_type='payment_with_items')
FROM recoveries `+where, args...).
		Scan(&s.TotalRecoveries, &s.TotalCollected, &s.TotalItemsValue, &s.TotalNetPayment, &s.PaymentOnly, &s.PaymentWithItems)
	return s, err
}

// DistributionStats aggregates distributions by status.
func (r *PGRepository) DistributionStats(ctx context.Context, f DistributionFilter) (DistributionStats, error) {
	where, args := distributionWhere(f)

	var s DistributionStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(total_amount), 0),
COUNT(*) FILTER (WHERE status='pending'),
COUNT(*) FILTER (WHERE status='delivered'),
COUNT(*) FILTER (WHERE status='returned')
FROM distributions `+where, args...).
		Scan(&s.TotalDistributions, &s.TotalQuantity, &s.TotalValue, &s.Pending, &s.Delivered, &s.Returned)
	return s, err
}

// MonthlyRecoveryTrend buckets completed recoveries by calendar month for
// the trailing window.
func (r *PGRepository) MonthlyRecoveryTrend(ctx context.Context, f RecoveryFilter, months int) ([]MonthlyPoint, error) {
	if months <= 0 {
		months = 6
	}
	where, args := recoveryWhere(f)
	where += " AND status='completed' AND reversed_at IS NULL"
	where += fmt.Sprintf(" AND recovery_date >= date_trunc('month', NOW()) - INTERVAL '%d months'", months-1)

	rows, err := r.pool.Query(ctx, `SELECT
EXTRACT(YEAR FROM recovery_date)::int, EXTRACT(MONTH FROM recovery_date)::int,
COUNT(*), COALESCE(SUM(amount_collected), 0)
FROM recoveries `+where+`
GROUP BY 1, 2 ORDER BY 1, 2`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []MonthlyPoint{}
	for rows.Next() {
		var p MonthlyPoint
		var month int
		if err := rows.Scan(&p.Year, &month, &p.Count, &p.Collected); err != nil {
			return nil, err
		}
		p.Month = time.Month(month)
		points = append(points, p)
	}
	return points, rows.Err()
}

// PendingBalanceDrift compares each shopkeeper's stored pending amount
// against a chronological replay of delivered orders, recoveries and
// reversals. Reversed recoveries contribute both their original event and
// the restoring one, the same two writes the live paths made.
func (r *PGRepository) PendingBalanceDrift(ctx context.Context) ([]DriftRow, error) {
	rows, err := r.pool.Query(ctx, `
SELECT shopkeeper_id, kind, amount FROM (
    SELECT shopkeeper_id, 'order' AS kind, total_amount AS amount, delivered_at AS at
    FROM shop_orders WHERE status='delivered'
    UNION ALL
    SELECT shopkeeper_id, 'recovery', net_payment, recovery_date
    FROM recoveries WHERE status='completed' OR reversed_at IS NOT NULL
    UNION ALL
    SELECT shopkeeper_id, 'reversal', net_payment, reversed_at
    FROM recoveries WHERE reversed_at IS NOT NULL
) events
ORDER BY shopkeeper_id, at, kind`)
	if err != nil {
		return nil, err
	}

	histories := map[int64][]pendingEvent{}
	for rows.Next() {
		var shopkeeperID int64
		var ev pendingEvent
		if err := rows.Scan(&shopkeeperID, &ev.Kind, &ev.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		histories[shopkeeperID] = append(histories[shopkeeperID], ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stored, err := r.pool.Query(ctx, `SELECT id, pending_amount FROM accounts WHERE role='shopkeeper'`)
	if err != nil {
		return nil, err
	}
	defer stored.Close()

	drift := []DriftRow{}
	for stored.Next() {
		var d DriftRow
		var amount decimal.NullDecimal
		if err := stored.Scan(&d.ShopkeeperID, &amount); err != nil {
			return nil, err
		}
		if amount.Valid {
			d.Stored = amount.Decimal
		}
		d.Derived = replayPendingAmount(histories[d.ShopkeeperID])
		if !d.Stored.Equal(d.Derived) {
			drift = append(drift, d)
		}
	}
	return drift, stored.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PGRepository)(nil)
