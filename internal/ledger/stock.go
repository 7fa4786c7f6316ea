package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/shared"
)

// Salesman stock is never stored. It is derived from the entry history so a
// reversal restores availability without a compensating stock write:
//
//	available = Σ delivered admin_to_salesman inbound
//	          − Σ pending or delivered salesman_to_shopkeeper outbound
//	          − Σ items of completed, non-reversed recoveries
//
// The salesman's account row is locked before the sums run. The tier has no
// row of its own to conflict on, so without the lock two transactions could
// read the same sums, insert disjoint entries and both commit, overselling
// the tier.
func salesmanAvailableTx(ctx context.Context, tx pgx.Tx, repo TxRepository, salesmanID, productID int64) (int64, error) {
	if _, err := repo.GetAccountForUpdate(ctx, tx, salesmanID); err != nil {
		return 0, err
	}
	inbound, err := repo.SalesmanInbound(ctx, tx, salesmanID, productID)
	if err != nil {
		return 0, err
	}
	outbound, err := repo.SalesmanOutbound(ctx, tx, salesmanID, productID)
	if err != nil {
		return 0, err
	}
	return inbound - outbound, nil
}

// AvailabilityTx reports derived salesman availability inside the caller's
// transaction. The orders module uses it to reserve against a salesman's
// tier atomically with its own writes.
func (c *BalanceCalculator) AvailabilityTx(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error) {
	return salesmanAvailableTx(ctx, tx, c.repo, salesmanID, productID)
}

// DebitPending adds amount to a shopkeeper's pending balance inside the
// caller's transaction, locking the account row. Order delivery is the only
// event that grows the debt.
func (c *BalanceCalculator) DebitPending(ctx context.Context, tx pgx.Tx, shopkeeperID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: debit amount cannot be negative", errValidation)
	}
	shop, err := c.repo.GetAccountForUpdate(ctx, tx, shopkeeperID)
	if err != nil {
		return decimal.Zero, err
	}
	if shared.Role(shop.Role) != shared.RoleShopkeeper {
		return decimal.Zero, ErrWrongRole
	}
	newPending := shop.PendingAmount.Add(amount)
	if err := c.repo.SetPendingAmount(ctx, tx, shopkeeperID, newPending); err != nil {
		return decimal.Zero, err
	}
	return newPending, nil
}

// SalesmanAvailability reports the derived availability of one product at a
// salesman's tier.
func (c *BalanceCalculator) SalesmanAvailability(ctx context.Context, actor shared.Principal, salesmanID, productID int64) (int64, error) {
	if err := c.requireSalesmanScope(ctx, actor, salesmanID); err != nil {
		return 0, err
	}
	var available int64
	err := c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		available, err = salesmanAvailableTx(ctx, tx, c.repo, salesmanID, productID)
		return err
	})
	return available, err
}
