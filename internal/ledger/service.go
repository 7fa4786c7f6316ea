package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/shared"
)

// AccountDirectory is the slice of the accounts service the ledger needs.
type AccountDirectory interface {
	FindByID(ctx context.Context, id int64) (*accounts.Account, error)
	ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error)
	SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error)
}

// AssignmentChecker answers whether a salesman currently serves a shopkeeper.
type AssignmentChecker interface {
	ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error)
	AssignedShopkeepers(ctx context.Context, salesmanID int64) ([]accounts.Account, error)
}

// ReceiptEnqueuer hands a recorded recovery to the background mailer.
type ReceiptEnqueuer interface {
	EnqueueReceipt(ctx context.Context, id int64, email string) error
}

// CacheBumper invalidates versioned dashboard caches after a committed
// write so reads rebuild instead of serving the stale entry for its TTL.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// ProductDirectory resolves products for price defaults and validation.
type ProductDirectory interface {
	FindByID(ctx context.Context, id int64) (*catalog.Product, error)
}

// BalanceCalculator owns every pendingAmount and stock transition. All
// mutations run check-then-commit inside one row-locked transaction.
type BalanceCalculator struct {
	repo        Repository
	accounts    AccountDirectory
	assignments AssignmentChecker
	products    ProductDirectory
	audit       *shared.AuditLogger
	receipts    ReceiptEnqueuer
	cache       CacheBumper
	log         *slog.Logger
}

// NewBalanceCalculator constructs BalanceCalculator. audit, receipts and
// cache may be nil.
func NewBalanceCalculator(repo Repository, accounts AccountDirectory, assignments AssignmentChecker, products ProductDirectory, audit *shared.AuditLogger, receipts ReceiptEnqueuer, cache CacheBumper, log *slog.Logger) *BalanceCalculator {
	return &BalanceCalculator{
		repo:        repo,
		accounts:    accounts,
		assignments: assignments,
		products:    products,
		audit:       audit,
		receipts:    receipts,
		cache:       cache,
		log:         log,
	}
}

// NewRecoveryItem is one requested item line; UnitPrice zero means the
// current catalog price applies.
type NewRecoveryItem struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// NewRecovery is the input for recording a collection.
type NewRecovery struct {
	ShopkeeperID     int64
	SalesmanID       int64
	Type             RecoveryType
	AmountCollected  decimal.Decimal
	PaymentMethod    PaymentMethod
	Items            []NewRecoveryItem
	Notes            string
	RecoveryDate     *time.Time
	RecoveryLocation string
	ReceiptNumber    string
	BankDetails      *BankDetails
}

var errValidation = errors.New("invalid recovery input")

func (in NewRecovery) validate() error {
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: unknown recovery type %q", errValidation, in.Type)
	}
	if !in.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: unknown payment method %q", errValidation, in.PaymentMethod)
	}
	if in.AmountCollected.IsNegative() {
		return fmt.Errorf("%w: amount collected cannot be negative", errValidation)
	}
	if in.Type == RecoveryPaymentWithItems && len(in.Items) == 0 {
		return fmt.Errorf("%w: payment_with_items requires at least one item", errValidation)
	}
	if in.Type == RecoveryPaymentOnly && len(in.Items) > 0 {
		return fmt.Errorf("%w: payment_only must not carry items", errValidation)
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", errValidation)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item unit price cannot be negative", errValidation)
		}
	}
	return nil
}

// RecordRecovery records a collection against a shopkeeper's pending amount.
// The balance read, the stock check, the entry insert and the balance write
// all happen inside one transaction with the shopkeeper row locked.
func (c *BalanceCalculator) RecordRecovery(ctx context.Context, actor shared.Principal, in NewRecovery) (*RecoveryRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	salesmanID, err := c.resolveSalesman(ctx, actor, in.SalesmanID)
	if err != nil {
		return nil, err
	}
	assigned, err := c.assignments.ActiveExists(ctx, salesmanID, in.ShopkeeperID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrNotAssigned
	}

	items, err := c.resolveItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	rec := &RecoveryRecord{
		ShopkeeperID:     in.ShopkeeperID,
		SalesmanID:       salesmanID,
		Type:             in.Type,
		AmountCollected:  in.AmountCollected,
		PaymentMethod:    in.PaymentMethod,
		Items:            items,
		Status:           RecoveryStatusCompleted,
		Notes:            in.Notes,
		RecoveryDate:     time.Now().UTC(),
		RecoveryLocation: in.RecoveryLocation,
		ReceiptNumber:    in.ReceiptNumber,
		BankDetails:      in.BankDetails,
	}
	if in.RecoveryDate != nil {
		rec.RecoveryDate = *in.RecoveryDate
	}

	err = c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		shop, err := c.repo.GetAccountForUpdate(ctx, tx, in.ShopkeeperID)
		if err != nil {
			return err
		}
		if shared.Role(shop.Role) != shared.RoleShopkeeper {
			return ErrWrongRole
		}
		if !shop.IsActive {
			return ErrAccountInactive
		}

		for _, item := range items {
			available, err := salesmanAvailableTx(ctx, tx, c.repo, salesmanID, item.ProductID)
			if err != nil {
				return err
			}
			if available < item.Quantity {
				return &InsufficientStockError{
					Tier:      "salesman",
					ProductID: item.ProductID,
					Available: available,
					Requested: item.Quantity,
				}
			}
		}

		result := Reconcile(in.AmountCollected, items, shop.PendingAmount)
		rec.ItemsValue = result.ItemsValue
		rec.NetPayment = result.NetPayment
		rec.PreviousPendingAmount = shop.PendingAmount
		rec.NewPendingAmount = result.NewPendingAmount

		if err := c.repo.InsertRecovery(ctx, tx, rec); err != nil {
			return err
		}
		return c.repo.SetPendingAmount(ctx, tx, in.ShopkeeperID, result.NewPendingAmount)
	})
	if err != nil {
		return nil, err
	}

	c.auditWrite(ctx, actor.ID, "recovery.record", "recovery", rec.ID, map[string]any{
		"shopkeeper_id": rec.ShopkeeperID,
		"net_payment":   rec.NetPayment.String(),
		"new_pending":   rec.NewPendingAmount.String(),
	})
	c.log.InfoContext(ctx, "recovery recorded",
		"recovery_id", rec.ID,
		"shopkeeper_id", rec.ShopkeeperID,
		"salesman_id", rec.SalesmanID,
		"net_payment", rec.NetPayment.String(),
		"new_pending", rec.NewPendingAmount.String())
	c.enqueueReceipt(ctx, rec)
	c.BumpCache(ctx)
	return rec, nil
}

// BumpCache invalidates the dashboard cache after a committed write.
// Failures only log: the entry still expires with its TTL.
func (c *BalanceCalculator) BumpCache(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Bump(ctx); err != nil {
		c.log.WarnContext(ctx, "cache bump failed", "error", err)
	}
}

// enqueueReceipt mails the shopkeeper a collection receipt. The recovery is
// already committed, so failures only log.
func (c *BalanceCalculator) enqueueReceipt(ctx context.Context, rec *RecoveryRecord) {
	if c.receipts == nil {
		return
	}
	shop, err := c.accounts.FindByID(ctx, rec.ShopkeeperID)
	if err != nil || shop.Email == "" {
		return
	}
	if err := c.receipts.EnqueueReceipt(ctx, rec.ID, shop.Email); err != nil {
		c.log.WarnContext(ctx, "receipt enqueue failed", "recovery_id", rec.ID, "error", err)
	}
}

// ReverseRecovery undoes a recovery by additive restoration: the shopkeeper
// gets the net payment added back and the items return to salesman
// availability because reversed recoveries no longer count as outbound.
// Reversing twice fails with ErrAlreadyReversed.
func (c *BalanceCalculator) ReverseRecovery(ctx context.Context, actor shared.Principal, id int64) (*RecoveryRecord, error) {
	var rec RecoveryRecord
	err := c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = c.repo.GetRecoveryForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := c.requireAdminScope(ctx, actor, rec.SalesmanID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := c.repo.MarkRecoveryReversed(ctx, tx, id, now); err != nil {
			return err
		}
		rec.ReversedAt = &now
		rec.Status = RecoveryStatusCancelled

		shop, err := c.repo.GetAccountForUpdate(ctx, tx, rec.ShopkeeperID)
		if err != nil {
			return err
		}
		restored := shop.PendingAmount.Add(rec.NetPayment)
		if restored.IsNegative() {
			restored = decimal.Zero
		}
		return c.repo.SetPendingAmount(ctx, tx, rec.ShopkeeperID, restored)
	})
	if err != nil {
		return nil, err
	}

	c.auditWrite(ctx, actor.ID, "recovery.reverse", "recovery", rec.ID, map[string]any{
		"shopkeeper_id": rec.ShopkeeperID,
		"net_payment":   rec.NetPayment.String(),
	})
	c.log.InfoContext(ctx, "recovery reversed", "recovery_id", rec.ID, "shopkeeper_id", rec.ShopkeeperID)
	c.BumpCache(ctx)
	return &rec, nil
}

// RecoveryUpdate carries the only mutable recovery fields. Money fields are
// immutable after creation; corrections go through ReverseRecovery plus a
// fresh recording.
type RecoveryUpdate struct {
	Status   *RecoveryStatus
	Notes    *string
	Location *string
}

// AmendRecovery updates status, notes or location on a live recovery.
// Admin scope only. A status change into or out of completed would change
// what the stock and balance sums count without the reversal bookkeeping,
// so it fails with ErrImmutableRecovery; cancellation goes through
// ReverseRecovery.
func (c *BalanceCalculator) AmendRecovery(ctx context.Context, actor shared.Principal, id int64, upd RecoveryUpdate) (*RecoveryRecord, error) {
	if upd.Status != nil && !upd.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", errValidation, *upd.Status)
	}
	var rec RecoveryRecord
	err := c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		current, err := c.repo.GetRecoveryForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := c.requireAdminScope(ctx, actor, current.SalesmanID); err != nil {
			return err
		}
		if current.ReversedAt != nil {
			return ErrAlreadyReversed
		}
		if upd.Status != nil && *upd.Status != current.Status &&
			(*upd.Status == RecoveryStatusCompleted || current.Status == RecoveryStatusCompleted) {
			return ErrImmutableRecovery
		}
		rec, err = c.repo.UpdateRecoveryAnnotations(ctx, tx, id, upd.Status, upd.Notes, upd.Location)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recovery fetches one recovery if the actor may see it.
func (c *BalanceCalculator) Recovery(ctx context.Context, actor shared.Principal, id int64) (*RecoveryRecord, error) {
	rec, err := c.repo.GetRecovery(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.requireRecoveryAccess(ctx, actor, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recoveries lists recoveries visible to the actor: salesmen see their own,
// shopkeepers their own, admins those of managed salesmen, superadmins all.
func (c *BalanceCalculator) Recoveries(ctx context.Context, actor shared.Principal, f RecoveryFilter, limit, offset int) ([]RecoveryRecord, int, error) {
	f, empty, err := c.scopeRecoveries(ctx, actor, f)
	if err != nil {
		return nil, 0, err
	}
	if empty {
		return []RecoveryRecord{}, 0, nil
	}
	return c.repo.ListRecoveries(ctx, f, limit, offset)
}

// NewDistribution is the input for recording a product transfer.
type NewDistribution struct {
	ProductID int64
	ToID      int64
	Quantity  int64
	UnitPrice decimal.Decimal
	Type      DistributionType
	Notes     string
}

// RecordDistribution creates a transfer entry. An admin_to_salesman transfer
// debits warehouse stock in the same transaction; a salesman_to_shopkeeper
// transfer only claims derived salesman availability.
func (c *BalanceCalculator) RecordDistribution(ctx context.Context, actor shared.Principal, in NewDistribution) (*Distribution, error) {
	if !in.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown distribution type %q", errValidation, in.Type)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", errValidation)
	}

	product, err := c.products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	unitPrice := in.UnitPrice
	if unitPrice.IsZero() {
		unitPrice = product.Price
	}
	if unitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", errValidation)
	}

	d := &Distribution{
		ProductID:   in.ProductID,
		FromID:      actor.ID,
		ToID:        in.ToID,
		Quantity:    in.Quantity,
		UnitPrice:   unitPrice,
		TotalAmount: unitPrice.Mul(decimal.NewFromInt(in.Quantity)),
		Type:        in.Type,
		Status:      DistributionPending,
		Notes:       in.Notes,
	}

	switch in.Type {
	case DistributionAdminToSalesman:
		if !actor.IsAdmin() {
			return nil, ErrWrongRole
		}
		if err := c.checkSalesmanRecipient(ctx, actor, in.ToID); err != nil {
			return nil, err
		}
	case DistributionSalesmanToShopkeeper:
		if actor.Role != shared.RoleSalesman {
			return nil, ErrWrongRole
		}
		shop, err := c.accounts.FindByID(ctx, in.ToID)
		if err != nil {
			return nil, err
		}
		if shop.Role != shared.RoleShopkeeper {
			return nil, ErrWrongRole
		}
		if !shop.IsActive {
			return nil, ErrAccountInactive
		}
		assigned, err := c.assignments.ActiveExists(ctx, actor.ID, in.ToID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, ErrNotAssigned
		}
	}

	err = c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		switch in.Type {
		case DistributionAdminToSalesman:
			if err := c.repo.AdjustWarehouseStock(ctx, tx, in.ProductID, -in.Quantity); err != nil {
				return err
			}
		case DistributionSalesmanToShopkeeper:
			available, err := salesmanAvailableTx(ctx, tx, c.repo, actor.ID, in.ProductID)
			if err != nil {
				return err
			}
			if available < in.Quantity {
				return &InsufficientStockError{
					Tier:      "salesman",
					ProductID: in.ProductID,
					Available: available,
					Requested: in.Quantity,
				}
			}
		}
		return c.repo.InsertDistribution(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}

	c.auditWrite(ctx, actor.ID, "distribution.record", "distribution", d.ID, map[string]any{
		"product_id": d.ProductID,
		"to_id":      d.ToID,
		"quantity":   d.Quantity,
		"type":       string(d.Type),
	})
	c.log.InfoContext(ctx, "distribution recorded",
		"distribution_id", d.ID, "type", d.Type, "product_id", d.ProductID, "quantity", d.Quantity)
	c.BumpCache(ctx)
	return d, nil
}

// SetDistributionStatus applies pending→delivered or pending→returned. A
// returned admin_to_salesman transfer credits the warehouse back exactly
// once; a returned salesman_to_shopkeeper transfer restores salesman
// availability implicitly because returned entries stop counting as
// outbound.
func (c *BalanceCalculator) SetDistributionStatus(ctx context.Context, actor shared.Principal, id int64, status DistributionStatus, reason string) (*Distribution, error) {
	if status != DistributionDelivered && status != DistributionReturned {
		return nil, fmt.Errorf("%w: unknown status %q", errValidation, status)
	}

	var d Distribution
	err := c.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		d, err = c.repo.GetDistributionForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !c.mayTouchDistribution(actor, d) {
			return ErrWrongRole
		}
		if !d.Status.CanTransitionTo(status) {
			return ErrNotReversible
		}

		now := time.Now().UTC()
		d.Status = status
		switch status {
		case DistributionDelivered:
			d.DeliveredAt = &now
		case DistributionReturned:
			d.ReturnedAt = &now
			d.ReturnReason = reason
			if d.Type == DistributionAdminToSalesman {
				credited, err := c.repo.MarkDistributionStockReversed(ctx, tx, d.ID)
				if err != nil {
					return err
				}
				if credited {
					if err := c.repo.AdjustWarehouseStock(ctx, tx, d.ProductID, d.Quantity); err != nil {
						return err
					}
					d.StockReversed = true
				}
			}
		}
		return c.repo.UpdateDistributionStatus(ctx, tx, &d)
	})
	if err != nil {
		return nil, err
	}

	c.auditWrite(ctx, actor.ID, "distribution.status", "distribution", d.ID, map[string]any{
		"status": string(status),
	})
	c.log.InfoContext(ctx, "distribution status changed", "distribution_id", d.ID, "status", status)
	c.BumpCache(ctx)
	return &d, nil
}

// Distribution fetches one distribution if the actor may see it.
func (c *BalanceCalculator) Distribution(ctx context.Context, actor shared.Principal, id int64) (*Distribution, error) {
	d, err := c.repo.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleSuperAdmin || d.FromID == actor.ID || d.ToID == actor.ID {
		return &d, nil
	}
	if actor.Role == shared.RoleAdmin {
		for _, party := range []int64{d.FromID, d.ToID} {
			manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, party)
			if err != nil {
				return nil, err
			}
			if manages {
				return &d, nil
			}
		}
	}
	return nil, ErrWrongRole
}

// Distributions lists distributions visible to the actor.
func (c *BalanceCalculator) Distributions(ctx context.Context, actor shared.Principal, f DistributionFilter, limit, offset int) ([]Distribution, int, error) {
	f, empty, err := c.scopeDistributions(ctx, actor, f)
	if err != nil {
		return nil, 0, err
	}
	if empty {
		return []Distribution{}, 0, nil
	}
	return c.repo.ListDistributions(ctx, f, limit, offset)
}

// PendingShopkeepers lists the salesman's assigned shopkeepers that still
// owe money, for collection-round planning.
func (c *BalanceCalculator) PendingShopkeepers(ctx context.Context, actor shared.Principal, salesmanID int64) ([]accounts.Account, error) {
	if err := c.requireSalesmanScope(ctx, actor, salesmanID); err != nil {
		return nil, err
	}
	assigned, err := c.assignments.AssignedShopkeepers(ctx, salesmanID)
	if err != nil {
		return nil, err
	}
	pending := []accounts.Account{}
	for _, shop := range assigned {
		if shop.PendingAmount.IsPositive() {
			pending = append(pending, shop)
		}
	}
	return pending, nil
}

// RecoveryOverview aggregates completed recoveries within the actor's scope.
func (c *BalanceCalculator) RecoveryOverview(ctx context.Context, actor shared.Principal, f RecoveryFilter) (RecoveryStats, error) {
	f, empty, err := c.scopeRecoveries(ctx, actor, f)
	if err != nil || empty {
		return RecoveryStats{}, err
	}
	return c.repo.RecoveryStats(ctx, f)
}

// DistributionOverview aggregates distributions within the actor's scope.
func (c *BalanceCalculator) DistributionOverview(ctx context.Context, actor shared.Principal, f DistributionFilter) (DistributionStats, error) {
	f, empty, err := c.scopeDistributions(ctx, actor, f)
	if err != nil || empty {
		return DistributionStats{}, err
	}
	return c.repo.DistributionStats(ctx, f)
}

// MonthlyTrend reports per-month recovery volume within the actor's scope.
func (c *BalanceCalculator) MonthlyTrend(ctx context.Context, actor shared.Principal, f RecoveryFilter, months int) ([]MonthlyPoint, error) {
	f, empty, err := c.scopeRecoveries(ctx, actor, f)
	if err != nil || empty {
		return []MonthlyPoint{}, err
	}
	return c.repo.MonthlyRecoveryTrend(ctx, f, months)
}

func (c *BalanceCalculator) resolveSalesman(ctx context.Context, actor shared.Principal, requested int64) (int64, error) {
	switch actor.Role {
	case shared.RoleSalesman:
		return actor.ID, nil
	case shared.RoleAdmin, shared.RoleSuperAdmin:
		if requested == 0 {
			return 0, fmt.Errorf("%w: salesman_id is required", errValidation)
		}
		if actor.Role == shared.RoleAdmin {
			manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, requested)
			if err != nil {
				return 0, err
			}
			if !manages {
				return 0, ErrNotManaged
			}
		}
		salesman, err := c.accounts.FindByID(ctx, requested)
		if err != nil {
			return 0, err
		}
		if salesman.Role != shared.RoleSalesman {
			return 0, ErrWrongRole
		}
		if !salesman.IsActive {
			return 0, ErrAccountInactive
		}
		return requested, nil
	default:
		return 0, ErrWrongRole
	}
}

func (c *BalanceCalculator) resolveItems(ctx context.Context, in []NewRecoveryItem) ([]RecoveryItem, error) {
	items := make([]RecoveryItem, 0, len(in))
	for _, item := range in {
		unitPrice := item.UnitPrice
		if unitPrice.IsZero() {
			product, err := c.products.FindByID(ctx, item.ProductID)
			if err != nil {
				return nil, err
			}
			unitPrice = product.Price
		}
		items = append(items, RecoveryItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: unitPrice.Mul(decimal.NewFromInt(item.Quantity)),
		})
	}
	return items, nil
}

func (c *BalanceCalculator) checkSalesmanRecipient(ctx context.Context, actor shared.Principal, salesmanID int64) error {
	salesman, err := c.accounts.FindByID(ctx, salesmanID)
	if err != nil {
		return err
	}
	if salesman.Role != shared.RoleSalesman {
		return ErrWrongRole
	}
	if !salesman.IsActive {
		return ErrAccountInactive
	}
	if actor.Role == shared.RoleAdmin {
		manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, salesmanID)
		if err != nil {
			return err
		}
		if !manages {
			return ErrNotManaged
		}
	}
	return nil
}

func (c *BalanceCalculator) requireRecoveryAccess(ctx context.Context, actor shared.Principal, rec RecoveryRecord) error {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return nil
	case shared.RoleSalesman:
		if rec.SalesmanID == actor.ID {
			return nil
		}
	case shared.RoleShopkeeper:
		if rec.ShopkeeperID == actor.ID {
			return nil
		}
	case shared.RoleAdmin:
		manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, rec.SalesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrWrongRole
}

// requireAdminScope restricts mutation of committed recoveries to admins:
// superadmins anywhere, admins over the salesmen they provisioned. Salesmen
// and shopkeepers can read their recoveries but never rewrite them.
func (c *BalanceCalculator) requireAdminScope(ctx context.Context, actor shared.Principal, salesmanID int64) error {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return nil
	case shared.RoleAdmin:
		manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, salesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrWrongRole
}

func (c *BalanceCalculator) requireSalesmanScope(ctx context.Context, actor shared.Principal, salesmanID int64) error {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return nil
	case shared.RoleSalesman:
		if actor.ID == salesmanID {
			return nil
		}
	case shared.RoleAdmin:
		manages, err := c.accounts.ManagesSalesman(ctx, actor.ID, salesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrWrongRole
}

func (c *BalanceCalculator) scopeRecoveries(ctx context.Context, actor shared.Principal, f RecoveryFilter) (RecoveryFilter, bool, error) {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return f, false, nil
	case shared.RoleSalesman:
		f.SalesmanID = actor.ID
		f.SalesmanIDs = nil
		return f, false, nil
	case shared.RoleShopkeeper:
		f.ShopkeeperID = actor.ID
		f.SalesmanID = 0
		f.SalesmanIDs = nil
		return f, false, nil
	case shared.RoleAdmin:
		ids, err := c.accounts.SalesmenManagedBy(ctx, actor.ID)
		if err != nil {
			return f, false, err
		}
		if len(ids) == 0 {
			return f, true, nil
		}
		if f.SalesmanID != 0 {
			if !containsID(ids, f.SalesmanID) {
				return f, true, nil
			}
			return f, false, nil
		}
		f.SalesmanIDs = ids
		return f, false, nil
	default:
		return f, true, nil
	}
}

func (c *BalanceCalculator) scopeDistributions(ctx context.Context, actor shared.Principal, f DistributionFilter) (DistributionFilter, bool, error) {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return f, false, nil
	case shared.RoleSalesman, shared.RoleShopkeeper:
		f.PartyID = actor.ID
		f.PartyIDs = nil
		return f, false, nil
	case shared.RoleAdmin:
		ids, err := c.accounts.SalesmenManagedBy(ctx, actor.ID)
		if err != nil {
			return f, false, err
		}
		f.PartyIDs = append(ids, actor.ID)
		return f, false, nil
	default:
		return f, true, nil
	}
}

func (c *BalanceCalculator) mayTouchDistribution(actor shared.Principal, d Distribution) bool {
	if actor.Role == shared.RoleSuperAdmin {
		return true
	}
	return d.FromID == actor.ID || d.ToID == actor.ID
}

func (c *BalanceCalculator) auditWrite(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if c.audit == nil {
		return
	}
	err := c.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		c.log.WarnContext(ctx, "audit write failed", "action", action, "error", err)
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
