package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/shared"
)

// BalanceLedger is the slice of the ledger the orders service needs: the
// derived availability read and the only sanctioned way to grow a pending
// balance.
type BalanceLedger interface {
	AvailabilityTx(ctx context.Context, tx pgx.Tx, salesmanID, productID int64) (int64, error)
	DebitPending(ctx context.Context, tx pgx.Tx, shopkeeperID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// BumpCache invalidates the dashboard cache after a committed write.
	BumpCache(ctx context.Context)
}

// AssignmentChecker answers whether a salesman currently serves a shopkeeper.
type AssignmentChecker interface {
	ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error)
}

// ProductDirectory resolves products for pricing.
type ProductDirectory interface {
	FindByID(ctx context.Context, id int64) (*catalog.Product, error)
}

// AccountDirectory scopes admin access to managed salesmen.
type AccountDirectory interface {
	ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error)
	SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error)
}

// Service implements order workflows.
type Service struct {
	repo        RepositoryPort
	ledger      BalanceLedger
	assignments AssignmentChecker
	products    ProductDirectory
	accounts    AccountDirectory
	log         *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, bl BalanceLedger, assignments AssignmentChecker, products ProductDirectory, accounts AccountDirectory, log *slog.Logger) *Service {
	return &Service{repo: repo, ledger: bl, assignments: assignments, products: products, accounts: accounts, log: log}
}

// NewItem is one requested order line.
type NewItem struct {
	ProductID int64
	Quantity  int64
}

// NewOrder is the input for placing an order.
type NewOrder struct {
	SalesmanID int64
	Items      []NewItem
	Notes      string
}

// Place records a pending order for the acting shopkeeper. The availability
// check and the insert run in one transaction so the claim against the
// salesman's tier cannot be oversold.
func (s *Service) Place(ctx context.Context, actor shared.Principal, in NewOrder) (*Order, error) {
	if actor.Role != shared.RoleShopkeeper {
		return nil, ErrForbidden
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	assigned, err := s.assignments.ActiveExists(ctx, in.SalesmanID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrNotAssigned
	}

	items := make([]Item, 0, len(in.Items))
	perProduct := map[int64]int64{}
	total := decimal.Zero
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, ErrBadQuantity
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(line.Quantity))
		items = append(items, Item{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: lineTotal,
		})
		perProduct[line.ProductID] += line.Quantity
		total = total.Add(lineTotal)
	}

	order := &Order{
		ShopkeeperID: actor.ID,
		SalesmanID:   in.SalesmanID,
		Items:        items,
		TotalAmount:  total,
		Status:       StatusPending,
		Notes:        in.Notes,
	}

	err = s.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		for productID, quantity := range perProduct {
			available, err := s.ledger.AvailabilityTx(ctx, tx, in.SalesmanID, productID)
			if err != nil {
				return err
			}
			if available < quantity {
				return &ledger.InsufficientStockError{
					Tier:      "salesman",
					ProductID: productID,
					Available: available,
					Requested: quantity,
				}
			}
		}
		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID, "shopkeeper_id", order.ShopkeeperID, "salesman_id", order.SalesmanID,
		"total", order.TotalAmount.String())
	return order, nil
}

// Deliver marks a pending order delivered and debits the shopkeeper's
// pending amount by the order total, both in one transaction.
func (s *Service) Deliver(ctx context.Context, actor shared.Principal, id int64) (*Order, error) {
	var order Order
	err := s.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.requireSalesmanSide(ctx, actor, order); err != nil {
			return err
		}
		if order.Status != StatusPending {
			return ErrNotPending
		}

		now := time.Now().UTC()
		order.Status = StatusDelivered
		order.DeliveredAt = &now
		if err := s.repo.UpdateStatus(ctx, tx, &order); err != nil {
			return err
		}
		_, err = s.ledger.DebitPending(ctx, tx, order.ShopkeeperID, order.TotalAmount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order delivered",
		"order_id", order.ID, "shopkeeper_id", order.ShopkeeperID, "total", order.TotalAmount.String())
	s.ledger.BumpCache(ctx)
	return &order, nil
}

// Cancel voids a pending order, releasing its availability claim.
func (s *Service) Cancel(ctx context.Context, actor shared.Principal, id int64) (*Order, error) {
	var order Order
	err := s.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.requireParty(ctx, actor, order); err != nil {
			return err
		}
		if order.Status != StatusPending {
			return ErrNotPending
		}

		now := time.Now().UTC()
		order.Status = StatusCancelled
		order.CancelledAt = &now
		return s.repo.UpdateStatus(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order cancelled", "order_id", order.ID)
	return &order, nil
}

// Find fetches one order if the actor may see it.
func (s *Service) Find(ctx context.Context, actor shared.Principal, id int64) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(ctx, actor, order); err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns orders visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, f Filter, limit, offset int) ([]Order, int, error) {
	switch actor.Role {
	case shared.RoleSuperAdmin:
	case shared.RoleShopkeeper:
		f.ShopkeeperID = actor.ID
		f.SalesmanIDs = nil
	case shared.RoleSalesman:
		f.SalesmanID = actor.ID
		f.SalesmanIDs = nil
	case shared.RoleAdmin:
		ids, err := s.accounts.SalesmenManagedBy(ctx, actor.ID)
		if err != nil {
			return nil, 0, err
		}
		if len(ids) == 0 {
			return []Order{}, 0, nil
		}
		f.SalesmanIDs = ids
	default:
		return []Order{}, 0, nil
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) requireSalesmanSide(ctx context.Context, actor shared.Principal, order Order) error {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return nil
	case shared.RoleSalesman:
		if order.SalesmanID == actor.ID {
			return nil
		}
	case shared.RoleAdmin:
		manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, order.SalesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrForbidden
}

func (s *Service) requireParty(ctx context.Context, actor shared.Principal, order Order) error {
	if actor.Role == shared.RoleShopkeeper && order.ShopkeeperID == actor.ID {
		return nil
	}
	return s.requireSalesmanSide(ctx, actor, order)
}
