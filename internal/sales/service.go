package sales

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/shared"
)

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

// Service implements sales bookkeeping workflows.
type Service struct {
	repo           RepositoryPort
	assignments    AssignmentChecker
	products       ProductDirectory
	accounts       AccountDirectory
	commissionRate decimal.Decimal
	log            *slog.Logger
}

// NewService constructs Service. commissionRate is the salesman's cut as a
// percentage of the sale total.
func NewService(repo RepositoryPort, assignments AssignmentChecker, products ProductDirectory, accounts AccountDirectory, commissionRate decimal.Decimal, log *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		assignments:    assignments,
		products:       products,
		accounts:       accounts,
		commissionRate: commissionRate,
		log:            log,
	}
}

// NewSale is the input for recording a sale.
type NewSale struct {
	SalesmanID    int64
	ShopkeeperID  int64
	ProductID     int64
	Quantity      int64
	UnitPrice     decimal.Decimal
	PaymentMethod ledger.PaymentMethod
	SaleDate      *time.Time
	Notes         string
}

// Record books a sale. Salesmen record their own sales; admins may record
// on behalf of a salesman they manage. The shopkeeper must hold an active
// assignment with the salesman.
func (s *Service) Record(ctx context.Context, actor shared.Principal, in NewSale) (*Record, error) {
	salesmanID, err := s.resolveSalesman(ctx, actor, in.SalesmanID)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, ErrBadQuantity
	}

	assigned, err := s.assignments.ActiveExists(ctx, salesmanID, in.ShopkeeperID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrNotAssigned
	}

	unitPrice := in.UnitPrice
	if unitPrice.IsZero() {
		product, err := s.products.FindByID(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		unitPrice = product.Price
	}

	total := unitPrice.Mul(decimal.NewFromInt(in.Quantity))
	commission := total.Mul(s.commissionRate).Div(decimal.NewFromInt(100)).Round(2)

	method := in.PaymentMethod
	if method == "" {
		method = ledger.PaymentCash
	}
	saleDate := time.Now().UTC()
	if in.SaleDate != nil {
		saleDate = in.SaleDate.UTC()
	}

	rec := &Record{
		SalesmanID:    salesmanID,
		ShopkeeperID:  in.ShopkeeperID,
		ProductID:     in.ProductID,
		Quantity:      in.Quantity,
		UnitPrice:     unitPrice,
		TotalAmount:   total,
		Commission:    commission,
		Profit:        total.Sub(commission),
		SaleDate:      saleDate,
		PaymentStatus: PaymentPending,
		PaymentMethod: method,
		Notes:         in.Notes,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "sale recorded",
		"sale_id", rec.ID, "salesman_id", rec.SalesmanID, "shopkeeper_id", rec.ShopkeeperID,
		"total", rec.TotalAmount.String(), "commission", rec.Commission.String())
	return rec, nil
}

// Find fetches one sales record if the actor may see it.
func (s *Service) Find(ctx context.Context, actor shared.Principal, id int64) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireRecordAccess(ctx, actor, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns sales records visible to the actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, f Filter, limit, offset int) ([]Record, int, error) {
	f, ok, err := s.scope(ctx, actor, f)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []Record{}, 0, nil
	}
	return s.repo.List(ctx, f, limit, offset)
}

// SetPaymentStatus updates how much of a sale has been settled. Salesmen may
// update their own sales; admins those of salesmen they manage.
func (s *Service) SetPaymentStatus(ctx context.Context, actor shared.Principal, id int64, status PaymentStatus) (*Record, error) {
	if !status.Valid() {
		return nil, ErrBadStatus
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireRecordAccess(ctx, actor, rec); err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleShopkeeper {
		return nil, ErrForbidden
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "sale payment status updated", "sale_id", id, "status", string(status))
	return &updated, nil
}

// Overview aggregates sales visible to the actor.
func (s *Service) Overview(ctx context.Context, actor shared.Principal, f Filter) (Stats, error) {
	f, ok, err := s.scope(ctx, actor, f)
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		return Stats{}, nil
	}
	return s.repo.Stats(ctx, f)
}

// MonthlyBreakdown buckets visible sales by calendar month.
func (s *Service) MonthlyBreakdown(ctx context.Context, actor shared.Principal, f Filter) ([]MonthlyPoint, error) {
	f, ok, err := s.scope(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []MonthlyPoint{}, nil
	}
	return s.repo.MonthlyStats(ctx, f)
}

// ProfitLossReport is the company-wide earnings summary, superadmin only.
func (s *Service) ProfitLossReport(ctx context.Context, actor shared.Principal, f Filter) (ProfitLoss, error) {
	if actor.Role != shared.RoleSuperAdmin {
		return ProfitLoss{}, ErrForbidden
	}
	f.SalesmanID = 0
	f.SalesmanIDs = nil
	return s.repo.ProfitLoss(ctx, f)
}

func (s *Service) resolveSalesman(ctx context.Context, actor shared.Principal, requested int64) (int64, error) {
	switch actor.Role {
	case shared.RoleSalesman:
		if requested != 0 && requested != actor.ID {
			return 0, ErrForbidden
		}
		return actor.ID, nil
	case shared.RoleSuperAdmin:
		if requested == 0 {
			return 0, ErrForbidden
		}
		return requested, nil
	case shared.RoleAdmin:
		if requested == 0 {
			return 0, ErrForbidden
		}
		manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, requested)
		if err != nil {
			return 0, err
		}
		if !manages {
			return 0, ErrForbidden
		}
		return requested, nil
	default:
		return 0, ErrForbidden
	}
}

func (s *Service) requireRecordAccess(ctx context.Context, actor shared.Principal, rec Record) error {
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
		manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, rec.SalesmanID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	}
	return ErrForbidden
}

// scope narrows the filter to what the actor may see. The bool is false when
// the actor can see nothing at all.
func (s *Service) scope(ctx context.Context, actor shared.Principal, f Filter) (Filter, bool, error) {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return f, true, nil
	case shared.RoleSalesman:
		f.SalesmanID = actor.ID
		f.SalesmanIDs = nil
		return f, true, nil
	case shared.RoleShopkeeper:
		f.ShopkeeperID = actor.ID
		f.SalesmanIDs = nil
		return f, true, nil
	case shared.RoleAdmin:
		ids, err := s.accounts.SalesmenManagedBy(ctx, actor.ID)
		if err != nil {
			return f, false, err
		}
		if len(ids) == 0 {
			return f, false, nil
		}
		if f.SalesmanID != 0 {
			manages, err := s.accounts.ManagesSalesman(ctx, actor.ID, f.SalesmanID)
			if err != nil {
				return f, false, err
			}
			if !manages {
				return f, false, nil
			}
			return f, true, nil
		}
		f.SalesmanIDs = ids
		return f, true, nil
	default:
		return f, false, nil
	}
}
