package storefront

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/catalog"
)

// ProductDirectory resolves products for pricing and availability checks.
type ProductDirectory interface {
	FindByID(ctx context.Context, id int64) (*catalog.Product, error)
}

// ReceiptEnqueuer hands the order to the background worker for the receipt
// email. A nil enqueuer disables receipts.
type ReceiptEnqueuer interface {
	EnqueueReceipt(ctx context.Context, orderID int64, email string) error
}

// Service implements the public checkout and fulfilment workflows.
type Service struct {
	repo     RepositoryPort
	products ProductDirectory
	receipts ReceiptEnqueuer
	log      *slog.Logger
}

// NewService constructs Service. receipts may be nil.
func NewService(repo RepositoryPort, products ProductDirectory, receipts ReceiptEnqueuer, log *slog.Logger) *Service {
	return &Service{repo: repo, products: products, receipts: receipts, log: log}
}

// CartItem is one requested line of a checkout.
type CartItem struct {
	ProductID int64
	Quantity  int64
}

// Checkout is the input for placing a retail order.
type Checkout struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	Items           []CartItem
}

// PlaceOrder records a retail order, debiting warehouse stock for every line
// in the same transaction. Oversold carts fail whole, not line by line.
func (s *Service) PlaceOrder(ctx context.Context, in Checkout) (*StoreOrder, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]Line, 0, len(in.Items))
	total := decimal.Zero
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, ErrEmptyCart
		}
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, ErrProductUnavailable
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(item.Quantity))
		lines = append(lines, Line{
			ProductID:  product.ID,
			Name:       product.Name,
			Quantity:   item.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	order := &StoreOrder{
		Reference:       newReference(),
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		ShippingAddress: in.ShippingAddress,
		Lines:           lines,
		TotalAmount:     total,
		Status:          StatusProcessing,
	}

	err := s.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		for _, line := range order.Lines {
			if err := s.repo.AdjustWarehouseStock(ctx, tx, line.ProductID, -line.Quantity); err != nil {
				return err
			}
		}
		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if s.receipts != nil {
		if err := s.receipts.EnqueueReceipt(ctx, order.ID, order.CustomerEmail); err != nil {
			s.log.WarnContext(ctx, "enqueue receipt failed", "order_id", order.ID, "error", err)
		}
	}
	s.log.InfoContext(ctx, "store order placed",
		"order_id", order.ID, "reference", order.Reference, "total", order.TotalAmount.String())
	return order, nil
}

// SetStatus applies a fulfilment transition. Cancelling before shipment
// restores warehouse stock exactly once.
func (s *Service) SetStatus(ctx context.Context, id int64, next Status) (*StoreOrder, error) {
	var order StoreOrder
	err := s.repo.WithTxRetry(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return ErrBadTransition
		}
		order.Status = next
		if next == StatusCancelled {
			restored, err := s.repo.MarkStockRestored(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if restored {
				for _, line := range order.Lines {
					if err := s.repo.AdjustWarehouseStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
						return err
					}
				}
				order.StockRestored = true
			}
		}
		return s.repo.UpdateStatus(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "store order status changed", "order_id", order.ID, "status", next)
	return &order, nil
}

// Find fetches one store order.
func (s *Service) Find(ctx context.Context, id int64) (*StoreOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Track resolves an order by its public reference, for customers.
func (s *Service) Track(ctx context.Context, reference string) (*StoreOrder, error) {
	order, err := s.repo.GetByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns store orders for the back office.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]StoreOrder, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func newReference() string {
	return "SO-" + strings.ToUpper(uuid.NewString()[:8])
}
