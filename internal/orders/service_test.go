package orders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/shared"
)

type memoryOrders struct {
	mu     sync.Mutex
	byID   map[int64]*Order
	nextID int64
}

func (m *memoryOrders) WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(nil)
}

func (m *memoryOrders) Insert(ctx context.Context, _ pgx.Tx, o *Order) error {
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	clone := *o
	m.byID[o.ID] = &clone
	return nil
}

func (m *memoryOrders) GetForUpdate(ctx context.Context, _ pgx.Tx, id int64) (Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *o, nil
}

func (m *memoryOrders) UpdateStatus(ctx context.Context, _ pgx.Tx, o *Order) error {
	stored, ok := m.byID[o.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = o.Status
	stored.DeliveredAt = o.DeliveredAt
	stored.CancelledAt = o.CancelledAt
	return nil
}

func (m *memoryOrders) Get(ctx context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetForUpdate(ctx, nil, id)
}

func (m *memoryOrders) List(ctx context.Context, f Filter, limit, offset int) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []Order{}
	for _, o := range m.byID {
		if f.ShopkeeperID != 0 && o.ShopkeeperID != f.ShopkeeperID {
			continue
		}
		if f.SalesmanID != 0 && o.SalesmanID != f.SalesmanID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, *o)
	}
	return matched, len(matched), nil
}

// memoryBalance tracks availability per product and one pending balance,
// mirroring what the ledger derives from its entry store.
type memoryBalance struct {
	available map[int64]int64
	pending   map[int64]decimal.Decimal
	orders    *memoryOrders
	bumps     int
}

func (m *memoryBalance) AvailabilityTx(ctx context.Context, _ pgx.Tx, salesmanID, productID int64) (int64, error) {
	claimed := int64(0)
	for _, o := range m.orders.byID {
		if o.SalesmanID != salesmanID || o.Status == StatusCancelled {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID {
				claimed += item.Quantity
			}
		}
	}
	return m.available[productID] - claimed, nil
}

func (m *memoryBalance) DebitPending(ctx context.Context, _ pgx.Tx, shopkeeperID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	next := m.pending[shopkeeperID].Add(amount)
	m.pending[shopkeeperID] = next
	return next, nil
}

func (m *memoryBalance) BumpCache(ctx context.Context) { m.bumps++ }

type stubAssignments struct{ active map[[2]int64]bool }

func (s *stubAssignments) ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error) {
	return s.active[[2]int64{salesmanID, shopkeeperID}], nil
}

type stubProducts struct{ byID map[int64]catalog.Product }

func (s *stubProducts) FindByID(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

type stubAccounts struct{ managed map[int64][]int64 }

func (s *stubAccounts) ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error) {
	for _, id := range s.managed[adminID] {
		if id == salesmanID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubAccounts) SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error) {
	return s.managed[adminID], nil
}

const (
	adminID      = int64(2)
	salesmanID   = int64(3)
	shopkeeperID = int64(4)
	productID    = int64(10)
)

type fixture struct {
	orders  *memoryOrders
	balance *memoryBalance
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &memoryOrders{byID: map[int64]*Order{}}
	balance := &memoryBalance{
		available: map[int64]int64{productID: 50},
		pending:   map[int64]decimal.Decimal{shopkeeperID: decimal.Zero},
		orders:    repo,
	}
	svc := NewService(repo, balance,
		&stubAssignments{active: map[[2]int64]bool{{salesmanID, shopkeeperID}: true}},
		&stubProducts{byID: map[int64]catalog.Product{
			productID: {ID: productID, Name: "Chips 50g", Price: decimal.RequireFromString("10"), IsActive: true},
		}},
		&stubAccounts{managed: map[int64][]int64{adminID: {salesmanID}}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{orders: repo, balance: balance, svc: svc}
}

func shopkeeper() shared.Principal {
	return shared.Principal{ID: shopkeeperID, Role: shared.RoleShopkeeper}
}

func salesman() shared.Principal {
	return shared.Principal{ID: salesmanID, Role: shared.RoleSalesman}
}

func TestPlaceOrderClaimsAvailability(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	order, err := fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("300")))

	// second order exceeding the remaining 20 is refused
	_, err = fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 25}},
	})
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(20), stockErr.Available)
}

func TestPlaceOrderRequiresAssignment(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Place(context.Background(), shopkeeper(), NewOrder{
		SalesmanID: 99,
		Items:      []NewItem{{ProductID: productID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrNotAssigned)
}

func TestPlaceOrderShopkeeperOnly(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Place(context.Background(), salesman(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDeliverDebitsPendingOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	order, err := fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 30}},
	})
	require.NoError(t, err)

	delivered, err := fx.svc.Deliver(ctx, salesman(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	require.True(t, fx.balance.pending[shopkeeperID].Equal(decimal.RequireFromString("300")))
	require.Equal(t, 1, fx.balance.bumps)

	// delivered is terminal, the debit cannot double
	_, err = fx.svc.Deliver(ctx, salesman(), order.ID)
	require.ErrorIs(t, err, ErrNotPending)
	require.True(t, fx.balance.pending[shopkeeperID].Equal(decimal.RequireFromString("300")))
}

func TestDeliverForeignOrderForbidden(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	order, err := fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 1}},
	})
	require.NoError(t, err)

	other := shared.Principal{ID: 77, Role: shared.RoleSalesman}
	_, err = fx.svc.Deliver(ctx, other, order.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCancelReleasesClaim(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	order, err := fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 40}},
	})
	require.NoError(t, err)

	cancelled, err := fx.svc.Cancel(ctx, shopkeeper(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.True(t, fx.balance.pending[shopkeeperID].IsZero())

	// the released quantity can be ordered again
	_, err = fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 40}},
	})
	require.NoError(t, err)
}

func TestListScoping(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Place(ctx, shopkeeper(), NewOrder{
		SalesmanID: salesmanID,
		Items:      []NewItem{{ProductID: productID, Quantity: 5}},
	})
	require.NoError(t, err)

	admin := shared.Principal{ID: adminID, Role: shared.RoleAdmin}
	_, total, err := fx.svc.List(ctx, admin, Filter{}, 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)

	stranger := shared.Principal{ID: 98, Role: shared.RoleAdmin}
	list, total, err := fx.svc.List(ctx, stranger, Filter{}, 20, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)
}
