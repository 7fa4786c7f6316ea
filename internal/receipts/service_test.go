package receipts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/orders"
	"github.com/snackline/snackline/internal/shared"
)

type memoryReceipts struct {
	byID   map[int64]*Receipt
	nextID int64
}

func (m *memoryReceipts) Insert(ctx context.Context, rc *Receipt) error {
	m.nextID++
	rc.ID = m.nextID
	rc.CreatedAt = time.Now()
	clone := *rc
	m.byID[rc.ID] = &clone
	return nil
}

func (m *memoryReceipts) Get(ctx context.Context, id int64) (Receipt, error) {
	rc, ok := m.byID[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return *rc, nil
}

func (m *memoryReceipts) List(ctx context.Context, f Filter, limit, offset int) ([]Receipt, int, error) {
	matched := []Receipt{}
	for _, rc := range m.byID {
		if f.Kind != "" && rc.Kind != f.Kind {
			continue
		}
		if f.SalesmanID != 0 && rc.SalesmanID != f.SalesmanID {
			continue
		}
		if f.ShopkeeperID != 0 && rc.ShopkeeperID != f.ShopkeeperID {
			continue
		}
		matched = append(matched, *rc)
	}
	return matched, len(matched), nil
}

func (m *memoryReceipts) UpdateStatus(ctx context.Context, id int64, status Status) (Receipt, error) {
	rc, ok := m.byID[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	rc.Status = status
	return *rc, nil
}

func (m *memoryReceipts) Summarize(ctx context.Context, f Filter) (Summary, error) {
	s := Summary{TotalAmount: decimal.Zero, AverageAmount: decimal.Zero, ByKind: []KindSummaryRow{}}
	for _, rc := range m.byID {
		s.TotalReceipts++
		s.TotalAmount = s.TotalAmount.Add(rc.TotalAmount)
	}
	if s.TotalReceipts > 0 {
		s.AverageAmount = s.TotalAmount.Div(decimal.NewFromInt(s.TotalReceipts))
	}
	return s, nil
}

// stubOrders mimics the order service's visibility rule: salesmen only see
// their own orders.
type stubOrders struct{ byID map[int64]orders.Order }

func (s *stubOrders) Find(ctx context.Context, actor shared.Principal, id int64) (*orders.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	if actor.Role == shared.RoleSalesman && o.SalesmanID != actor.ID {
		return nil, orders.ErrForbidden
	}
	return &o, nil
}

type stubRecoveries struct{ byID map[int64]ledger.RecoveryRecord }

func (s *stubRecoveries) Recovery(ctx context.Context, actor shared.Principal, id int64) (*ledger.RecoveryRecord, error) {
	rec, ok := s.byID[id]
	if !ok {
		return nil, ledger.ErrRecoveryNotFound
	}
	if actor.Role == shared.RoleSalesman && rec.SalesmanID != actor.ID {
		return nil, ledger.ErrWrongRole
	}
	return &rec, nil
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
	orderID      = int64(20)
	recoveryID   = int64(30)
)

type fixture struct {
	receipts *memoryReceipts
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &memoryReceipts{byID: map[int64]*Receipt{}}
	svc := NewService(repo,
		&stubOrders{byID: map[int64]orders.Order{
			orderID: {
				ID:           orderID,
				ShopkeeperID: shopkeeperID,
				SalesmanID:   salesmanID,
				TotalAmount:  decimal.RequireFromString("300"),
				Status:       orders.StatusDelivered,
			},
		}},
		&stubRecoveries{byID: map[int64]ledger.RecoveryRecord{
			recoveryID: {
				ID:           recoveryID,
				ShopkeeperID: shopkeeperID,
				SalesmanID:   salesmanID,
				NetPayment:   decimal.RequireFromString("450"),
			},
		}},
		&stubAccounts{managed: map[int64][]int64{adminID: {salesmanID}}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{receipts: repo, svc: svc}
}

func admin() shared.Principal {
	return shared.Principal{ID: adminID, Role: shared.RoleAdmin}
}

func salesman() shared.Principal {
	return shared.Principal{ID: salesmanID, Role: shared.RoleSalesman}
}

func TestCreateCopiesPartiesFromOrder(t *testing.T) {
	fx := newFixture(t)

	rc, err := fx.svc.Create(context.Background(), salesman(), NewReceipt{
		Kind:    KindOrder,
		OrderID: orderID,
		Content: "RECEIPT #1\nChips 50g x30 .... 300",
	})
	require.NoError(t, err)
	require.Equal(t, StatusIssued, rc.Status)
	require.Equal(t, shopkeeperID, rc.ShopkeeperID)
	require.Equal(t, salesmanID, rc.SalesmanID)
	require.Equal(t, salesmanID, rc.PrintedBy)
	require.True(t, rc.TotalAmount.Equal(decimal.RequireFromString("300")))
	require.NotNil(t, rc.OrderID)
	require.Nil(t, rc.RecoveryID)
}

func TestCreateCopiesTotalFromRecovery(t *testing.T) {
	fx := newFixture(t)

	rc, err := fx.svc.Create(context.Background(), salesman(), NewReceipt{
		Kind:       KindRecovery,
		RecoveryID: recoveryID,
		Content:    "RECOVERY RECEIPT #1",
	})
	require.NoError(t, err)
	require.True(t, rc.TotalAmount.Equal(decimal.RequireFromString("450")))
	require.NotNil(t, rc.RecoveryID)
}

func TestCreateRejectsMissingReference(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, salesman(), NewReceipt{Kind: KindOrder, Content: "x"})
	require.ErrorIs(t, err, ErrMissingRef)

	_, err = fx.svc.Create(ctx, salesman(), NewReceipt{Kind: Kind("invoice"), Content: "x"})
	require.ErrorIs(t, err, ErrBadKind)

	_, err = fx.svc.Create(ctx, salesman(), NewReceipt{Kind: KindOrder, OrderID: 99, Content: "x"})
	require.ErrorIs(t, err, orders.ErrNotFound)
}

func TestCreateInheritsSourceVisibility(t *testing.T) {
	fx := newFixture(t)

	outsider := shared.Principal{ID: 77, Role: shared.RoleSalesman}
	_, err := fx.svc.Create(context.Background(), outsider, NewReceipt{
		Kind:    KindOrder,
		OrderID: orderID,
		Content: "x",
	})
	require.ErrorIs(t, err, orders.ErrForbidden)
}

func TestSetStatusAdminOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rc, err := fx.svc.Create(ctx, salesman(), NewReceipt{
		Kind:    KindOrder,
		OrderID: orderID,
		Content: "x",
	})
	require.NoError(t, err)

	_, err = fx.svc.SetStatus(ctx, salesman(), rc.ID, StatusVoided)
	require.ErrorIs(t, err, ErrForbidden)

	voided, err := fx.svc.SetStatus(ctx, admin(), rc.ID, StatusVoided)
	require.NoError(t, err)
	require.Equal(t, StatusVoided, voided.Status)

	_, err = fx.svc.SetStatus(ctx, admin(), rc.ID, Status("shredded"))
	require.ErrorIs(t, err, ErrBadStatus)
}

func TestListScopesToActor(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, salesman(), NewReceipt{
		Kind:    KindOrder,
		OrderID: orderID,
		Content: "x",
	})
	require.NoError(t, err)

	list, total, err := fx.svc.List(ctx, salesman(), Filter{}, 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)

	list, _, err = fx.svc.List(ctx, admin(), Filter{}, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// an admin with no salesmen sees nothing
	list, _, err = fx.svc.List(ctx, shared.Principal{ID: 88, Role: shared.RoleAdmin}, Filter{}, 20, 0)
	require.NoError(t, err)
	require.Empty(t, list)
}
