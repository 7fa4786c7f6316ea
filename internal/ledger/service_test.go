package ledger

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

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/shared"
)

type memoryLedger struct {
	mu            sync.Mutex
	parties       map[int64]*PartyRow
	warehouse     map[int64]int64
	recoveries    map[int64]*RecoveryRecord
	distributions map[int64]*Distribution
	nextRecovery  int64
	nextDist      int64
	locked        []int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		parties:       map[int64]*PartyRow{},
		warehouse:     map[int64]int64{},
		recoveries:    map[int64]*RecoveryRecord{},
		distributions: map[int64]*Distribution{},
	}
}

// WithTxRetry serializes callers on one mutex, which models the row locks
// closely enough for service level behavior.
func (m *memoryLedger) WithTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(nil)
}

func (m *memoryLedger) GetAccountForUpdate(ctx context.Context, _ pgx.Tx, id int64) (PartyRow, error) {
	p, ok := m.parties[id]
	if !ok {
		return PartyRow{}, ErrAccountNotFound
	}
	m.locked = append(m.locked, id)
	return *p, nil
}

func (m *memoryLedger) SetPendingAmount(ctx context.Context, _ pgx.Tx, accountID int64, amount decimal.Decimal) error {
	p, ok := m.parties[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	p.PendingAmount = amount
	return nil
}

func (m *memoryLedger) AdjustWarehouseStock(ctx context.Context, _ pgx.Tx, productID, delta int64) error {
	after := m.warehouse[productID] + delta
	if after < 0 {
		return &InsufficientStockError{Tier: "warehouse", ProductID: productID, Available: m.warehouse[productID], Requested: -delta}
	}
	m.warehouse[productID] = after
	return nil
}

func (m *memoryLedger) SalesmanInbound(ctx context.Context, _ pgx.Tx, salesmanID, productID int64) (int64, error) {
	var total int64
	for _, d := range m.distributions {
		if d.Type == DistributionAdminToSalesman && d.ToID == salesmanID && d.ProductID == productID && d.Status == DistributionDelivered {
			total += d.Quantity
		}
	}
	return total, nil
}

func (m *memoryLedger) SalesmanOutbound(ctx context.Context, _ pgx.Tx, salesmanID, productID int64) (int64, error) {
	var total int64
	for _, d := range m.distributions {
		if d.Type == DistributionSalesmanToShopkeeper && d.FromID == salesmanID && d.ProductID == productID &&
			(d.Status == DistributionPending || d.Status == DistributionDelivered) {
			total += d.Quantity
		}
	}
	for _, rec := range m.recoveries {
		if rec.SalesmanID != salesmanID || rec.Status != RecoveryStatusCompleted || rec.ReversedAt != nil {
			continue
		}
		for _, item := range rec.Items {
			if item.ProductID == productID {
				total += item.Quantity
			}
		}
	}
	return total, nil
}

func (m *memoryLedger) InsertDistribution(ctx context.Context, _ pgx.Tx, d *Distribution) error {
	m.nextDist++
	d.ID = m.nextDist
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	clone := *d
	m.distributions[d.ID] = &clone
	return nil
}

func (m *memoryLedger) InsertRecovery(ctx context.Context, _ pgx.Tx, rec *RecoveryRecord) error {
	m.nextRecovery++
	rec.ID = m.nextRecovery
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	clone := *rec
	m.recoveries[rec.ID] = &clone
	return nil
}

func (m *memoryLedger) GetRecoveryForUpdate(ctx context.Context, _ pgx.Tx, id int64) (RecoveryRecord, error) {
	rec, ok := m.recoveries[id]
	if !ok {
		return RecoveryRecord{}, ErrRecoveryNotFound
	}
	return *rec, nil
}

func (m *memoryLedger) GetDistributionForUpdate(ctx context.Context, _ pgx.Tx, id int64) (Distribution, error) {
	d, ok := m.distributions[id]
	if !ok {
		return Distribution{}, ErrDistributionNotFound
	}
	return *d, nil
}

func (m *memoryLedger) MarkRecoveryReversed(ctx context.Context, _ pgx.Tx, id int64, at time.Time) error {
	rec, ok := m.recoveries[id]
	if !ok {
		return ErrRecoveryNotFound
	}
	if rec.ReversedAt != nil {
		return ErrAlreadyReversed
	}
	rec.ReversedAt = &at
	rec.Status = RecoveryStatusCancelled
	return nil
}

func (m *memoryLedger) UpdateDistributionStatus(ctx context.Context, _ pgx.Tx, d *Distribution) error {
	stored, ok := m.distributions[d.ID]
	if !ok {
		return ErrDistributionNotFound
	}
	stored.Status = d.Status
	stored.DeliveredAt = d.DeliveredAt
	stored.ReturnedAt = d.ReturnedAt
	stored.ReturnReason = d.ReturnReason
	return nil
}

func (m *memoryLedger) MarkDistributionStockReversed(ctx context.Context, _ pgx.Tx, id int64) (bool, error) {
	d, ok := m.distributions[id]
	if !ok {
		return false, ErrDistributionNotFound
	}
	if d.StockReversed {
		return false, nil
	}
	d.StockReversed = true
	return true, nil
}

func (m *memoryLedger) UpdateRecoveryAnnotations(ctx context.Context, _ pgx.Tx, id int64, status *RecoveryStatus, notes, location *string) (RecoveryRecord, error) {
	rec, ok := m.recoveries[id]
	if !ok {
		return RecoveryRecord{}, ErrRecoveryNotFound
	}
	if status != nil {
		rec.Status = *status
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if location != nil {
		rec.RecoveryLocation = *location
	}
	return *rec, nil
}

func (m *memoryLedger) GetRecovery(ctx context.Context, id int64) (RecoveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetRecoveryForUpdate(ctx, nil, id)
}

func (m *memoryLedger) ListRecoveries(ctx context.Context, f RecoveryFilter, limit, offset int) ([]RecoveryRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []RecoveryRecord{}
	for _, rec := range m.recoveries {
		if f.SalesmanID != 0 && rec.SalesmanID != f.SalesmanID {
			continue
		}
		if f.ShopkeeperID != 0 && rec.ShopkeeperID != f.ShopkeeperID {
			continue
		}
		if len(f.SalesmanIDs) > 0 && !containsID(f.SalesmanIDs, rec.SalesmanID) {
			continue
		}
		matched = append(matched, *rec)
	}
	return matched, len(matched), nil
}

func (m *memoryLedger) GetDistribution(ctx context.Context, id int64) (Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetDistributionForUpdate(ctx, nil, id)
}

func (m *memoryLedger) ListDistributions(ctx context.Context, f DistributionFilter, limit, offset int) ([]Distribution, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []Distribution{}
	for _, d := range m.distributions {
		if f.PartyID != 0 && d.FromID != f.PartyID && d.ToID != f.PartyID {
			continue
		}
		if len(f.PartyIDs) > 0 && !containsID(f.PartyIDs, d.FromID) && !containsID(f.PartyIDs, d.ToID) {
			continue
		}
		matched = append(matched, *d)
	}
	return matched, len(matched), nil
}

func (m *memoryLedger) RecoveryStats(ctx context.Context, f RecoveryFilter) (RecoveryStats, error) {
	return RecoveryStats{}, nil
}

func (m *memoryLedger) DistributionStats(ctx context.Context, f DistributionFilter) (DistributionStats, error) {
	return DistributionStats{}, nil
}

func (m *memoryLedger) MonthlyRecoveryTrend(ctx context.Context, f RecoveryFilter, months int) ([]MonthlyPoint, error) {
	return nil, nil
}

func (m *memoryLedger) PendingBalanceDrift(ctx context.Context) ([]DriftRow, error) {
	return nil, nil
}

type memoryAccounts struct {
	byID map[int64]accounts.Account
}

func (m *memoryAccounts) FindByID(ctx context.Context, id int64) (*accounts.Account, error) {
	acc, ok := m.byID[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return &acc, nil
}

func (m *memoryAccounts) ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error) {
	acc, ok := m.byID[salesmanID]
	if !ok || acc.Role != shared.RoleSalesman {
		return false, nil
	}
	return acc.AssignedBy != nil && *acc.AssignedBy == adminID, nil
}

func (m *memoryAccounts) SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error) {
	ids := []int64{}
	for id, acc := range m.byID {
		if acc.Role == shared.RoleSalesman && acc.AssignedBy != nil && *acc.AssignedBy == adminID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memoryAssignments struct {
	active map[[2]int64]bool
	shops  *memoryAccounts
}

func (m *memoryAssignments) ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error) {
	return m.active[[2]int64{salesmanID, shopkeeperID}], nil
}

func (m *memoryAssignments) AssignedShopkeepers(ctx context.Context, salesmanID int64) ([]accounts.Account, error) {
	result := []accounts.Account{}
	for pair, ok := range m.active {
		if ok && pair[0] == salesmanID {
			if acc, found := m.shops.byID[pair[1]]; found {
				result = append(result, acc)
			}
		}
	}
	return result, nil
}

type memoryProducts struct {
	byID map[int64]catalog.Product
}

func (m *memoryProducts) FindByID(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

type fixture struct {
	ledger      *memoryLedger
	accounts    *memoryAccounts
	assignments *memoryAssignments
	bumper      *countingBumper
	svc         *BalanceCalculator
}

type countingBumper struct{ n int }

func (b *countingBumper) Bump(ctx context.Context) error {
	b.n++
	return nil
}

const (
	superadminID = int64(1)
	adminID      = int64(2)
	salesmanID   = int64(3)
	shopkeeperID = int64(4)
	productID    = int64(10)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T, pending string) *fixture {
	t.Helper()
	ml := newMemoryLedger()
	ml.parties[adminID] = &PartyRow{ID: adminID, Role: "admin", IsActive: true}
	ml.parties[salesmanID] = &PartyRow{ID: salesmanID, Role: "salesman", IsActive: true}
	ml.parties[shopkeeperID] = &PartyRow{ID: shopkeeperID, Role: "shopkeeper", PendingAmount: dec(pending), IsActive: true}
	ml.warehouse[productID] = 100

	admin := adminID
	acc := &memoryAccounts{byID: map[int64]accounts.Account{
		adminID:      {ID: adminID, Role: shared.RoleAdmin, IsActive: true},
		salesmanID:   {ID: salesmanID, Role: shared.RoleSalesman, IsActive: true, AssignedBy: &admin},
		shopkeeperID: {ID: shopkeeperID, Role: shared.RoleShopkeeper, IsActive: true, PendingAmount: dec(pending)},
	}}
	asg := &memoryAssignments{
		active: map[[2]int64]bool{{salesmanID, shopkeeperID}: true},
		shops:  acc,
	}
	products := &memoryProducts{byID: map[int64]catalog.Product{
		productID: {ID: productID, Name: "Chips 50g", Price: dec("10"), Stock: 100, IsActive: true},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bumper := &countingBumper{}
	return &fixture{
		ledger:      ml,
		accounts:    acc,
		assignments: asg,
		bumper:      bumper,
		svc:         NewBalanceCalculator(ml, acc, asg, products, nil, nil, bumper, logger),
	}
}

func salesman() shared.Principal {
	return shared.Principal{ID: salesmanID, Role: shared.RoleSalesman}
}

func admin() shared.Principal {
	return shared.Principal{ID: adminID, Role: shared.RoleAdmin}
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name       string
		collected  string
		items      []RecoveryItem
		previous   string
		wantNet    string
		wantNew    string
	}{
		{name: "payment only", collected: "300", previous: "1000", wantNet: "300", wantNew: "700"},
		{name: "with items", collected: "500", previous: "1000",
			items:   []RecoveryItem{{ProductID: productID, Quantity: 20, UnitPrice: dec("10")}},
			wantNet: "300", wantNew: "700"},
		{name: "floors at zero", collected: "1500", previous: "1000", wantNet: "1500", wantNew: "0"},
		{name: "negative net raises pending", collected: "50", previous: "100",
			items:   []RecoveryItem{{ProductID: productID, Quantity: 20, UnitPrice: dec("10")}},
			wantNet: "-150", wantNew: "250"},
		{name: "items only", collected: "0", previous: "100",
			items:   []RecoveryItem{{ProductID: productID, Quantity: 5, UnitPrice: dec("10")}},
			wantNet: "-50", wantNew: "150"},
		{name: "zero previous", collected: "200", previous: "0", wantNet: "200", wantNew: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reconcile(dec(tc.collected), tc.items, dec(tc.previous))
			require.True(t, got.NetPayment.Equal(dec(tc.wantNet)), "net payment %s", got.NetPayment)
			require.True(t, got.NewPendingAmount.Equal(dec(tc.wantNew)), "new pending %s", got.NewPendingAmount)
		})
	}
}

func TestRecordRecoveryPaymentOnly(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("300"),
		PaymentMethod:   PaymentCash,
	})
	require.NoError(t, err)
	require.True(t, rec.PreviousPendingAmount.Equal(dec("1000")))
	require.True(t, rec.NewPendingAmount.Equal(dec("700")))
	require.Equal(t, RecoveryStatusCompleted, rec.Status)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("700")))
}

func TestRecordRecoveryRequiresAssignment(t *testing.T) {
	fx := newFixture(t, "1000")
	fx.assignments.active = map[[2]int64]bool{}

	_, err := fx.svc.RecordRecovery(context.Background(), salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
	})
	require.ErrorIs(t, err, ErrNotAssigned)
}

func TestRecordRecoveryRejectsWrongRole(t *testing.T) {
	fx := newFixture(t, "0")
	fx.assignments.active[[2]int64{salesmanID, adminID}] = true

	_, err := fx.svc.RecordRecovery(context.Background(), salesman(), NewRecovery{
		ShopkeeperID:    adminID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
	})
	require.ErrorIs(t, err, ErrWrongRole)
}

func deliverToSalesman(t *testing.T, fx *fixture, qty int64) {
	t.Helper()
	ctx := context.Background()
	d, err := fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  qty,
		Type:      DistributionAdminToSalesman,
	})
	require.NoError(t, err)
	_, err = fx.svc.SetDistributionStatus(ctx, salesman(), d.ID, DistributionDelivered, "")
	require.NoError(t, err)
}

func TestRecoveryWithItemsChecksSalesmanStock(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	_, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("500"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 40}},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "salesman", stockErr.Tier)
	require.Equal(t, int64(30), stockErr.Available)
	// balance untouched on failure
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("1000")))

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("500"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 20}},
	})
	require.NoError(t, err)
	require.True(t, rec.ItemsValue.Equal(dec("200")))
	require.True(t, rec.NetPayment.Equal(dec("300")))
	require.True(t, rec.NewPendingAmount.Equal(dec("700")))

	available, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(10), available)
}

func TestReverseRecoveryRestoresBalanceOnce(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("500"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 20}},
	})
	require.NoError(t, err)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("700")))

	// only the managing admin may undo
	_, err = fx.svc.ReverseRecovery(ctx, salesman(), rec.ID)
	require.ErrorIs(t, err, ErrWrongRole)

	reversed, err := fx.svc.ReverseRecovery(ctx, admin(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, reversed.ReversedAt)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("1000")))

	// items go back to salesman availability without a stock write
	available, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(30), available)

	_, err = fx.svc.ReverseRecovery(ctx, admin(), rec.ID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("1000")))
}

func TestConcurrentRecoveriesCommute(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	record := func(amount string) error {
		_, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
			ShopkeeperID:    shopkeeperID,
			Type:            RecoveryPaymentOnly,
			AmountCollected: dec(amount),
			PaymentMethod:   PaymentCash,
		})
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	amounts := []string{"300", "450"}
	for i := range amounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = record(amounts[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("250")),
		"final pending %s", fx.ledger.parties[shopkeeperID].PendingAmount)
}

func TestAdminToSalesmanDebitsWarehouse(t *testing.T) {
	fx := newFixture(t, "0")
	ctx := context.Background()

	d, err := fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  30,
		Type:      DistributionAdminToSalesman,
	})
	require.NoError(t, err)
	require.Equal(t, DistributionPending, d.Status)
	require.True(t, d.TotalAmount.Equal(dec("300")))
	require.Equal(t, int64(70), fx.ledger.warehouse[productID])

	_, err = fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  80,
		Type:      DistributionAdminToSalesman,
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "warehouse", stockErr.Tier)
	require.Equal(t, int64(70), fx.ledger.warehouse[productID])
}

func TestReturnedAdminToSalesmanCreditsWarehouseOnce(t *testing.T) {
	fx := newFixture(t, "0")
	ctx := context.Background()

	d, err := fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  30,
		Type:      DistributionAdminToSalesman,
	})
	require.NoError(t, err)
	require.Equal(t, int64(70), fx.ledger.warehouse[productID])

	returned, err := fx.svc.SetDistributionStatus(ctx, admin(), d.ID, DistributionReturned, "damaged in transit")
	require.NoError(t, err)
	require.Equal(t, DistributionReturned, returned.Status)
	require.Equal(t, int64(100), fx.ledger.warehouse[productID])

	// returned is terminal
	_, err = fx.svc.SetDistributionStatus(ctx, admin(), d.ID, DistributionDelivered, "")
	require.ErrorIs(t, err, ErrNotReversible)
	require.Equal(t, int64(100), fx.ledger.warehouse[productID])
}

func TestSalesmanToShopkeeperClaimsAvailability(t *testing.T) {
	fx := newFixture(t, "0")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	d, err := fx.svc.RecordDistribution(ctx, salesman(), NewDistribution{
		ProductID: productID,
		ToID:      shopkeeperID,
		Quantity:  20,
		Type:      DistributionSalesmanToShopkeeper,
	})
	require.NoError(t, err)

	available, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(10), available)

	// warehouse is untouched by the salesman tier
	require.Equal(t, int64(70), fx.ledger.warehouse[productID])

	_, err = fx.svc.RecordDistribution(ctx, salesman(), NewDistribution{
		ProductID: productID,
		ToID:      shopkeeperID,
		Quantity:  15,
		Type:      DistributionSalesmanToShopkeeper,
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "salesman", stockErr.Tier)

	// a return releases the claim
	_, err = fx.svc.SetDistributionStatus(ctx, salesman(), d.ID, DistributionReturned, "shop closed")
	require.NoError(t, err)
	available, err = fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(30), available)
}

func TestRecoveryListScoping(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	_, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
	})
	require.NoError(t, err)

	// the managing admin sees the salesman's recoveries
	list, total, err := fx.svc.Recoveries(ctx, admin(), RecoveryFilter{}, 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)

	// an admin managing nobody sees nothing
	stranger := shared.Principal{ID: 99, Role: shared.RoleAdmin}
	list, total, err = fx.svc.Recoveries(ctx, stranger, RecoveryFilter{}, 20, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	// the shopkeeper sees their own
	shop := shared.Principal{ID: shopkeeperID, Role: shared.RoleShopkeeper}
	_, total, err = fx.svc.Recoveries(ctx, shop, RecoveryFilter{}, 20, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestPendingShopkeepers(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	pending, err := fx.svc.PendingShopkeepers(ctx, salesman(), salesmanID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, shopkeeperID, pending[0].ID)

	// another salesman cannot peek
	other := shared.Principal{ID: 77, Role: shared.RoleSalesman}
	_, err = fx.svc.PendingShopkeepers(ctx, other, salesmanID)
	require.ErrorIs(t, err, ErrWrongRole)
}

func TestAmendRecoveryKeepsMoneyImmutable(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
	})
	require.NoError(t, err)

	notes := "collected at the market stall"
	updated, err := fx.svc.AmendRecovery(ctx, admin(), rec.ID, RecoveryUpdate{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, notes, updated.Notes)
	require.True(t, updated.AmountCollected.Equal(rec.AmountCollected))
	require.True(t, updated.NewPendingAmount.Equal(rec.NewPendingAmount))

	// annotation edits are admin scope, like reversal
	_, err = fx.svc.AmendRecovery(ctx, salesman(), rec.ID, RecoveryUpdate{Notes: &notes})
	require.ErrorIs(t, err, ErrWrongRole)
	shop := shared.Principal{ID: shopkeeperID, Role: shared.RoleShopkeeper}
	_, err = fx.svc.AmendRecovery(ctx, shop, rec.ID, RecoveryUpdate{Notes: &notes})
	require.ErrorIs(t, err, ErrWrongRole)

	_, err = fx.svc.ReverseRecovery(ctx, admin(), rec.ID)
	require.NoError(t, err)
	_, err = fx.svc.AmendRecovery(ctx, admin(), rec.ID, RecoveryUpdate{Notes: &notes})
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestAmendRecoveryCannotCancelWithoutReversal(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("500"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 20}},
	})
	require.NoError(t, err)

	before, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(10), before)

	cancelled := RecoveryStatusCancelled
	_, err = fx.svc.AmendRecovery(ctx, admin(), rec.ID, RecoveryUpdate{Status: &cancelled})
	require.ErrorIs(t, err, ErrImmutableRecovery)

	// the flip never lands, so neither stock nor balance moved
	after, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(10), after)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("700")))

	got, err := fx.svc.Recovery(ctx, admin(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, RecoveryStatusCompleted, got.Status)
	require.Nil(t, got.ReversedAt)
}

func TestOverpaymentFloorsPendingAtZero(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("1200"),
		PaymentMethod:   PaymentCash,
	})
	require.NoError(t, err)
	require.True(t, rec.NetPayment.Equal(dec("1200")))
	require.True(t, rec.NewPendingAmount.Equal(dec("0")))
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("0")))
}

func TestReverseRecoveryFromFlooredZero(t *testing.T) {
	fx := newFixture(t, "300")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	rec, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("400"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 10}},
	})
	require.NoError(t, err)
	require.True(t, rec.NetPayment.Equal(dec("300")))
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("0")))

	_, err = fx.svc.ReverseRecovery(ctx, admin(), rec.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.parties[shopkeeperID].PendingAmount.Equal(dec("300")))

	available, err := fx.svc.SalesmanAvailability(ctx, salesman(), salesmanID, productID)
	require.NoError(t, err)
	require.Equal(t, int64(30), available)
}

func TestDistributionDrainsWarehouseExactly(t *testing.T) {
	fx := newFixture(t, "0")
	ctx := context.Background()

	_, err := fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  100,
		Type:      DistributionAdminToSalesman,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), fx.ledger.warehouse[productID])

	_, err = fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  1,
		Type:      DistributionAdminToSalesman,
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(0), stockErr.Available)
	require.Equal(t, int64(1), stockErr.Requested)
}

func TestAvailabilityChecksLockSalesmanRow(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()
	deliverToSalesman(t, fx, 30)

	fx.ledger.locked = nil
	_, err := fx.svc.RecordDistribution(ctx, salesman(), NewDistribution{
		ProductID: productID,
		ToID:      shopkeeperID,
		Quantity:  5,
		Type:      DistributionSalesmanToShopkeeper,
	})
	require.NoError(t, err)
	require.Contains(t, fx.ledger.locked, salesmanID)

	fx.ledger.locked = nil
	_, err = fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentWithItems,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
		Items:           []NewRecoveryItem{{ProductID: productID, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Contains(t, fx.ledger.locked, salesmanID)
	require.Contains(t, fx.ledger.locked, shopkeeperID)
}

func TestReplayPendingAmountFloorsPerRecovery(t *testing.T) {
	// order 100 delivered, a 300 recovery floors to zero, then order 200:
	// the running balance is 200, not GREATEST of the lifetime sums.
	derived := replayPendingAmount([]pendingEvent{
		{Kind: pendingEventOrder, Amount: dec("100")},
		{Kind: pendingEventRecovery, Amount: dec("300")},
		{Kind: pendingEventOrder, Amount: dec("200")},
	})
	require.True(t, derived.Equal(dec("200")), "derived %s", derived)

	// a reversal restores the net payment additively
	derived = replayPendingAmount([]pendingEvent{
		{Kind: pendingEventOrder, Amount: dec("500")},
		{Kind: pendingEventRecovery, Amount: dec("300")},
		{Kind: pendingEventReversal, Amount: dec("300")},
	})
	require.True(t, derived.Equal(dec("500")), "derived %s", derived)

	require.True(t, replayPendingAmount(nil).Equal(dec("0")))
}

func TestCommittedWritesBumpDashboardCache(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	_, err := fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("100"),
		PaymentMethod:   PaymentCash,
	})
	require.NoError(t, err)
	require.Equal(t, 1, fx.bumper.n)

	d, err := fx.svc.RecordDistribution(ctx, admin(), NewDistribution{
		ProductID: productID,
		ToID:      salesmanID,
		Quantity:  10,
		Type:      DistributionAdminToSalesman,
	})
	require.NoError(t, err)
	require.Equal(t, 2, fx.bumper.n)

	_, err = fx.svc.SetDistributionStatus(ctx, salesman(), d.ID, DistributionDelivered, "")
	require.NoError(t, err)
	require.Equal(t, 3, fx.bumper.n)

	// a rejected write leaves the cache version alone
	_, err = fx.svc.RecordRecovery(ctx, salesman(), NewRecovery{
		ShopkeeperID:    shopkeeperID,
		Type:            RecoveryPaymentOnly,
		AmountCollected: dec("-5"),
		PaymentMethod:   PaymentCash,
	})
	require.Error(t, err)
	require.Equal(t, 3, fx.bumper.n)
}
