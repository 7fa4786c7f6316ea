package assignments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/shared"
)

type memoryAssignments struct {
	nextID int64
	rows   map[int64]*Assignment
}

func newMemoryAssignments() *memoryAssignments {
	return &memoryAssignments{nextID: 1, rows: map[int64]*Assignment{}}
}

func (m *memoryAssignments) Get(ctx context.Context, id int64) (*Assignment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAssignments) ListActive(ctx context.Context) ([]Assignment, error) {
	var out []Assignment
	for _, a := range m.rows {
		if a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryAssignments) ListBySalesman(ctx context.Context, salesmanID int64) ([]Assignment, error) {
	var out []Assignment
	for _, a := range m.rows {
		if a.IsActive && a.SalesmanID == salesmanID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryAssignments) ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error) {
	for _, a := range m.rows {
		if a.IsActive && a.SalesmanID == salesmanID && a.ShopkeeperID == shopkeeperID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAssignments) Create(ctx context.Context, a Assignment) (int64, error) {
	exists, _ := m.ActiveExists(ctx, a.SalesmanID, a.ShopkeeperID)
	if exists {
		return 0, ErrDuplicate
	}
	a.ID = m.nextID
	a.IsActive = true
	a.AssignedAt = time.Now()
	m.nextID++
	m.rows[a.ID] = &a
	return a.ID, nil
}

func (m *memoryAssignments) Revoke(ctx context.Context, id int64) error {
	a, ok := m.rows[id]
	if !ok || !a.IsActive {
		return ErrNotFound
	}
	a.IsActive = false
	return nil
}

type stubDirectory struct {
	accounts map[int64]*accounts.Account
}

func (s stubDirectory) FindByID(ctx context.Context, id int64) (*accounts.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return a, nil
}

func (s stubDirectory) FindByIDWithRole(ctx context.Context, id int64, role shared.Role) (*accounts.Account, error) {
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Role != role {
		return nil, accounts.ErrWrongRole
	}
	return a, nil
}

func fixtureService() (*Service, *memoryAssignments) {
	repo := newMemoryAssignments()
	dir := stubDirectory{accounts: map[int64]*accounts.Account{
		2: {ID: 2, Role: shared.RoleAdmin, IsActive: true},
		3: {ID: 3, Role: shared.RoleSalesman, IsActive: true},
		4: {ID: 4, Role: shared.RoleShopkeeper, IsActive: true},
		5: {ID: 5, Role: shared.RoleShopkeeper, IsActive: true},
	}}
	return NewService(repo, dir), repo
}

func TestAssignRejectsSecondActivePair(t *testing.T) {
	svc, _ := fixtureService()
	ctx := context.Background()

	first, err := svc.Assign(ctx, 3, 4, 2, "")
	require.NoError(t, err)
	require.True(t, first.IsActive)

	_, err = svc.Assign(ctx, 3, 4, 2, "again")
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestAssignChecksRoles(t *testing.T) {
	svc, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Assign(ctx, 4, 3, 2, "")
	require.ErrorIs(t, err, accounts.ErrWrongRole)

	_, err = svc.Assign(ctx, 3, 99, 2, "")
	require.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestRevokeAllowsReassignment(t *testing.T) {
	svc, _ := fixtureService()
	ctx := context.Background()

	first, err := svc.Assign(ctx, 3, 4, 2, "")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, first.ID))

	second, err := svc.Assign(ctx, 3, 4, 2, "re-engaged")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	active, err := svc.ListBySalesman(ctx, 3)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestAssignedShopkeepersResolvesAccounts(t *testing.T) {
	svc, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Assign(ctx, 3, 4, 2, "")
	require.NoError(t, err)
	_, err = svc.Assign(ctx, 3, 5, 2, "")
	require.NoError(t, err)

	shopkeepers, err := svc.AssignedShopkeepers(ctx, 3)
	require.NoError(t, err)
	require.Len(t, shopkeepers, 2)
	for _, sk := range shopkeepers {
		require.Equal(t, shared.RoleShopkeeper, sk.Role)
	}
}
