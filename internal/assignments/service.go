package assignments

import (
	"context"

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/shared"
)

// AccountDirectory is the slice of the account directory this module needs.
type AccountDirectory interface {
	FindByID(ctx context.Context, id int64) (*accounts.Account, error)
	FindByIDWithRole(ctx context.Context, id int64, role shared.Role) (*accounts.Account, error)
}

// Service handles assignment business logic.
type Service struct {
	repo      RepositoryPort
	directory AccountDirectory
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, directory AccountDirectory) *Service {
	return &Service{repo: repo, directory: directory}
}

// Assign pairs a salesman with a shopkeeper. Both parties must hold their
// expected roles; a second active assignment for the pair fails with
// ErrDuplicate.
func (s *Service) Assign(ctx context.Context, salesmanID, shopkeeperID, assignedBy int64, notes string) (*Assignment, error) {
	if _, err := s.directory.FindByIDWithRole(ctx, salesmanID, shared.RoleSalesman); err != nil {
		return nil, err
	}
	if _, err := s.directory.FindByIDWithRole(ctx, shopkeeperID, shared.RoleShopkeeper); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, Assignment{
		SalesmanID:   salesmanID,
		ShopkeeperID: shopkeeperID,
		AssignedBy:   assignedBy,
		Notes:        notes,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Revoke soft-deactivates an assignment.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	return s.repo.Revoke(ctx, id)
}

// ListActive returns all active assignments.
func (s *Service) ListActive(ctx context.Context) ([]Assignment, error) {
	return s.repo.ListActive(ctx)
}

// ListBySalesman returns a salesman's active assignments.
func (s *Service) ListBySalesman(ctx context.Context, salesmanID int64) ([]Assignment, error) {
	return s.repo.ListBySalesman(ctx, salesmanID)
}

// ActiveExists reports whether the pair is actively assigned.
func (s *Service) ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error) {
	return s.repo.ActiveExists(ctx, salesmanID, shopkeeperID)
}

// AssignedShopkeepers resolves the shopkeeper accounts actively assigned to
// the salesman.
func (s *Service) AssignedShopkeepers(ctx context.Context, salesmanID int64) ([]accounts.Account, error) {
	list, err := s.repo.ListBySalesman(ctx, salesmanID)
	if err != nil {
		return nil, err
	}
	shopkeepers := make([]accounts.Account, 0, len(list))
	for _, a := range list {
		acc, err := s.directory.FindByID(ctx, a.ShopkeeperID)
		if err != nil {
			return nil, err
		}
		shopkeepers = append(shopkeepers, *acc)
	}
	return shopkeepers, nil
}
