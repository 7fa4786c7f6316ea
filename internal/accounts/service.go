package accounts

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/snackline/snackline/internal/shared"
)

// Service handles account directory business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// FindByID returns the account or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id int64) (*Account, error) {
	return s.repo.Get(ctx, id)
}

// FindByIDWithRole returns the account only when it holds the expected role.
func (s *Service) FindByIDWithRole(ctx context.Context, id int64, role shared.Role) (*Account, error) {
	return s.repo.GetWithRole(ctx, id, role)
}

// List returns accounts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, int, error) {
	return s.repo.List(ctx, filter)
}

// SalesmenManagedBy returns ids of active salesmen managed by the admin.
func (s *Service) SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error) {
	return s.repo.SalesmenManagedBy(ctx, adminID)
}

// ManagesSalesman reports whether the admin provisioned the salesman.
func (s *Service) ManagesSalesman(ctx context.Context, adminID, salesmanID int64) (bool, error) {
	ids, err := s.repo.SalesmenManagedBy(ctx, adminID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == salesmanID {
			return true, nil
		}
	}
	return false, nil
}

// Provision creates a new account with a hashed password. AssignedBy records
// the admin that manages a salesman; it is required for salesman accounts.
func (s *Service) Provision(ctx context.Context, input NewAccount, password string) (*Account, error) {
	if !input.Role.IsValid() {
		return nil, ErrWrongRole
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || input.Name == "" {
		return nil, errors.New("accounts: name and email are required")
	}
	if input.Role == shared.RoleSalesman && input.AssignedBy == nil {
		return nil, errors.New("accounts: salesman requires a managing admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	input.PasswordHash = string(hash)

	id, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// UpdateAccount applies profile updates.
func (s *Service) UpdateAccount(ctx context.Context, id int64, upd Update) (*Account, error) {
	if err := s.repo.Update(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Deactivate soft-disables an account. Accounts referenced by ledger entries
// are never deleted.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	inactive := false
	return s.repo.Update(ctx, id, Update{IsActive: &inactive})
}
