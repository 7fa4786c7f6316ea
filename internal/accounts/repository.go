package accounts

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/shared"
)

// ListFilter narrows account listings.
type ListFilter struct {
	Role       *shared.Role
	IsActive   *bool
	AssignedBy *int64
	Search     string
	Limit      int
	Offset     int
}

// NewAccount carries the fields needed to provision an account.
type NewAccount struct {
	Name         string
	Email        string
	Phone        string
	Address      string
	Role         shared.Role
	AssignedBy   *int64
	CreditLimit  *decimal.Decimal
	PasswordHash string
}

// Update carries optional account field updates.
type Update struct {
	Name        *string
	Phone       *string
	Address     *string
	CreditLimit *decimal.Decimal
	IsActive    *bool
}

// RepositoryPort defines data access for the account directory.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Account, error)
	GetWithRole(ctx context.Context, id int64, role shared.Role) (*Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, int, error)
	SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error)
	Create(ctx context.Context, acc NewAccount) (int64, error)
	Update(ctx context.Context, id int64, upd Update) error
}
