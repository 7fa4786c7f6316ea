// Package accounts is the account directory: one Account entity with a role
// enum covers superadmins, admins, salesmen and shopkeepers.
package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/shared"
)

// Account represents a back office account. PendingAmount is only meaningful
// for shopkeepers and is mutated exclusively by the ledger service.
type Account struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Phone         string           `json:"phone,omitempty"`
	Address       string           `json:"address,omitempty"`
	Role          shared.Role      `json:"role"`
	IsActive      bool             `json:"is_active"`
	AssignedBy    *int64           `json:"assigned_by,omitempty"`
	PendingAmount decimal.Decimal  `json:"pending_amount"`
	CreditLimit   *decimal.Decimal `json:"credit_limit,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ErrWrongRole indicates an account exists but does not hold the expected role.
var ErrWrongRole = errors.New("accounts: account has the wrong role")

// ErrNotFound indicates a missing account.
var ErrNotFound = errors.New("accounts: account not found")
