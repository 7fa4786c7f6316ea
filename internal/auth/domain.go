// Package auth resolves opaque bearer tokens into authenticated principals.
// Domain modules never see tokens, only shared.Principal.
package auth

import (
	"time"

	"github.com/snackline/snackline/internal/shared"
)

// Credential is the login-facing projection of an account.
type Credential struct {
	ID           int64
	Email        string
	Name         string
	Role         shared.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
