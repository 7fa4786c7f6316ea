// Package assignments manages the salesman-shopkeeper pairing used to gate
// field-sales operations.
package assignments

import (
	"errors"
	"time"
)

// Assignment links a salesman to a shopkeeper. At most one active assignment
// may exist per pair; revocation flips IsActive, records are never deleted.
type Assignment struct {
	ID           int64     `json:"id"`
	SalesmanID   int64     `json:"salesman_id"`
	ShopkeeperID int64     `json:"shopkeeper_id"`
	AssignedBy   int64     `json:"assigned_by"`
	AssignedAt   time.Time `json:"assigned_at"`
	IsActive     bool      `json:"is_active"`
	Notes        string    `json:"notes,omitempty"`
}

var (
	// ErrNotFound indicates a missing assignment.
	ErrNotFound = errors.New("assignments: not found")
	// ErrDuplicate indicates an active assignment already exists for the pair.
	ErrDuplicate = errors.New("assignments: active assignment already exists")
)
