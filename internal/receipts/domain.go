// Package receipts archives printed receipts for trade orders and
// recoveries. Each print is a row of its own so reprints stay auditable,
// with the rendered content stored verbatim.
package receipts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind says which record a receipt was printed for.
type Kind string

const (
	KindOrder    Kind = "order"
	KindRecovery Kind = "recovery"
)

// Valid reports whether k is a known receipt kind.
func (k Kind) Valid() bool {
	return k == KindOrder || k == KindRecovery
}

// Status is the receipt lifecycle state. A voided receipt stays on file.
type Status string

const (
	StatusIssued Status = "issued"
	StatusVoided Status = "voided"
)

// Valid reports whether s is a known receipt status.
func (s Status) Valid() bool {
	return s == StatusIssued || s == StatusVoided
}

// Receipt is one archived print. Exactly one of OrderID and RecoveryID is
// set, matching Kind.
type Receipt struct {
	ID           int64           `json:"id"`
	Kind         Kind            `json:"receipt_type"`
	OrderID      *int64          `json:"order_id,omitempty"`
	RecoveryID   *int64          `json:"recovery_id,omitempty"`
	ShopkeeperID int64           `json:"shopkeeper_id"`
	SalesmanID   int64           `json:"salesman_id"`
	Content      string          `json:"receipt_content"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       Status          `json:"status"`
	PrintedBy    int64           `json:"printed_by"`
	PrintedAt    time.Time       `json:"printed_at"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

var (
	ErrNotFound   = errors.New("receipts: receipt not found")
	ErrForbidden  = errors.New("receipts: not allowed for this account")
	ErrBadKind    = errors.New("receipts: unknown receipt type")
	ErrBadStatus  = errors.New("receipts: unknown status")
	ErrMissingRef = errors.New("receipts: receipt needs the id of the record it was printed for")
)
