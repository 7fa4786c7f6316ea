// Package orders handles shopkeeper trade orders. An order claims salesman
// availability when placed and grows the shopkeeper's pending amount when
// delivered; the ledger package performs both balance-side effects.
package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Item is one ordered product line.
type Item struct {
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Order is a shopkeeper's trade order served by an assigned salesman.
type Order struct {
	ID           int64           `json:"id"`
	ShopkeeperID int64           `json:"shopkeeper_id"`
	SalesmanID   int64           `json:"salesman_id"`
	Items        []Item          `json:"items"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       Status          `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

var (
	ErrNotFound    = errors.New("orders: order not found")
	ErrNotPending  = errors.New("orders: order is no longer pending")
	ErrForbidden   = errors.New("orders: not allowed for this account")
	ErrEmptyOrder  = errors.New("orders: order needs at least one item")
	ErrBadQuantity = errors.New("orders: item quantity must be positive")
	ErrNotAssigned = errors.New("orders: shopkeeper is not assigned to this salesman")
)
