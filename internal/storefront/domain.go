// Package storefront serves the public snack shop: browsing is handled by
// catalog, checkout and fulfilment live here. Checkout debits warehouse
// stock in the same transaction that records the order.
package storefront

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of a store order.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// CanTransitionTo enforces processing→shipped→delivered with cancellation
// allowed until the order ships.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusProcessing:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered
	default:
		return false
	}
}

// Line is one purchased product, with the name denormalized so the order
// survives catalog edits.
type Line struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// StoreOrder is a retail order placed by an anonymous customer.
type StoreOrder struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	Lines           []Line          `json:"lines"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	StockRestored   bool            `json:"stock_restored"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var (
	ErrNotFound           = errors.New("storefront: order not found")
	ErrEmptyCart          = errors.New("storefront: cart needs at least one item")
	ErrProductUnavailable = errors.New("storefront: product is not available")
	ErrBadTransition      = errors.New("storefront: status transition not allowed")
)
