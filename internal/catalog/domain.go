// Package catalog is the product and category directory: storefront browsing,
// admin CRUD and the warehouse stock counter consumed by the ledger.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable snack product. Stock is the admin/warehouse tier
// quantity; per-salesman and per-shopkeeper held quantities are derived from
// ledger movement records, never stored here.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	Stock       int64           `json:"stock"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Category groups products for storefront browsing.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrNotFound indicates a missing product or category.
var ErrNotFound = errors.New("catalog: not found")

// ErrStockExhausted indicates a warehouse decrement below zero.
var ErrStockExhausted = errors.New("catalog: insufficient warehouse stock")

// StockError carries the product and quantities of a failed decrement.
type StockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrStockExhausted }
