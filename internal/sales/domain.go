// Package sales keeps the salesman sales book: one row per sale with the
// commission carved out of it, feeding the profit and loss report. It is a
// bookkeeping record only; stock and pending balances move through the
// ledger and orders packages.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/ledger"
)

// PaymentStatus tracks how much of a sale has been settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid || s == PaymentPartial
}

// Record is one recorded sale. Commission is the salesman's cut of
// TotalAmount and Profit is what remains for the company.
type Record struct {
	ID            int64                `json:"id"`
	SalesmanID    int64                `json:"salesman_id"`
	ShopkeeperID  int64                `json:"shopkeeper_id"`
	ProductID     int64                `json:"product_id"`
	Quantity      int64                `json:"quantity"`
	UnitPrice     decimal.Decimal      `json:"unit_price"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	Commission    decimal.Decimal      `json:"commission"`
	Profit        decimal.Decimal      `json:"profit"`
	SaleDate      time.Time            `json:"sale_date"`
	PaymentStatus PaymentStatus        `json:"payment_status"`
	PaymentMethod ledger.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

var (
	ErrNotFound    = errors.New("sales: record not found")
	ErrForbidden   = errors.New("sales: not allowed for this account")
	ErrNotAssigned = errors.New("sales: shopkeeper is not assigned to this salesman")
	ErrBadQuantity = errors.New("sales: quantity must be positive")
	ErrBadStatus   = errors.New("sales: unknown payment status")
)
