// Package ledger is the reconciliation core: the movement entry store, the
// per-tier stock ledger and the balance calculator that owns every
// shopkeeper pendingAmount transition.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// DistributionType identifies the tier hop of a distribution.
type DistributionType string

const (
	DistributionAdminToSalesman      DistributionType = "admin_to_salesman"
	DistributionSalesmanToShopkeeper DistributionType = "salesman_to_shopkeeper"
)

// IsValid reports whether the distribution type is known.
func (t DistributionType) IsValid() bool {
	return t == DistributionAdminToSalesman || t == DistributionSalesmanToShopkeeper
}

// DistributionStatus is the distribution lifecycle state.
type DistributionStatus string

const (
	DistributionPending   DistributionStatus = "pending"
	DistributionDelivered DistributionStatus = "delivered"
	DistributionReturned  DistributionStatus = "returned"
)

// CanTransitionTo enforces the pending→delivered | pending→returned machine;
// both outcomes are terminal.
func (s DistributionStatus) CanTransitionTo(next DistributionStatus) bool {
	if s != DistributionPending {
		return false
	}
	return next == DistributionDelivered || next == DistributionReturned
}

// Distribution records one tier-to-tier product transfer. TotalAmount is
// fixed at creation time and never recomputed on mutation.
type Distribution struct {
	ID            int64              `json:"id"`
	ProductID     int64              `json:"product_id"`
	FromID        int64              `json:"from_id"`
	ToID          int64              `json:"to_id"`
	Quantity      int64              `json:"quantity"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Type          DistributionType   `json:"distribution_type"`
	Status        DistributionStatus `json:"status"`
	Notes         string             `json:"notes,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	ReturnedAt    *time.Time         `json:"returned_at,omitempty"`
	ReturnReason  string             `json:"return_reason,omitempty"`
	StockReversed bool               `json:"stock_reversed"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// RecoveryType distinguishes cash-only collections from collections that
// also deliver goods.
type RecoveryType string

const (
	RecoveryPaymentOnly      RecoveryType = "payment_only"
	RecoveryPaymentWithItems RecoveryType = "payment_with_items"
)

// IsValid reports whether the recovery type is known.
func (t RecoveryType) IsValid() bool {
	return t == RecoveryPaymentOnly || t == RecoveryPaymentWithItems
}

// RecoveryStatus is the recovery lifecycle state.
type RecoveryStatus string

const (
	RecoveryStatusPending   RecoveryStatus = "pending"
	RecoveryStatusCompleted RecoveryStatus = "completed"
	RecoveryStatusCancelled RecoveryStatus = "cancelled"
)

// IsValid reports whether the recovery status is known.
func (s RecoveryStatus) IsValid() bool {
	return s == RecoveryStatusPending || s == RecoveryStatusCompleted || s == RecoveryStatusCancelled
}

// PaymentMethod enumerates accepted collection methods.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentUPI          PaymentMethod = "upi"
	PaymentOther        PaymentMethod = "other"
)

// IsValid reports whether the payment method is known.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCheque, PaymentUPI, PaymentOther:
		return true
	default:
		return false
	}
}

// RecoveryItem is one product delivered during a payment_with_items recovery.
type RecoveryItem struct {
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// BankDetails captures proof-of-payment data for non-cash methods.
type BankDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	ChequeNumber  string `json:"cheque_number,omitempty"`
}

// RecoveryRecord is one collection event against a shopkeeper's pending
// amount. Previous/NewPendingAmount snapshot the balance transition; the
// core financial fields are immutable after creation.
type RecoveryRecord struct {
	ID                    int64           `json:"id"`
	ShopkeeperID          int64           `json:"shopkeeper_id"`
	SalesmanID            int64           `json:"salesman_id"`
	Type                  RecoveryType    `json:"recovery_type"`
	AmountCollected       decimal.Decimal `json:"amount_collected"`
	PaymentMethod         PaymentMethod   `json:"payment_method"`
	Items                 []RecoveryItem  `json:"items,omitempty"`
	ItemsValue            decimal.Decimal `json:"items_value"`
	NetPayment            decimal.Decimal `json:"net_payment"`
	PreviousPendingAmount decimal.Decimal `json:"previous_pending_amount"`
	NewPendingAmount      decimal.Decimal `json:"new_pending_amount"`
	Status                RecoveryStatus  `json:"status"`
	Notes                 string          `json:"notes,omitempty"`
	RecoveryDate          time.Time       `json:"recovery_date"`
	RecoveryLocation      string          `json:"recovery_location,omitempty"`
	ReceiptNumber         string          `json:"receipt_number,omitempty"`
	BankDetails           *BankDetails    `json:"bank_details,omitempty"`
	ReversedAt            *time.Time      `json:"reversed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Reconciliation holds the derived money fields of a recovery.
type Reconciliation struct {
	ItemsValue       decimal.Decimal
	NetPayment       decimal.Decimal
	NewPendingAmount decimal.Decimal
}

// Reconcile computes the recovery money fields from the collected amount,
// the delivered items and the shopkeeper's prior balance:
//
//	itemsValue = Σ quantity × unitPrice
//	netPayment = amountCollected − itemsValue
//	newPending = max(0, previous − netPayment)
//
// netPayment may be negative when items are worth more than the cash
// collected; subtracting it then raises the pending amount. The floor only
// keeps the result from going below zero. That matches the system of record
// this ledger replaced and is deliberately preserved rather than corrected.
func Reconcile(amountCollected decimal.Decimal, items []RecoveryItem, previous decimal.Decimal) Reconciliation {
	itemsValue := decimal.Zero
	for _, item := range items {
		itemsValue = itemsValue.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	netPayment := amountCollected.Sub(itemsValue)
	newPending := previous.Sub(netPayment)
	if newPending.IsNegative() {
		newPending = decimal.Zero
	}
	return Reconciliation{
		ItemsValue:       itemsValue,
		NetPayment:       netPayment,
		NewPendingAmount: newPending,
	}
}

// pendingEventKind orders balance events that share a timestamp: the
// constants sort the same way the kind strings do in SQL.
const (
	pendingEventOrder    = "order"
	pendingEventRecovery = "recovery"
	pendingEventReversal = "reversal"
)

// pendingEvent is one balance-affecting entry in a shopkeeper's history.
// Amount is the order total for deliveries and the net payment for
// recoveries and reversals.
type pendingEvent struct {
	Kind   string
	Amount decimal.Decimal
}

// replayPendingAmount folds a chronological history the way the write paths
// applied it: a delivered order debits its total, each recovery applies the
// floored formula against the running balance, a reversal adds the net
// payment back with the same floor. A one-shot aggregate cannot substitute
// for this fold because the floor is applied per recovery, not once at the
// end.
func replayPendingAmount(events []pendingEvent) decimal.Decimal {
	bal := decimal.Zero
	for _, ev := range events {
		switch ev.Kind {
		case pendingEventOrder:
			bal = bal.Add(ev.Amount)
		case pendingEventRecovery:
			bal = bal.Sub(ev.Amount)
		case pendingEventReversal:
			bal = bal.Add(ev.Amount)
		}
		if bal.IsNegative() {
			bal = decimal.Zero
		}
	}
	return bal
}
