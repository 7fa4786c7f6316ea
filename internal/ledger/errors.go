package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRecoveryNotFound     = errors.New("recovery not found")
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInactive      = errors.New("account is not active")
	ErrWrongRole            = errors.New("account role not valid for this movement")
	ErrNotAssigned          = errors.New("shopkeeper is not assigned to this salesman")
	ErrNotManaged           = errors.New("salesman is not managed by this admin")
	ErrAlreadyReversed      = errors.New("recovery already reversed")
	ErrNotReversible        = errors.New("distribution status does not permit this transition")
	ErrImmutableRecovery    = errors.New("financial fields of a recovery cannot be changed")
)

// InsufficientStockError reports a stock check failure at a ledger tier.
// Tier is "warehouse" or "salesman".
type InsufficientStockError struct {
	Tier      string
	ProductID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s stock for product %d: have %d, need %d", e.Tier, e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) HTTPStatus() int { return http.StatusConflict }

func (e *InsufficientStockError) ErrorCode() string { return "insufficient_stock" }
