package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type recoveryItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createRecoveryRequest struct {
	ShopkeeperID     int64                 `json:"shopkeeper_id" validate:"required,gt=0"`
	SalesmanID       int64                 `json:"salesman_id"`
	Type             string                `json:"recovery_type" validate:"required,oneof=payment_only payment_with_items"`
	AmountCollected  decimal.Decimal       `json:"amount_collected"`
	PaymentMethod    string                `json:"payment_method" validate:"required,oneof=cash bank_transfer cheque upi other"`
	Items            []recoveryItemRequest `json:"items" validate:"dive"`
	Notes            string                `json:"notes" validate:"max=1000"`
	RecoveryDate     *time.Time            `json:"recovery_date"`
	RecoveryLocation string                `json:"recovery_location" validate:"max=255"`
	ReceiptNumber    string                `json:"receipt_number" validate:"max=100"`
	BankDetails      *BankDetails          `json:"bank_details"`
}

func (req createRecoveryRequest) toInput() NewRecovery {
	items := make([]NewRecoveryItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, NewRecoveryItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return NewRecovery{
		ShopkeeperID:     req.ShopkeeperID,
		SalesmanID:       req.SalesmanID,
		Type:             RecoveryType(req.Type),
		AmountCollected:  req.AmountCollected,
		PaymentMethod:    PaymentMethod(req.PaymentMethod),
		Items:            items,
		Notes:            req.Notes,
		RecoveryDate:     req.RecoveryDate,
		RecoveryLocation: req.RecoveryLocation,
		ReceiptNumber:    req.ReceiptNumber,
		BankDetails:      req.BankDetails,
	}
}

type updateRecoveryRequest struct {
	Status           *string `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	Notes            *string `json:"notes" validate:"omitempty,max=1000"`
	RecoveryLocation *string `json:"recovery_location" validate:"omitempty,max=255"`
}

type createDistributionRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	ToID      int64           `json:"to_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     string          `json:"notes" validate:"max=1000"`
}

type distributionStatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=delivered returned"`
	ReturnReason string `json:"return_reason" validate:"max=500"`
}

func recoveryFilterFromQuery(r *http.Request) RecoveryFilter {
	q := r.URL.Query()
	f := RecoveryFilter{
		Status:        RecoveryStatus(q.Get("status")),
		Type:          RecoveryType(q.Get("recovery_type")),
		PaymentMethod: PaymentMethod(q.Get("payment_method")),
	}
	f.ShopkeeperID, _ = strconv.ParseInt(q.Get("shopkeeper_id"), 10, 64)
	f.SalesmanID, _ = strconv.ParseInt(q.Get("salesman_id"), 10, 64)
	f.From = parseTimeParam(q.Get("from"))
	f.To = parseTimeParam(q.Get("to"))
	return f
}

func distributionFilterFromQuery(r *http.Request) DistributionFilter {
	q := r.URL.Query()
	f := DistributionFilter{
		Type:   DistributionType(q.Get("distribution_type")),
		Status: DistributionStatus(q.Get("status")),
	}
	f.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	f.FromID, _ = strconv.ParseInt(q.Get("from_id"), 10, 64)
	f.ToID, _ = strconv.ParseInt(q.Get("to_id"), 10, 64)
	f.From = parseTimeParam(q.Get("from"))
	f.To = parseTimeParam(q.Get("to"))
	return f
}

func parseTimeParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
