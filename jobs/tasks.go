// Package jobs holds the Asynq task definitions and handlers for background
// work: receipt emails, the nightly ledger integrity scan and the analytics
// cache warmup.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendReceipt emails an order receipt to a store customer.
	TaskTypeSendReceipt = "mail:receipt"
	// TaskTypeIntegrityScan replays the entry history against stored
	// shopkeeper balances.
	TaskTypeIntegrityScan = "ledger:integrity_scan"
	// TaskTypeAnalyticsWarmup rebuilds the dashboard cache.
	TaskTypeAnalyticsWarmup = "analytics:warmup"
)

// SendReceiptPayload identifies the store order to send a receipt for.
type SendReceiptPayload struct {
	OrderID int64  `json:"order_id"`
	Email   string `json:"email"`
}

// NewSendReceiptTask constructs a receipt email task.
func NewSendReceiptTask(payload SendReceiptPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendReceipt, data), nil
}

// NewIntegrityScanTask constructs an integrity scan task with no payload.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIntegrityScan, nil)
}

// NewAnalyticsWarmupTask constructs a cache warmup task with no payload.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeAnalyticsWarmup, nil)
}

// ReceiptSender delivers receipt emails. The SMTP integration lives behind
// this interface so the handler can run in tests.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, orderID int64, email string) error
}

// LogReceiptSender writes receipts to the log instead of sending mail.
// TODO(mail): replace with the Mailpit SMTP relay once it is provisioned.
type LogReceiptSender struct {
	Logger *slog.Logger
}

// SendReceipt records the receipt in the log.
func (s LogReceiptSender) SendReceipt(ctx context.Context, orderID int64, email string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "receipt sent",
		slog.Int64("order_id", orderID),
		slog.String("email", email))
	return nil
}

// HandleSendReceiptTask processes TaskTypeSendReceipt tasks.
func HandleSendReceiptTask(sender ReceiptSender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendReceiptPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if sender == nil || payload.Email == "" {
			return nil
		}
		return sender.SendReceipt(ctx, payload.OrderID, payload.Email)
	}
}
