package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/ledger"
)

type recordingSender struct {
	orderIDs []int64
	emails   []string
}

func (r *recordingSender) SendReceipt(ctx context.Context, orderID int64, email string) error {
	r.orderIDs = append(r.orderIDs, orderID)
	r.emails = append(r.emails, email)
	return nil
}

func TestHandleSendReceiptTask(t *testing.T) {
	sender := &recordingSender{}
	handler := HandleSendReceiptTask(sender)

	task, err := NewSendReceiptTask(SendReceiptPayload{OrderID: 42, Email: "asha@example.com"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{42}, sender.orderIDs)
	require.Equal(t, []string{"asha@example.com"}, sender.emails)
}

func TestHandleSendReceiptTaskBadPayload(t *testing.T) {
	handler := HandleSendReceiptTask(&recordingSender{})
	err := handler(context.Background(), asynq.NewTask(TaskTypeSendReceipt, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubDrift struct {
	rows []ledger.DriftRow
	err  error
}

func (s stubDrift) PendingBalanceDrift(ctx context.Context) ([]ledger.DriftRow, error) {
	return s.rows, s.err
}

func TestIntegrityScanReportsDrift(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := NewIntegrityScanJob(stubDrift{rows: []ledger.DriftRow{
		{ShopkeeperID: 4, Stored: decimal.RequireFromString("700"), Derived: decimal.RequireFromString("650")},
	}}, logger, nil)

	require.NoError(t, job.Handle(context.Background(), NewIntegrityScanTask()))
}

func TestIntegrityScanUnconfigured(t *testing.T) {
	var job *IntegrityScanJob
	require.Error(t, job.Handle(context.Background(), NewIntegrityScanTask()))
}
