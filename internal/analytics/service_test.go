package analytics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/snackline/snackline/internal/ledger"
)

type countingRepo struct {
	calls atomic.Int64
}

func (c *countingRepo) TotalOutstanding(ctx context.Context) (Outstanding, error) {
	c.calls.Add(1)
	return Outstanding{Total: decimal.RequireFromString("1250.50"), Shopkeepers: 3}, nil
}

func (c *countingRepo) TopDebtors(ctx context.Context, limit int) ([]Debtor, error) {
	return []Debtor{{ShopkeeperID: 4, Name: "Corner Store", PendingAmount: decimal.RequireFromString("700")}}, nil
}

type stubStats struct{}

func (stubStats) RecoveryStats(ctx context.Context, f ledger.RecoveryFilter) (ledger.RecoveryStats, error) {
	return ledger.RecoveryStats{TotalRecoveries: 12, TotalCollected: decimal.RequireFromString("3400")}, nil
}

func (stubStats) DistributionStats(ctx context.Context, f ledger.DistributionFilter) (ledger.DistributionStats, error) {
	return ledger.DistributionStats{TotalDistributions: 8, Delivered: 6}, nil
}

func (stubStats) MonthlyRecoveryTrend(ctx context.Context, f ledger.RecoveryFilter, months int) ([]ledger.MonthlyPoint, error) {
	return []ledger.MonthlyPoint{{Year: 2026, Month: time.August, Count: 5, Collected: decimal.RequireFromString("900")}}, nil
}

func newCachedService(t *testing.T) (*countingRepo, *Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &countingRepo{}
	return repo, NewService(repo, stubStats{}, NewCache(client, time.Minute))
}

func TestOverviewCaches(t *testing.T) {
	repo, svc := newCachedService(t)
	ctx := context.Background()

	first, err := svc.Overview(ctx, 6)
	require.NoError(t, err)
	require.True(t, first.Outstanding.Total.Equal(decimal.RequireFromString("1250.50")))
	require.Equal(t, int64(12), first.Recoveries.TotalRecoveries)
	require.Len(t, first.TopDebtors, 1)

	second, err := svc.Overview(ctx, 6)
	require.NoError(t, err)
	require.True(t, second.Outstanding.Total.Equal(first.Outstanding.Total))
	require.Equal(t, int64(1), repo.calls.Load(), "second read should come from cache")
}

func TestInvalidateForcesRebuild(t *testing.T) {
	repo, svc := newCachedService(t)
	ctx := context.Background()

	_, err := svc.Overview(ctx, 6)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.Overview(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.calls.Load())
}

func TestOverviewWithoutRedis(t *testing.T) {
	repo := &countingRepo{}
	svc := NewService(repo, stubStats{}, nil)

	dash, err := svc.Overview(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, int64(3), dash.Outstanding.Shopkeepers)
	require.Equal(t, int64(1), repo.calls.Load())
}
