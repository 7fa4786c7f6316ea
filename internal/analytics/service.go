package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/snackline/snackline/internal/ledger"
)

// LedgerStats is the slice of the ledger repository the dashboard reads.
type LedgerStats interface {
	RecoveryStats(ctx context.Context, f ledger.RecoveryFilter) (ledger.RecoveryStats, error)
	DistributionStats(ctx context.Context, f ledger.DistributionFilter) (ledger.DistributionStats, error)
	MonthlyRecoveryTrend(ctx context.Context, f ledger.RecoveryFilter, months int) ([]ledger.MonthlyPoint, error)
}

// Dashboard is the admin overview payload.
type Dashboard struct {
	Outstanding   Outstanding               `json:"outstanding"`
	Recoveries    ledger.RecoveryStats      `json:"recoveries"`
	Distributions ledger.DistributionStats  `json:"distributions"`
	Trend         []ledger.MonthlyPoint     `json:"trend"`
	TopDebtors    []Debtor                  `json:"top_debtors"`
}

// Service coordinates dashboard query execution with the cache layer.
type Service struct {
	repo   RepositoryPort
	ledger LedgerStats
	cache  *Cache
}

// NewService wires the aggregate queries with the cache helper.
func NewService(repo RepositoryPort, ledgerStats LedgerStats, cache *Cache) *Service {
	return &Service{repo: repo, ledger: ledgerStats, cache: cache}
}

// Overview assembles the dashboard, fanning the independent aggregates out
// concurrently and caching the combined result.
func (s *Service) Overview(ctx context.Context, months int) (Dashboard, error) {
	if months <= 0 {
		months = 6
	}
	key, err := s.cache.BuildKey(ctx, "analytics", "overview")
	if err != nil {
		return Dashboard{}, err
	}

	var dash Dashboard
	err = s.cache.FetchJSON(ctx, key, &dash, func(ctx context.Context) (any, error) {
		var result Dashboard
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			result.Outstanding, err = s.repo.TotalOutstanding(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			result.Recoveries, err = s.ledger.RecoveryStats(gctx, ledger.RecoveryFilter{})
			return err
		})
		g.Go(func() error {
			var err error
			result.Distributions, err = s.ledger.DistributionStats(gctx, ledger.DistributionFilter{})
			return err
		})
		g.Go(func() error {
			var err error
			result.Trend, err = s.ledger.MonthlyRecoveryTrend(gctx, ledger.RecoveryFilter{}, months)
			return err
		})
		g.Go(func() error {
			var err error
			result.TopDebtors, err = s.repo.TopDebtors(gctx, 10)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return result, nil
	})
	return dash, err
}

// Invalidate bumps the cache version so the next read rebuilds.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Warm rebuilds the overview into a fresh cache entry.
func (s *Service) Warm(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	_, err := s.Overview(ctx, 6)
	return err
}
