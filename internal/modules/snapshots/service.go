// Package snapshots serves the portfolio snapshot history and the statistics
// derived from it.
package snapshots

import (
	"context"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/pkg/formulas"
	"github.com/rs/zerolog"
)

// Stats summarizes a snapshot series
type Stats struct {
	SnapshotCount int                `json:"snapshot_count"`
	From          *time.Time         `json:"from,omitempty"`
	To            *time.Time         `json:"to,omitempty"`
	StartValue    float64            `json:"start_value"`
	EndValue      float64            `json:"end_value"`
	PeriodReturn  float64            `json:"period_return"`
	TotalReturn   float64            `json:"total_return"` // Latest snapshot against initial capital
	SharpeRatio   *float64           `json:"sharpe_ratio"`
	Volatility    float64            `json:"annualized_volatility"`
	Drawdown      *formulas.Drawdown `json:"drawdown,omitempty"`
}

// Service reads snapshots from the ledger
type Service struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewService creates a new snapshot service
func NewService(store *ledger.Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("service", "snapshots").Logger(),
	}
}

// List returns snapshots in chronological order; a positive limit keeps the most recent ones
func (s *Service) List(ctx context.Context, filter ledger.SnapshotFilter) ([]domain.PortfolioSnapshot, error) {
	return s.store.Snapshots(ctx, filter)
}

// Stats computes return, Sharpe, volatility and drawdown over the snapshots in [from, to].
// Zero bounds are open.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	snapshots, err := s.store.Snapshots(ctx, ledger.SnapshotFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return Compute(snapshots), nil
}

// Compute derives Stats from a chronological snapshot series
func Compute(snapshots []domain.PortfolioSnapshot) *Stats {
	stats := &Stats{SnapshotCount: len(snapshots)}
	if len(snapshots) == 0 {
		return stats
	}

	values := make([]float64, len(snapshots))
	for i := range snapshots {
		values[i] = snapshots[i].TotalValue.InexactFloat64()
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	stats.From = &first.Timestamp
	stats.To = &last.Timestamp
	stats.StartValue = values[0]
	stats.EndValue = values[len(values)-1]
	stats.TotalReturn = last.TotalReturn.InexactFloat64()
	if stats.StartValue > 0 {
		stats.PeriodReturn = (stats.EndValue - stats.StartValue) / stats.StartValue
	}

	returns := formulas.Returns(values)
	stats.SharpeRatio = formulas.SharpeRatio(returns, 0, formulas.TradingPeriodsPerYear)
	stats.Volatility = formulas.AnnualizedVolatility(returns, formulas.TradingPeriodsPerYear)
	stats.Drawdown = formulas.MaxDrawdown(values)
	return stats
}
