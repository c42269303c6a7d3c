// Package portfolio revalues open positions at market and exposes the
// valued portfolio.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceSource answers latest-price lookups
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// RevalueResult reports what a mark-to-market pass did
type RevalueResult struct {
	Updated  []string                  `json:"updated"`
	Failed   map[string]string         `json:"failed,omitempty"` // symbol → error
	Snapshot *domain.PortfolioSnapshot `json:"snapshot"`
}

// MarkToMarket reprices every open position and appends a portfolio snapshot
type MarkToMarket struct {
	store  *ledger.Store
	prices PriceSource
	log    zerolog.Logger
}

// NewMarkToMarket creates a new mark-to-market service
func NewMarkToMarket(store *ledger.Store, prices PriceSource, log zerolog.Logger) *MarkToMarket {
	return &MarkToMarket{
		store:  store,
		prices: prices,
		log:    log.With().Str("service", "mark_to_market").Logger(),
	}
}

// Run fetches a price for every open position without holding the ledger,
// then applies all prices and one revaluation in a single transaction.
// A symbol whose price lookup fails keeps its previous price and is listed
// in Failed; it never aborts the pass. A snapshot is appended even when no
// price changed.
func (m *MarkToMarket) Run(ctx context.Context) (*RevalueResult, error) {
	positions, err := m.store.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	result := &RevalueResult{Failed: make(map[string]string)}
	prices := make(map[string]decimal.Decimal, len(positions))
	for i := range positions {
		symbol := positions[i].Symbol
		price, err := m.prices.LatestPrice(ctx, symbol)
		if err != nil {
			if errors.Is(err, domain.ErrNoMarketData) {
				m.log.Debug().Str("symbol", symbol).Msg("No market data, keeping last price")
			} else {
				m.log.Warn().Err(err).Str("symbol", symbol).Msg("Price lookup failed")
			}
			result.Failed[symbol] = err.Error()
			continue
		}
		prices[symbol] = price
	}

	err = m.store.Atomic(ctx, func(tx *ledger.Tx) error {
		result.Updated = result.Updated[:0]

		current, err := tx.Positions()
		if err != nil {
			return err
		}
		for i := range current {
			p := &current[i]
			price, ok := prices[p.Symbol]
			if !ok {
				continue
			}
			p.Reprice(price)
			if err := tx.UpdatePosition(p); err != nil {
				return err
			}
			result.Updated = append(result.Updated, p.Symbol)
		}

		snapshot, err := tx.Revalue()
		if err != nil {
			return err
		}
		result.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(result.Updated)
	m.log.Debug().
		Int("updated", len(result.Updated)).
		Int("failed", len(result.Failed)).
		Str("total_value", result.Snapshot.TotalValue.String()).
		Msg("Mark-to-market complete")
	return result, nil
}
