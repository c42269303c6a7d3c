package market

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TickListener is notified after a newer price was stored
type TickListener func(ctx context.Context, tick domain.MarketPrice)

// Service is the boundary to the market-data feed: it answers latest-price
// lookups and fans accepted ticks out to listeners.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	mu        sync.RWMutex
	listeners []TickListener
}

// NewService creates a new market service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "market").Logger(),
	}
}

// OnTick registers a listener for accepted ticks
func (s *Service) OnTick(listener TickListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// LatestPrice returns the newest price for symbol or an error wrapping domain.ErrNoMarketData
func (s *Service) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := s.repo.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Price, nil
}

// Quote returns the full stored tick for symbol
func (s *Service) Quote(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	return s.repo.LatestPrice(ctx, symbol)
}

// Prices lists the latest price of every known symbol
func (s *Service) Prices(ctx context.Context) ([]domain.MarketPrice, error) {
	return s.repo.List(ctx)
}

// RecordTick stores a tick and, if it is the newest for its symbol, notifies listeners.
// A zero asOf means now.
func (s *Service) RecordTick(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (bool, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	updated, err := s.repo.Record(ctx, symbol, price, asOf)
	if err != nil || !updated {
		return updated, err
	}

	tick := domain.MarketPrice{Symbol: domain.NormalizeSymbol(symbol), Price: price, AsOf: asOf.UTC()}
	s.log.Debug().Str("symbol", tick.Symbol).Str("price", price.String()).Msg("Price tick recorded")

	s.mu.RLock()
	listeners := append([]TickListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener(ctx, tick)
	}
	return true, nil
}
