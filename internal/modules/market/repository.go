// Package market stores the latest observed price per symbol and notifies
// listeners when a new tick arrives.
package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const priceColumns = `symbol, price, as_of, updated_at`

// Repository handles market_prices database operations
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new market price repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "market_prices").Logger(),
	}
}

// LatestPrice returns the newest known price, or domain.ErrNoMarketData
func (r *Repository) LatestPrice(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		"SELECT "+priceColumns+" FROM market_prices WHERE symbol = ?", domain.NormalizeSymbol(symbol))

	price, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrNoMarketData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price for %s: %w", symbol, err)
	}
	return price, nil
}

// Record upserts a tick. Ticks older than the stored one are ignored;
// the returned bool reports whether the stored price changed.
func (r *Repository) Record(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (bool, error) {
	if !price.IsPositive() {
		return false, domain.NewValidationError("price", "must be positive")
	}
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, domain.NewValidationError("symbol", "must not be empty")
	}

	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO market_prices (symbol, price, as_of, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			as_of = excluded.as_of,
			updated_at = excluded.updated_at
		WHERE excluded.as_of >= market_prices.as_of`,
		symbol, price, asOf.UTC().UnixNano(), time.Now().UTC().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to record price for %s: %w", symbol, err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		r.log.Debug().Str("symbol", symbol).Time("as_of", asOf).Msg("Ignoring stale price tick")
	}
	return n > 0, nil
}

// List returns the latest price of every known symbol
func (r *Repository) List(ctx context.Context) ([]domain.MarketPrice, error) {
	rows, err := r.db.Conn().QueryContext(ctx, "SELECT "+priceColumns+" FROM market_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	prices := make([]domain.MarketPrice, 0)
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, *p)
	}
	return prices, rows.Err()
}

func scanPrice(row interface{ Scan(...interface{}) error }) (*domain.MarketPrice, error) {
	var p domain.MarketPrice
	var asOf, updatedAt int64
	if err := row.Scan(&p.Symbol, &p.Price, &asOf, &updatedAt); err != nil {
		return nil, err
	}
	p.AsOf = time.Unix(0, asOf).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}
