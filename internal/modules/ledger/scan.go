package ledger

import (
	"database/sql"
	"time"

	"github.com/aristath/autotrader/internal/domain"
)

// Column lists; order must match the scan functions below.
const (
	accountColumns  = `cash, total_value, initial_capital, last_updated`
	positionColumns = `id, symbol, quantity, average_price, current_price, unrealized_pnl, realized_pnl, last_updated, created_at`
	orderColumns    = `id, order_id, symbol, side, order_type, quantity, price, status, filled_quantity, average_fill_price, reason, source, timestamp, filled_at, updated_at`
	tradeColumns    = `id, order_id, symbol, side, quantity, price, commission, pnl, timestamp`
	snapshotColumns = `id, total_value, cash, total_pnl, total_return, timestamp`
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var lastUpdated int64
	if err := row.Scan(&a.Cash, &a.TotalValue, &a.InitialCapital, &lastUpdated); err != nil {
		return nil, err
	}
	a.LastUpdated = fromNanos(lastUpdated)
	return &a, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var lastUpdated, createdAt int64
	err := row.Scan(&p.ID, &p.Symbol, &p.Quantity, &p.AveragePrice, &p.CurrentPrice,
		&p.UnrealizedPnL, &p.RealizedPnL, &lastUpdated, &createdAt)
	if err != nil {
		return nil, err
	}
	p.LastUpdated = fromNanos(lastUpdated)
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, orderType, status, source string
	var timestamp, updatedAt int64
	var filledAt sql.NullInt64
	err := row.Scan(&o.ID, &o.OrderID, &o.Symbol, &side, &orderType, &o.Quantity, &o.Price,
		&status, &o.FilledQuantity, &o.AverageFillPrice, &o.Reason, &source,
		&timestamp, &filledAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.Source = domain.OrderSource(source)
	o.Timestamp = fromNanos(timestamp)
	o.UpdatedAt = fromNanos(updatedAt)
	if filledAt.Valid {
		t := fromNanos(filledAt.Int64)
		o.FilledAt = &t
	}
	return &o, nil
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var side string
	var timestamp int64
	err := row.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &t.Quantity, &t.Price,
		&t.Commission, &t.PnL, &timestamp)
	if err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)
	t.Timestamp = fromNanos(timestamp)
	return &t, nil
}

func scanSnapshot(row rowScanner) (*domain.PortfolioSnapshot, error) {
	var s domain.PortfolioSnapshot
	var timestamp int64
	if err := row.Scan(&s.ID, &s.TotalValue, &s.Cash, &s.TotalPnL, &s.TotalReturn, &timestamp); err != nil {
		return nil, err
	}
	s.Timestamp = fromNanos(timestamp)
	return &s, nil
}

func nullNanos(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
