package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single cash account backing the portfolio
type Account struct {
	Cash           decimal.Decimal `json:"cash"`
	TotalValue     decimal.Decimal `json:"total_value"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// Position is an open holding in one symbol
type Position struct {
	ID            int64           `json:"id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	LastUpdated   time.Time       `json:"last_updated"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MarketValue returns quantity × current price
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// Reprice sets the current price and recomputes unrealized PnL
func (p *Position) Reprice(price decimal.Decimal) {
	p.CurrentPrice = price
	p.UnrealizedPnL = price.Sub(p.AveragePrice).Mul(p.Quantity)
}

// Order is a request to buy or sell and its lifecycle state
type Order struct {
	ID               int64               `json:"id"`
	OrderID          string              `json:"order_id"`
	Symbol           string              `json:"symbol"`
	Side             OrderSide           `json:"side"`
	Type             OrderType           `json:"order_type"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Price            decimal.NullDecimal `json:"price"`
	Status           OrderStatus         `json:"status"`
	FilledQuantity   decimal.Decimal     `json:"filled_quantity"`
	AverageFillPrice decimal.NullDecimal `json:"average_fill_price"`
	Reason           string              `json:"reason,omitempty"`
	Source           OrderSource         `json:"source"`
	Timestamp        time.Time           `json:"timestamp"`
	FilledAt         *time.Time          `json:"filled_at,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Trade is the immutable record of a fill
type Trade struct {
	ID         int64           `json:"id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	PnL        decimal.Decimal `json:"pnl"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Notional returns quantity × price
func (t *Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// CashEffect is the signed change the trade applied to account cash
func (t *Trade) CashEffect() decimal.Decimal {
	if t.Side.IsBuy() {
		return t.Notional().Add(t.Commission).Neg()
	}
	return t.Notional().Sub(t.Commission)
}

// PortfolioSnapshot is an immutable point-in-time valuation
type PortfolioSnapshot struct {
	ID          int64           `json:"id"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Cash        decimal.Decimal `json:"cash"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	TotalReturn decimal.Decimal `json:"total_return"`
	Timestamp   time.Time       `json:"timestamp"`
}

// MarketPrice is the latest observed price for a symbol
type MarketPrice struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	AsOf      time.Time       `json:"as_of"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SignalOutcome describes what intake did with a signal
type SignalOutcome string

const (
	OutcomeExecuted SignalOutcome = "EXECUTED"
	OutcomePending  SignalOutcome = "PENDING"
	OutcomeRejected SignalOutcome = "REJECTED"
	OutcomeDropped  SignalOutcome = "DROPPED"
	OutcomeIgnored  SignalOutcome = "IGNORED"
	OutcomeFailed   SignalOutcome = "FAILED"
)

// ProcessedSignal records a consumed signal so redeliveries are skipped
type ProcessedSignal struct {
	SignalKey  string        `json:"signal_key"`
	Symbol     string        `json:"symbol"`
	Action     SignalAction  `json:"action"`
	Outcome    SignalOutcome `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	OrderID    string        `json:"order_id,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
}
