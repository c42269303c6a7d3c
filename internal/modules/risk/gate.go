// Package risk implements the pre-trade risk gate.
package risk

import (
	"fmt"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Rule identifies which check rejected a request
type Rule string

const (
	RuleCash          Rule = "cash"
	RulePositionSize  Rule = "position_size"
	RulePositionAdd   Rule = "position_concentration"
	RuleHolding       Rule = "holding"
	RuleInvalidInputs Rule = "invalid_request"
)

// Request is a prospective fill at a known price
type Request struct {
	Symbol   string           `json:"symbol"`
	Side     domain.OrderSide `json:"side"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    decimal.Decimal  `json:"price"`
}

// Notional returns quantity × price
func (r Request) Notional() decimal.Decimal {
	return r.Quantity.Mul(r.Price)
}

// Decision is the gate's verdict
type Decision struct {
	Approved bool   `json:"approved"`
	Rule     Rule   `json:"rule,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func approve() Decision {
	return Decision{Approved: true}
}

func reject(rule Rule, format string, args ...interface{}) Decision {
	return Decision{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate checks a request against the account and the current position
// (nil when there is none). Rules run in order and the first violation wins:
//
//  1. BUY needs cash ≥ quantity × price
//  2. BUY notional, and the resulting position value, must stay within
//     total_value × the symbol's max position fraction
//  3. SELL needs an open position of at least quantity (no shorting)
//
// Evaluate has no side effects; callers must pass state read inside the
// transaction that will apply the fill.
func Evaluate(req Request, account *domain.Account, position *domain.Position, limits Limits) Decision {
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		return reject(RuleInvalidInputs, "quantity and price must be positive")
	}

	switch req.Side {
	case domain.SideBuy:
		required := req.Notional()
		if account.Cash.LessThan(required) {
			return reject(RuleCash, "insufficient cash: required %s, available %s",
				required.StringFixed(2), account.Cash.StringFixed(2))
		}

		fraction := limits.ForSymbol(req.Symbol)
		maxValue := account.TotalValue.Mul(fraction)
		if required.GreaterThan(maxValue) {
			return reject(RulePositionSize, "position size exceeds limit: %s > %s (%s%% of portfolio)",
				required.StringFixed(2), maxValue.StringFixed(2), fraction.Shift(2).String())
		}

		if position != nil {
			newValue := position.Quantity.Add(req.Quantity).Mul(req.Price)
			if newValue.GreaterThan(maxValue) {
				return reject(RulePositionAdd, "adding to position would exceed size limit: %s > %s",
					newValue.StringFixed(2), maxValue.StringFixed(2))
			}
		}
		return approve()

	case domain.SideSell:
		held := decimal.Zero
		if position != nil {
			held = position.Quantity
		}
		if held.LessThan(req.Quantity) {
			return reject(RuleHolding, "insufficient position: available %s, requested %s",
				held.String(), req.Quantity.String())
		}
		return approve()

	default:
		return reject(RuleInvalidInputs, "unknown side %q", req.Side)
	}
}
