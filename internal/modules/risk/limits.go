package risk

import (
	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Limits holds the configurable risk parameters
type Limits struct {
	MaxPositionFraction decimal.Decimal            `json:"max_position_fraction"`
	SymbolLimits        map[string]decimal.Decimal `json:"symbol_limits,omitempty"`
	CommissionRate      decimal.Decimal            `json:"commission_rate"`
}

// NewLimits builds Limits from plain configuration values
func NewLimits(maxFraction, commissionRate float64, symbolLimits map[string]float64) Limits {
	l := Limits{
		MaxPositionFraction: decimal.NewFromFloat(maxFraction),
		CommissionRate:      decimal.NewFromFloat(commissionRate),
		SymbolLimits:        make(map[string]decimal.Decimal, len(symbolLimits)),
	}
	for symbol, fraction := range symbolLimits {
		l.SymbolLimits[domain.NormalizeSymbol(symbol)] = decimal.NewFromFloat(fraction)
	}
	return l
}

// ForSymbol returns the max position fraction for symbol, honouring overrides
func (l Limits) ForSymbol(symbol string) decimal.Decimal {
	if fraction, ok := l.SymbolLimits[domain.NormalizeSymbol(symbol)]; ok {
		return fraction
	}
	return l.MaxPositionFraction
}

// Commission returns notional × commission rate
func (l Limits) Commission(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(l.CommissionRate)
}
