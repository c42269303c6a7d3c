package signals

import (
	"github.com/aristath/autotrader/internal/modules/risk"
	"github.com/shopspring/decimal"
)

// Sizer turns signal confidence into an order quantity
type Sizer struct {
	limits risk.Limits
}

// NewSizer creates a sizer over the configured risk limits
func NewSizer(limits risk.Limits) *Sizer {
	return &Sizer{limits: limits}
}

// Size returns round(totalValue × maxPositionFraction × confidence / price, 2).
// A non-positive price sizes to zero.
func (s *Sizer) Size(totalValue decimal.Decimal, sig *Signal) decimal.Decimal {
	if !sig.CurrentPrice.IsPositive() {
		return decimal.Zero
	}
	target := totalValue.
		Mul(s.limits.ForSymbol(sig.Symbol)).
		Mul(decimal.NewFromFloat(sig.Confidence))
	return target.Div(sig.CurrentPrice).Round(2)
}
