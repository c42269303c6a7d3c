package ledger

import (
	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Valuation is the portfolio value derived from cash and open positions
type Valuation struct {
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	TotalReturn    decimal.Decimal `json:"total_return"`
	PositionCount  int             `json:"position_count"`
}

// Valuate computes
//
//	total_value  = cash + Σ quantity × current_price
//	total_pnl    = Σ (realized_pnl + unrealized_pnl) over open positions
//	total_return = (total_value − initial_capital) / initial_capital
func Valuate(account *domain.Account, positions []domain.Position) Valuation {
	v := Valuation{
		Cash:           account.Cash,
		InitialCapital: account.InitialCapital,
		PositionCount:  len(positions),
	}

	for i := range positions {
		p := &positions[i]
		v.PositionsValue = v.PositionsValue.Add(p.MarketValue())
		v.RealizedPnL = v.RealizedPnL.Add(p.RealizedPnL)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(p.UnrealizedPnL)
	}

	v.TotalValue = v.Cash.Add(v.PositionsValue)
	v.TotalPnL = v.RealizedPnL.Add(v.UnrealizedPnL)
	if account.InitialCapital.IsPositive() {
		v.TotalReturn = v.TotalValue.Sub(account.InitialCapital).Div(account.InitialCapital)
	}
	return v
}
