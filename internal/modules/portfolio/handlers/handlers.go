// Package handlers provides HTTP handlers for the valued portfolio.
package handlers

import (
	"net/http"
	"sort"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/portfolio"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	store *ledger.Store
	mtm   *portfolio.MarkToMarket
	log   zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(store *ledger.Store, mtm *portfolio.MarkToMarket, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		mtm:   mtm,
		log:   log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPortfolio returns account, positions and valuation from one read
// GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Portfolio(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if p.Positions == nil {
		p.Positions = []domain.Position{}
	}
	utils.WriteData(w, h.log, http.StatusOK, p)
}

// Weight is one position's share of total portfolio value
type Weight struct {
	Symbol      string          `json:"symbol"`
	MarketValue decimal.Decimal `json:"market_value"`
	Weight      decimal.Decimal `json:"weight"`
}

// HandleGetConcentration returns position weights, largest first
// GET /api/portfolio/concentration
func (h *Handler) HandleGetConcentration(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Portfolio(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	total := p.Valuation.TotalValue
	weights := make([]Weight, 0, len(p.Positions))
	for i := range p.Positions {
		value := p.Positions[i].MarketValue()
		weight := decimal.Zero
		if total.IsPositive() {
			weight = value.Div(total).Round(6)
		}
		weights = append(weights, Weight{Symbol: p.Positions[i].Symbol, MarketValue: value, Weight: weight})
	}
	sort.SliceStable(weights, func(i, j int) bool {
		return weights[i].MarketValue.GreaterThan(weights[j].MarketValue)
	})

	cashWeight := decimal.Zero
	if total.IsPositive() {
		cashWeight = p.Valuation.Cash.Div(total).Round(6)
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"total_value": total,
		"cash_weight": cashWeight,
		"positions":   weights,
	})
}

// HandleRevalue runs a mark-to-market pass now
// POST /api/portfolio/revalue
func (h *Handler) HandleRevalue(w http.ResponseWriter, r *http.Request) {
	result, err := h.mtm.Run(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, result)
}
