// Package handlers provides HTTP handlers for ledger reads.
package handlers

import (
	"net/http"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// Handler handles ledger HTTP requests
type Handler struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(store *ledger.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetAccount handles GET /api/account
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.store.Portfolio(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"cash":            portfolio.Account.Cash,
		"total_value":     portfolio.Account.TotalValue,
		"initial_capital": portfolio.Account.InitialCapital,
		"total_return":    portfolio.Valuation.TotalReturn,
		"last_updated":    portfolio.Account.LastUpdated,
	})
}

// HandleGetPositions handles GET /api/positions
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.Positions(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	utils.WriteData(w, h.log, http.StatusOK, positions)
}

// HandleGetTrades handles GET /api/trades?limit=&offset=&symbol=
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	filter := ledger.TradeFilter{
		Symbol: domain.NormalizeSymbol(r.URL.Query().Get("symbol")),
		Limit:  utils.QueryInt(r, "limit", defaultTradeLimit, maxTradeLimit),
		Offset: utils.QueryInt(r, "offset", 0, 0),
	}

	trades, err := h.store.Trades(r.Context(), filter)
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	utils.WriteData(w, h.log, http.StatusOK, trades)
}

// HandleGetTradesSummary handles GET /api/trades/summary
func (h *Handler) HandleGetTradesSummary(w http.ResponseWriter, r *http.Request) {
	trades, err := h.store.Trades(r.Context(), ledger.TradeFilter{
		Symbol: domain.NormalizeSymbol(r.URL.Query().Get("symbol")),
	})
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	var buys, sells int
	bought := decimal.Zero
	sold := decimal.Zero
	commission := decimal.Zero
	realized := decimal.Zero
	for i := range trades {
		t := &trades[i]
		if t.Side.IsBuy() {
			buys++
			bought = bought.Add(t.Notional())
		} else {
			sells++
			sold = sold.Add(t.Notional())
		}
		commission = commission.Add(t.Commission)
		realized = realized.Add(t.PnL)
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"total_trades":     len(trades),
		"buy_count":        buys,
		"sell_count":       sells,
		"bought_notional":  bought,
		"sold_notional":    sold,
		"total_commission": commission,
		"realized_pnl":     realized,
	})
}
