// Package handlers provides HTTP handlers for the risk gate.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/risk"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceSource answers latest-price lookups when a request omits the price
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Handler handles risk gate HTTP requests
type Handler struct {
	store  *ledger.Store
	prices PriceSource
	limits risk.Limits
	log    zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(
	store *ledger.Store,
	prices PriceSource,
	limits risk.Limits,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		store:  store,
		prices: prices,
		limits: limits,
		log:    log.With().Str("handler", "risk").Logger(),
	}
}

type evaluateRequest struct {
	Symbol   string           `json:"symbol"`
	Side     string           `json:"side"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// HandleEvaluate dry-runs the gate against the current ledger state
// POST /api/risk/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
		return
	}

	symbol := domain.NormalizeSymbol(body.Symbol)
	if symbol == "" {
		utils.WriteErr(w, h.log, domain.NewValidationError("symbol", "must not be empty"))
		return
	}
	side, err := domain.ParseOrderSide(body.Side)
	if err != nil {
		utils.WriteErr(w, h.log, domain.NewValidationError("side", err.Error()))
		return
	}

	var price decimal.Decimal
	if body.Price != nil {
		price = *body.Price
	} else {
		price, err = h.prices.LatestPrice(r.Context(), symbol)
		if err != nil {
			utils.WriteErr(w, h.log, err)
			return
		}
	}

	req := risk.Request{Symbol: symbol, Side: side, Quantity: body.Quantity, Price: price}

	var decision risk.Decision
	err = h.store.View(r.Context(), func(reader *ledger.Reader) error {
		account, err := reader.Account()
		if err != nil {
			return err
		}
		position, err := reader.Position(symbol)
		if err != nil {
			return err
		}
		decision = risk.Evaluate(req, account, position, h.limits)
		return nil
	})
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"request":    req,
		"decision":   decision,
		"commission": h.limits.Commission(req.Notional()),
	})
}

// HandleGetLimits returns the configured limits
// GET /api/risk/limits
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, h.log, http.StatusOK, h.limits)
}
