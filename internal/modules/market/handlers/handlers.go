// Package handlers provides HTTP handlers for price ingestion and lookup.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/market"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles market data HTTP requests
type Handler struct {
	service *market.Service
	log     zerolog.Logger
}

// NewHandler creates a new market handler
func NewHandler(service *market.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "market").Logger(),
	}
}

type tickRequest struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   *time.Time      `json:"as_of,omitempty"`
}

// HandleRecordPrices ingests one tick or a batch of ticks
// POST /api/market/prices
func (h *Handler) HandleRecordPrices(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
		return
	}

	var ticks []tickRequest
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &ticks); err != nil {
			utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		var tick tickRequest
		if err := json.Unmarshal(raw, &tick); err != nil {
			utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
			return
		}
		ticks = append(ticks, tick)
	}

	accepted := 0
	for _, tick := range ticks {
		var asOf time.Time
		if tick.AsOf != nil {
			asOf = *tick.AsOf
		}
		updated, err := h.service.RecordTick(r.Context(), tick.Symbol, tick.Price, asOf)
		if err != nil {
			utils.WriteErr(w, h.log, err)
			return
		}
		if updated {
			accepted++
		}
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"received": len(ticks),
		"accepted": accepted,
	})
}

// HandleListPrices returns the latest price of every symbol
// GET /api/market/prices
func (h *Handler) HandleListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.service.Prices(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if prices == nil {
		prices = []domain.MarketPrice{}
	}
	utils.WriteData(w, h.log, http.StatusOK, prices)
}

// HandleGetPrice returns the latest price for one symbol
// GET /api/market/prices/{symbol}
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, quote)
}
