// Package handlers provides HTTP handlers for order submission and lookup.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultOrderLimit = 100
	maxOrderLimit     = 500
)

// OrderService is the part of the trading service the handlers use
type OrderService interface {
	CreateOrder(ctx context.Context, req trading.OrderRequest) (*domain.Order, trading.ExecutionResult, error)
	CancelOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter ledger.OrderFilter) ([]domain.Order, error)
}

// TradingHandlers contains HTTP handlers for the orders API
type TradingHandlers struct {
	log     zerolog.Logger
	service OrderService
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(service OrderService, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// HandleCreateOrder validates, persists and attempts to execute an order
// POST /api/orders
//
// 201 filled, 202 pending, 422 risk rejected, 400 invalid
func (h *TradingHandlers) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Source = domain.SourceAPI

	order, result, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		if reason, rejected := domain.RejectionReason(err); rejected && order != nil {
			h.log.Warn().
				Str("order_id", order.OrderID).
				Str("symbol", order.Symbol).
				Str("reason", reason).
				Msg("Order rejected")
			utils.WriteData(w, h.log, http.StatusUnprocessableEntity, result)
			return
		}
		utils.WriteErr(w, h.log, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == trading.OutcomePending {
		status = http.StatusAccepted
	}
	utils.WriteData(w, h.log, status, result)
}

// HandleListOrders returns orders, optionally filtered by status and symbol
// GET /api/orders?status=&symbol=&limit=
func (h *TradingHandlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	filter := ledger.OrderFilter{
		Symbol: domain.NormalizeSymbol(r.URL.Query().Get("symbol")),
		Limit:  utils.QueryInt(r, "limit", defaultOrderLimit, maxOrderLimit),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			utils.WriteError(w, h.log, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	utils.WriteData(w, h.log, http.StatusOK, orders)
}

// HandleGetOrder returns one order
// GET /api/orders/{orderID}
func (h *TradingHandlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, order)
}

// HandleCancelOrder cancels a PENDING order
// POST /api/orders/{orderID}/cancel
func (h *TradingHandlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, order)
}
