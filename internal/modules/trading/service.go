// Package trading validates, persists and executes orders against the ledger.
package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/rs/zerolog"
)

// PendingSummary counts what a ProcessPending pass did
type PendingSummary struct {
	Attempted int `json:"attempted"`
	Filled    int `json:"filled"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

// TradingService handles order lifecycle business logic.
//
// Responsibilities:
//   - Validate and persist new orders, then attempt execution immediately
//   - Cancel PENDING orders
//   - Retry PENDING orders on price ticks and scheduler passes
//   - Emit order and trade events
//
// Dependencies:
//   - ledger.Store: Order persistence
//   - Executor: Fills and rejections
//   - events.Manager: Event emission
type TradingService struct {
	log          zerolog.Logger
	store        *ledger.Store
	executor     *Executor
	eventManager *events.Manager
}

// NewTradingService creates a new trading service
func NewTradingService(
	store *ledger.Store,
	executor *Executor,
	eventManager *events.Manager,
	log zerolog.Logger,
) *TradingService {
	return &TradingService{
		log:          log.With().Str("service", "trading").Logger(),
		store:        store,
		executor:     executor,
		eventManager: eventManager,
	}
}

// Executor returns the executor used by the service
func (s *TradingService) Executor() *Executor {
	return s.executor
}

// CreateOrder validates the request, persists a PENDING order and attempts to execute it.
//
// A missing price or an untriggered LIMIT/STOP order is not an error: the
// order is returned PENDING with OutcomePending. Validation failures return
// *domain.ValidationError and persist nothing. A gate rejection returns the
// REJECTED order together with *domain.RiskRejectedError.
func (s *TradingService) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, ExecutionResult, error) {
	order, err := req.Validate()
	if err != nil {
		return nil, ExecutionResult{}, err
	}

	err = s.store.Atomic(ctx, func(tx *ledger.Tx) error {
		return tx.InsertOrder(order)
	})
	if err != nil {
		return nil, ExecutionResult{}, fmt.Errorf("failed to persist order: %w", err)
	}

	s.log.Info().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Str("quantity", order.Quantity.String()).
		Str("source", string(order.Source)).
		Msg("Order created")
	s.emitOrder(events.OrderCreated, order)

	result, err := s.execute(ctx, order)
	if result.Order != nil {
		order = result.Order
	}
	return order, result, err
}

// execute runs the executor and emits the matching event. ErrNoMarketData is
// folded into a PENDING result.
func (s *TradingService) execute(ctx context.Context, order *domain.Order) (ExecutionResult, error) {
	result, err := s.executor.Execute(ctx, order.OrderID)
	if result == nil {
		result = &ExecutionResult{Order: order}
	}

	if errors.Is(err, domain.ErrNoMarketData) {
		err = nil
	}

	switch result.Outcome {
	case OutcomeFilled:
		s.emitTrade(result.Order, result.Trade)
	case OutcomeRejected:
		s.emitOrder(events.OrderRejected, result.Order)
	case OutcomePending:
		s.emitOrder(events.OrderPending, result.Order)
	}

	return *result, err
}

// CancelOrder moves a PENDING order to CANCELLED
func (s *TradingService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.executor.Cancel(ctx, orderID, "cancelled by request")
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", orderID).Msg("Order cancelled")
	s.emitOrder(events.OrderCancelled, order)
	return order, nil
}

// GetOrder returns one order by its public id
func (s *TradingService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.Order(ctx, orderID)
}

// ListOrders returns orders matching filter, oldest first
func (s *TradingService) ListOrders(ctx context.Context, filter ledger.OrderFilter) ([]domain.Order, error) {
	return s.store.Orders(ctx, filter)
}

// ProcessPending retries every PENDING order, or only those for symbol when it is not empty.
// Per-order failures are logged and counted; the pass always continues.
func (s *TradingService) ProcessPending(ctx context.Context, symbol string) (PendingSummary, error) {
	var summary PendingSummary

	orders, err := s.store.Orders(ctx, ledger.OrderFilter{
		Status: domain.StatusPending,
		Symbol: domain.NormalizeSymbol(symbol),
	})
	if err != nil {
		return summary, fmt.Errorf("failed to list pending orders: %w", err)
	}

	for i := range orders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		order := &orders[i]
		result, err := s.executor.Execute(ctx, order.OrderID)
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Settled by a concurrent pass
			continue
		}

		summary.Attempted++
		if errors.Is(err, domain.ErrNoMarketData) {
			summary.Pending++
			continue
		}

		if result != nil {
			switch result.Outcome {
			case OutcomeFilled:
				summary.Filled++
				s.emitTrade(result.Order, result.Trade)
			case OutcomeRejected:
				summary.Rejected++
				s.emitOrder(events.OrderRejected, result.Order)
			case OutcomePending:
				summary.Pending++
			}
		}

		if err != nil {
			if _, rejected := domain.RejectionReason(err); !rejected {
				summary.Failed++
				s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Pending order retry failed")
			}
		}
	}

	if summary.Attempted > 0 {
		s.log.Debug().
			Str("symbol", symbol).
			Int("attempted", summary.Attempted).
			Int("filled", summary.Filled).
			Int("rejected", summary.Rejected).
			Int("pending", summary.Pending).
			Int("failed", summary.Failed).
			Msg("Processed pending orders")
	}
	return summary, nil
}

func (s *TradingService) emitOrder(eventType events.EventType, order *domain.Order) {
	if s.eventManager == nil || order == nil {
		return
	}
	s.eventManager.EmitTyped("trading", &events.OrderEventData{
		Type:     eventType,
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Quantity: order.Quantity.String(),
		Status:   string(order.Status),
		Source:   string(order.Source),
		Reason:   order.Reason,
	})
}

func (s *TradingService) emitTrade(order *domain.Order, trade *domain.Trade) {
	if s.eventManager == nil || trade == nil {
		return
	}
	data := &events.TradeExecutedData{
		OrderID:    trade.OrderID,
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		Quantity:   trade.Quantity.String(),
		Price:      trade.Price.String(),
		Commission: trade.Commission.String(),
		PnL:        trade.PnL.String(),
	}
	if order != nil {
		data.Source = string(order.Source)
	}
	s.eventManager.EmitTyped("trading", data)
}
