package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReasonCommissionShortfall is recorded when cash covers the notional but not the commission
const ReasonCommissionShortfall = "insufficient cash to cover commission"

// PriceSource answers latest-price lookups for the execution path
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Executor drives PENDING orders to FILLED or REJECTED against the ledger
type Executor struct {
	store  *ledger.Store
	prices PriceSource
	limits risk.Limits
	log    zerolog.Logger
}

// NewExecutor creates a new order executor
func NewExecutor(store *ledger.Store, prices PriceSource, limits risk.Limits, log zerolog.Logger) *Executor {
	return &Executor{
		store:  store,
		prices: prices,
		limits: limits,
		log:    log.With().Str("service", "executor").Logger(),
	}
}

// Limits returns the risk limits the executor applies
func (e *Executor) Limits() risk.Limits {
	return e.limits
}

// Execute attempts to fill a PENDING order at the latest price.
//
// The price is read before the ledger transaction starts. Without a price
// the order stays PENDING and an error wrapping domain.ErrNoMarketData is
// returned; an untriggered LIMIT or STOP order also stays PENDING with a nil
// error. Otherwise the order is re-read, gated and filled inside one
// serialized transaction. A gate failure persists the order as REJECTED and
// returns *domain.RiskRejectedError. Unexpected failures roll the fill back
// and mark the order REJECTED in a separate transaction.
func (e *Executor) Execute(ctx context.Context, orderID string) (*ExecutionResult, error) {
	order, err := e.store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
	}

	price, err := e.prices.LatestPrice(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNoMarketData) {
			return &ExecutionResult{Outcome: OutcomePending, Order: order, Reason: "no market data"}, err
		}
		return nil, fmt.Errorf("failed to get price for %s: %w", order.Symbol, err)
	}

	if ok, reason := triggered(order, price); !ok {
		e.log.Debug().Str("order_id", orderID).Str("reason", reason).Msg("Order not triggered")
		return &ExecutionResult{Outcome: OutcomePending, Order: order, Reason: reason}, nil
	}

	result, err := e.fill(ctx, orderID, price)
	if err == nil {
		return result, nil
	}

	if _, rejected := domain.RejectionReason(err); rejected ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrPersistenceConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return result, err
	}

	e.log.Error().Err(err).Str("order_id", orderID).Msg("Order execution failed, rejecting order")
	if rejected, rejectErr := e.Reject(ctx, orderID, "execution failed: "+err.Error()); rejectErr != nil {
		e.log.Error().Err(rejectErr).Str("order_id", orderID).Msg("Failed to mark order rejected")
	} else {
		result = &ExecutionResult{Outcome: OutcomeRejected, Order: rejected, Reason: rejected.Reason}
	}
	return result, err
}

// fill runs the gate and applies the fill in one ledger transaction
func (e *Executor) fill(ctx context.Context, orderID string, price decimal.Decimal) (*ExecutionResult, error) {
	var result *ExecutionResult

	err := e.store.Atomic(ctx, func(tx *ledger.Tx) error {
		result = nil

		order, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusPending {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
		}

		account, err := tx.Account()
		if err != nil {
			return err
		}
		position, err := tx.Position(order.Symbol)
		if err != nil {
			return err
		}

		req := risk.Request{Symbol: order.Symbol, Side: order.Side, Quantity: order.Quantity, Price: price}
		if decision := risk.Evaluate(req, account, position, e.limits); !decision.Approved {
			result, err = rejectInTx(tx, order, decision.Reason)
			return err
		}

		notional := req.Notional()
		commission := e.limits.Commission(notional)

		var cashAfter decimal.Decimal
		if order.Side.IsBuy() {
			cashAfter = account.Cash.Sub(notional).Sub(commission)
			if cashAfter.IsNegative() {
				result, err = rejectInTx(tx, order, ReasonCommissionShortfall)
				return err
			}
		} else {
			cashAfter = account.Cash.Add(notional).Sub(commission)
		}

		realized, err := applyToPosition(tx, order, position, price)
		if err != nil {
			return err
		}

		filledAt := tx.Now()
		order.Status = domain.StatusFilled
		order.FilledQuantity = order.Quantity
		order.AverageFillPrice = decimal.NewNullDecimal(price)
		order.FilledAt = &filledAt
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}

		trade := &domain.Trade{
			OrderID:    order.OrderID,
			Symbol:     order.Symbol,
			Side:       order.Side,
			Quantity:   order.Quantity,
			Price:      price,
			Commission: commission,
			PnL:        realized,
		}
		if err := tx.InsertTrade(trade); err != nil {
			return err
		}

		if err := tx.SetCash(cashAfter); err != nil {
			return err
		}

		result = &ExecutionResult{Outcome: OutcomeFilled, Order: order, Trade: trade}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeRejected {
		return result, &domain.RiskRejectedError{Reason: result.Reason}
	}

	e.log.Info().
		Str("order_id", orderID).
		Str("symbol", result.Trade.Symbol).
		Str("side", string(result.Trade.Side)).
		Str("quantity", result.Trade.Quantity.String()).
		Str("price", price.String()).
		Str("commission", result.Trade.Commission.String()).
		Msg("Order filled")
	return result, nil
}

// applyToPosition updates or creates the position for a fill and returns the realized PnL
func applyToPosition(tx *ledger.Tx, order *domain.Order, position *domain.Position, price decimal.Decimal) (decimal.Decimal, error) {
	if order.Side.IsBuy() {
		if position == nil {
			p := &domain.Position{
				Symbol:       order.Symbol,
				Quantity:     order.Quantity,
				AveragePrice: price,
				RealizedPnL:  decimal.Zero,
			}
			p.Reprice(price)
			return decimal.Zero, tx.InsertPosition(p)
		}

		totalCost := position.Quantity.Mul(position.AveragePrice).Add(order.Quantity.Mul(price))
		totalQuantity := position.Quantity.Add(order.Quantity)
		position.AveragePrice = totalCost.Div(totalQuantity)
		position.Quantity = totalQuantity
		position.Reprice(price)
		return decimal.Zero, tx.UpdatePosition(position)
	}

	// The gate guarantees an open position of at least order.Quantity here
	realized := price.Sub(position.AveragePrice).Mul(order.Quantity)
	position.RealizedPnL = position.RealizedPnL.Add(realized)
	position.Quantity = position.Quantity.Sub(order.Quantity)
	if !position.Quantity.IsPositive() {
		return realized, tx.DeletePosition(position.Symbol)
	}
	position.Reprice(price)
	return realized, tx.UpdatePosition(position)
}

func rejectInTx(tx *ledger.Tx, order *domain.Order, reason string) (*ExecutionResult, error) {
	order.Status = domain.StatusRejected
	order.Reason = reason
	if err := tx.UpdateOrder(order); err != nil {
		return nil, err
	}
	return &ExecutionResult{Outcome: OutcomeRejected, Order: order, Reason: reason}, nil
}

// Reject marks a PENDING order REJECTED with reason
func (e *Executor) Reject(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	var rejected *domain.Order
	err := e.store.Atomic(ctx, func(tx *ledger.Tx) error {
		order, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusPending {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
		}
		result, err := rejectInTx(tx, order, reason)
		if err != nil {
			return err
		}
		rejected = result.Order
		return nil
	})
	return rejected, err
}

// Cancel moves a PENDING order to CANCELLED; any other state is ErrInvalidTransition
func (e *Executor) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := e.store.Atomic(ctx, func(tx *ledger.Tx) error {
		order, err := tx.Order(orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusPending {
			return fmt.Errorf("cannot cancel order %s in status %s: %w", orderID, order.Status, domain.ErrInvalidTransition)
		}
		order.Status = domain.StatusCancelled
		order.Reason = reason
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	return cancelled, err
}
