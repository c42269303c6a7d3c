package trading

import (
	"strings"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRequest is an unvalidated order submission
type OrderRequest struct {
	Symbol    string             `json:"symbol"`
	Side      string             `json:"side"`
	OrderType string             `json:"order_type"`
	Quantity  decimal.Decimal    `json:"quantity"`
	Price     *decimal.Decimal   `json:"price,omitempty"`
	Source    domain.OrderSource `json:"-"`
}

// Validate checks the request and builds a PENDING order with a fresh id.
// Nothing is persisted on failure.
func (r OrderRequest) Validate() (*domain.Order, error) {
	symbol := domain.NormalizeSymbol(r.Symbol)
	if symbol == "" {
		return nil, domain.NewValidationError("symbol", "must not be empty")
	}

	side, err := domain.ParseOrderSide(r.Side)
	if err != nil {
		return nil, domain.NewValidationError("side", err.Error())
	}

	orderType := domain.OrderTypeMarket
	if strings.TrimSpace(r.OrderType) != "" {
		if orderType, err = domain.ParseOrderType(r.OrderType); err != nil {
			return nil, domain.NewValidationError("order_type", err.Error())
		}
	}

	if !r.Quantity.IsPositive() {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}

	var price decimal.NullDecimal
	if orderType.RequiresPrice() {
		if r.Price == nil || !r.Price.IsPositive() {
			return nil, domain.NewValidationError("price", strings.ToLower(string(orderType))+" orders require a positive price")
		}
		price = decimal.NewNullDecimal(*r.Price)
	}

	source := r.Source
	if source == "" {
		source = domain.SourceAPI
	}

	return &domain.Order{
		OrderID:  uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Quantity: r.Quantity,
		Price:    price,
		Status:   domain.StatusPending,
		Source:   source,
	}, nil
}

// Outcome summarizes an execution attempt
type Outcome string

const (
	OutcomeFilled   Outcome = "FILLED"
	OutcomePending  Outcome = "PENDING"
	OutcomeRejected Outcome = "REJECTED"
)

// ExecutionResult is the state of an order after an execution attempt
type ExecutionResult struct {
	Outcome Outcome       `json:"outcome"`
	Order   *domain.Order `json:"order"`
	Trade   *domain.Trade `json:"trade,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// triggered reports whether an order may fill at price.
// MARKET always fills; LIMIT BUY needs price ≤ limit and LIMIT SELL price ≥ limit;
// STOP BUY triggers at price ≥ stop and STOP SELL at price ≤ stop.
func triggered(order *domain.Order, price decimal.Decimal) (bool, string) {
	switch order.Type {
	case domain.OrderTypeLimit:
		limit := order.Price.Decimal
		if order.Side.IsBuy() && price.GreaterThan(limit) {
			return false, "market price " + price.String() + " above limit " + limit.String()
		}
		if order.Side.IsSell() && price.LessThan(limit) {
			return false, "market price " + price.String() + " below limit " + limit.String()
		}
	case domain.OrderTypeStop:
		stop := order.Price.Decimal
		if order.Side.IsBuy() && price.LessThan(stop) {
			return false, "market price " + price.String() + " below stop " + stop.String()
		}
		if order.Side.IsSell() && price.GreaterThan(stop) {
			return false, "market price " + price.String() + " above stop " + stop.String()
		}
	}
	return true, ""
}
