// Package domain provides the core trading models, enums and error taxonomy.
package domain

import (
	"fmt"
	"strings"
)

// OrderSide is the direction of an order or trade
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// IsValid checks if the side is BUY or SELL
func (s OrderSide) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// IsBuy returns true for BUY
func (s OrderSide) IsBuy() bool { return s == SideBuy }

// IsSell returns true for SELL
func (s OrderSide) IsSell() bool { return s == SideSell }

// ParseOrderSide parses a side case-insensitively
func ParseOrderSide(value string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(value))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	if value == "" {
		return "", fmt.Errorf("invalid order side: empty string")
	}
	return "", fmt.Errorf("invalid order side: %s", value)
}

// OrderType determines when an order is allowed to fill
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// IsValid checks if the order type is known
func (t OrderType) IsValid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit || t == OrderTypeStop
}

// RequiresPrice reports whether the order type carries a limit or stop price
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStop
}

// ParseOrderType parses an order type case-insensitively
func ParseOrderType(value string) (OrderType, error) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid order type: %q", value)
	}
	return t, nil
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	// StatusPartiallyFilled is reserved; fills are single-shot.
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsValid checks if the status is known
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsTerminal returns true once an order can no longer change
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// ParseOrderStatus parses a status case-insensitively
func ParseOrderStatus(value string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid order status: %q", value)
	}
	return s, nil
}

// OrderSource records which path created an order
type OrderSource string

const (
	SourceAPI    OrderSource = "api"
	SourceSignal OrderSource = "signal"
)

// SignalAction is the action carried by a trading signal
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// IsValid checks if the action is BUY, SELL or HOLD
func (a SignalAction) IsValid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Side maps an actionable signal to an order side. HOLD has no side.
func (a SignalAction) Side() (OrderSide, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	}
	return "", false
}

// NormalizeSymbol upper-cases and trims a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
