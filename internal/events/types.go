// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// Order lifecycle
	OrderCreated   EventType = "ORDER_CREATED"
	OrderPending   EventType = "ORDER_PENDING"
	OrderRejected  EventType = "ORDER_REJECTED"
	OrderCancelled EventType = "ORDER_CANCELLED"
	TradeExecuted  EventType = "TRADE_EXECUTED"

	// Portfolio and market data
	PortfolioRevalued EventType = "PORTFOLIO_REVALUED"
	PriceUpdated      EventType = "PRICE_UPDATED"

	// Signal intake
	SignalReceived EventType = "SIGNAL_RECEIVED"
	SignalDropped  EventType = "SIGNAL_DROPPED"

	// System
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in declaration order
var AllTypes = []EventType{
	OrderCreated,
	OrderPending,
	OrderRejected,
	OrderCancelled,
	TradeExecuted,
	PortfolioRevalued,
	PriceUpdated,
	SignalReceived,
	SignalDropped,
	BackupCompleted,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
