package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OrderEventData describes an order state change
type OrderEventData struct {
	Type     EventType `json:"-"`
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Quantity string    `json:"quantity"`
	Status   string    `json:"status"`
	Source   string    `json:"source"`
	Reason   string    `json:"reason,omitempty"`
}

// EventType returns the configured order event type
func (d *OrderEventData) EventType() EventType {
	return d.Type
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Quantity   string `json:"quantity"`
	Price      string `json:"price"`
	Commission string `json:"commission"`
	PnL        string `json:"pnl"`
	Source     string `json:"source,omitempty"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// PortfolioRevaluedData contains data for PortfolioRevalued events
type PortfolioRevaluedData struct {
	TotalValue  string `json:"total_value"`
	Cash        string `json:"cash"`
	TotalPnL    string `json:"total_pnl"`
	TotalReturn string `json:"total_return"`
}

// EventType returns the event type for PortfolioRevaluedData
func (d *PortfolioRevaluedData) EventType() EventType {
	return PortfolioRevalued
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	AsOf   string `json:"as_of"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// SignalEventData describes a consumed or dropped signal
type SignalEventData struct {
	Type       EventType `json:"-"`
	SignalKey  string    `json:"signal_key"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Outcome    string    `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// EventType returns the configured signal event type
func (d *SignalEventData) EventType() EventType {
	return d.Type
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
