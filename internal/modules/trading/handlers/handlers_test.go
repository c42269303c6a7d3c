package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrderService returns canned results
type mockOrderService struct {
	order      *domain.Order
	result     trading.ExecutionResult
	err        error
	lastFilter ledger.OrderFilter
	lastSource domain.OrderSource
}

func (m *mockOrderService) CreateOrder(_ context.Context, req trading.OrderRequest) (*domain.Order, trading.ExecutionResult, error) {
	m.lastSource = req.Source
	return m.order, m.result, m.err
}

func (m *mockOrderService) CancelOrder(_ context.Context, _ string) (*domain.Order, error) {
	return m.order, m.err
}

func (m *mockOrderService) GetOrder(_ context.Context, _ string) (*domain.Order, error) {
	return m.order, m.err
}

func (m *mockOrderService) ListOrders(_ context.Context, filter ledger.OrderFilter) ([]domain.Order, error) {
	m.lastFilter = filter
	if m.order == nil {
		return nil, m.err
	}
	return []domain.Order{*m.order}, m.err
}

func newRouter(svc OrderService) http.Handler {
	h := NewTradingHandlers(svc, zerolog.New(nil).Level(zerolog.Disabled))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func sampleOrder(status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		OrderID:  "ord-1",
		Symbol:   "AAPL",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10),
		Status:   status,
		Source:   domain.SourceAPI,
	}
}

func TestHandleCreateOrder_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		svc      *mockOrderService
		body     string
		expected int
	}{
		{
			name:     "filled",
			svc:      &mockOrderService{order: sampleOrder(domain.StatusFilled), result: trading.ExecutionResult{Outcome: trading.OutcomeFilled}},
			body:     `{"symbol":"AAPL","side":"BUY","quantity":"10"}`,
			expected: http.StatusCreated,
		},
		{
			name:     "pending",
			svc:      &mockOrderService{order: sampleOrder(domain.StatusPending), result: trading.ExecutionResult{Outcome: trading.OutcomePending}},
			body:     `{"symbol":"AAPL","side":"BUY","quantity":10}`,
			expected: http.StatusAccepted,
		},
		{
			name: "rejected",
			svc: &mockOrderService{
				order:  sampleOrder(domain.StatusRejected),
				result: trading.ExecutionResult{Outcome: trading.OutcomeRejected, Reason: "insufficient cash"},
				err:    &domain.RiskRejectedError{Reason: "insufficient cash"},
			},
			body:     `{"symbol":"AAPL","side":"BUY","quantity":"10"}`,
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "validation",
			svc:      &mockOrderService{err: domain.NewValidationError("quantity", "must be positive")},
			body:     `{"symbol":"AAPL","side":"BUY","quantity":"0"}`,
			expected: http.StatusBadRequest,
		},
		{
			name:     "conflict",
			svc:      &mockOrderService{err: domain.ErrPersistenceConflict},
			body:     `{"symbol":"AAPL","side":"BUY","quantity":"1"}`,
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "malformed body",
			svc:      &mockOrderService{},
			body:     `{not json`,
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			newRouter(tt.svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleCreateOrder_ForcesAPISource(t *testing.T) {
	svc := &mockOrderService{order: sampleOrder(domain.StatusFilled), result: trading.ExecutionResult{Outcome: trading.OutcomeFilled}}
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"symbol":"AAPL","side":"BUY","quantity":"1"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, domain.SourceAPI, svc.lastSource)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "FILLED", data["outcome"])
}

func TestHandleGetOrder_NotFound(t *testing.T) {
	svc := &mockOrderService{err: domain.ErrOrderNotFound}
	req := httptest.NewRequest(http.MethodGet, "/orders/missing", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelOrder(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		svc := &mockOrderService{order: sampleOrder(domain.StatusCancelled)}
		req := httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", nil)
		rec := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not pending", func(t *testing.T) {
		svc := &mockOrderService{err: domain.ErrInvalidTransition}
		req := httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", nil)
		rec := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleListOrders(t *testing.T) {
	svc := &mockOrderService{order: sampleOrder(domain.StatusPending)}
	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending&symbol=aapl&limit=5", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPending, svc.lastFilter.Status)
	assert.Equal(t, "AAPL", svc.lastFilter.Symbol)
	assert.Equal(t, 5, svc.lastFilter.Limit)

	req = httptest.NewRequest(http.MethodGet, "/orders?status=bogus", nil)
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListOrders_PageBounds(t *testing.T) {
	testCases := []struct {
		name     string
		query    string
		expected int
	}{
		{"default", "", defaultOrderLimit},
		{"zero", "?limit=0", defaultOrderLimit},
		{"too large", "?limit=10000", maxOrderLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockOrderService{order: sampleOrder(domain.StatusPending)}
			req := httptest.NewRequest(http.MethodGet, "/orders"+tc.query, nil)
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.expected, svc.lastFilter.Limit)
		})
	}
}
