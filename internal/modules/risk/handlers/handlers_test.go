package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/risk"
	testingpkg "github.com/aristath/autotrader/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices map[string]decimal.Decimal

func (s staticPrices) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := s[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, domain.ErrNoMarketData)
	}
	return price, nil
}

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	store := ledger.NewStore(db, log, ledger.Options{})
	_, err := store.EnsureAccount(context.Background(), decimal.NewFromInt(100000))
	require.NoError(t, err)

	prices := staticPrices{"AAPL": decimal.NewFromInt(150)}
	limits := risk.NewLimits(0.1, 0.001, map[string]float64{"TSLA": 0.05})

	router := chi.NewRouter()
	NewHandler(store, prices, limits, log).RegisterRoutes(router)
	return router
}

func TestHandleEvaluate(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name     string
		body     string
		status   int
		approved bool
		rule     string
	}{
		{"approved at market", `{"symbol":"aapl","side":"BUY","quantity":"10"}`, http.StatusOK, true, ""},
		{"cap exceeded", `{"symbol":"AAPL","side":"BUY","quantity":"100"}`, http.StatusOK, false, string(risk.RulePositionSize)},
		{"symbol override", `{"symbol":"TSLA","side":"BUY","quantity":"30","price":"200"}`, http.StatusOK, false, string(risk.RulePositionSize)},
		{"oversell", `{"symbol":"AAPL","side":"SELL","quantity":"1"}`, http.StatusOK, false, string(risk.RuleHolding)},
		{"no price", `{"symbol":"NVDA","side":"BUY","quantity":"1"}`, http.StatusNotFound, false, ""},
		{"bad side", `{"symbol":"AAPL","side":"SHORT","quantity":"1"}`, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/risk/evaluate", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			var body struct {
				Data struct {
					Decision risk.Decision `json:"decision"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.approved, body.Data.Decision.Approved)
			assert.Equal(t, tt.rule, string(body.Data.Decision.Rule))
		})
	}
}

func TestHandleGetLimits(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/risk/limits", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"TSLA":"0.05"`)
}

func TestRegisterRoutes(t *testing.T) {
	handler := NewHandler(nil, nil, risk.Limits{}, zerolog.Nop())

	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
}
