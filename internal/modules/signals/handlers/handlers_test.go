package handlers

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/signals"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type mockIntake struct {
	queued    []signals.Signal
	processed []signals.Signal
	full      bool
}

func (m *mockIntake) Enqueue(sig signals.Signal) error {
	if m.full {
		return signals.ErrQueueFull
	}
	m.queued = append(m.queued, sig)
	return nil
}

func (m *mockIntake) Process(_ context.Context, sig signals.Signal) (*domain.ProcessedSignal, error) {
	m.processed = append(m.processed, sig)
	return &domain.ProcessedSignal{SignalKey: sig.Key(), Symbol: sig.Symbol, Action: sig.Action, Outcome: domain.OutcomeExecuted}, nil
}

func (m *mockIntake) QueueDepth() int {
	return len(m.queued)
}

type mockLister struct {
	limit   int
	records []domain.ProcessedSignal
}

func (m *mockLister) List(_ context.Context, limit int) ([]domain.ProcessedSignal, error) {
	m.limit = limit
	return m.records, nil
}

func setupRouter(intake *mockIntake, lister *mockLister) http.Handler {
	router := chi.NewRouter()
	NewHandler(intake, lister, zerolog.New(nil).Level(zerolog.Disabled)).RegisterRoutes(router)
	return router
}

func post(router http.Handler, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const buySignal = `{"signal_id":"s-1","symbol":"aapl","action":"BUY","confidence":0.8,"current_price":150}`

func TestHandleSubmitSignal_Queues(t *testing.T) {
	intake := &mockIntake{}
	router := setupRouter(intake, &mockLister{})

	rec := post(router, "/signals", "application/json", []byte(buySignal))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"signal_key":"id:s-1"`)
	require.Len(t, intake.queued, 1)
	assert.Equal(t, "AAPL", intake.queued[0].Symbol)
}

func TestHandleSubmitSignal_Sync(t *testing.T) {
	intake := &mockIntake{}
	router := setupRouter(intake, &mockLister{})

	rec := post(router, "/signals?sync=true", "application/json", []byte(buySignal))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"outcome":"EXECUTED"`)
	assert.Len(t, intake.processed, 1)
	assert.Empty(t, intake.queued)
}

func TestHandleSubmitSignal_Msgpack(t *testing.T) {
	intake := &mockIntake{}
	router := setupRouter(intake, &mockLister{})

	sig, err := signals.DecodeJSON([]byte(buySignal))
	require.NoError(t, err)
	payload, err := signals.EncodeMsgpack(sig)
	require.NoError(t, err)

	rec := post(router, "/signals", "application/msgpack", payload)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, intake.queued, 1)
	assert.Equal(t, "s-1", intake.queued[0].SignalID)
}

func TestHandleSubmitSignal_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		full     bool
		expected int
	}{
		{"malformed", `{"symbol"`, false, http.StatusBadRequest},
		{"confidence out of range", `{"symbol":"AAPL","action":"BUY","confidence":1.5,"current_price":1}`, false, http.StatusBadRequest},
		{"no timestamp and no id", `{"symbol":"AAPL","action":"BUY","confidence":0.5,"current_price":1}`, false, http.StatusBadRequest},
		{"queue full", buySignal, true, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(&mockIntake{full: tc.full}, &mockLister{})
			rec := post(router, "/signals", "application/json", []byte(tc.body))
			assert.Equal(t, tc.expected, rec.Code)
		})
	}
}

func TestHandleSubmitSignal_MsgpackNaNConfidence(t *testing.T) {
	intake := &mockIntake{}
	router := setupRouter(intake, &mockLister{})

	payload, err := msgpack.Marshal(map[string]interface{}{
		"signal_id":     "s-nan",
		"symbol":        "AAPL",
		"action":        "BUY",
		"confidence":    math.NaN(),
		"current_price": 150.0,
	})
	require.NoError(t, err)

	rec := post(router, "/signals?sync=true", "application/msgpack", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, intake.processed)
}

func TestHandleListProcessed(t *testing.T) {
	lister := &mockLister{records: []domain.ProcessedSignal{{SignalKey: "id:s-1", Outcome: domain.OutcomeRejected, Reason: "insufficient cash"}}}
	router := setupRouter(&mockIntake{}, lister)

	req := httptest.NewRequest(http.MethodGet, "/signals/processed?limit=5000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, lister.limit)
	assert.Contains(t, rec.Body.String(), `"outcome":"REJECTED"`)
}
