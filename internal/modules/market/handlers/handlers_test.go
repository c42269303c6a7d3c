package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/market"
	testingpkg "github.com/aristath/autotrader/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) (http.Handler, *market.Service) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := market.NewService(market.NewRepository(db, log), log)

	router := chi.NewRouter()
	NewHandler(service, log).RegisterRoutes(router)
	return router, service
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRecordPrices(t *testing.T) {
	router, service := setupTestRouter(t)

	var ticks []string
	service.OnTick(func(_ context.Context, tick domain.MarketPrice) { ticks = append(ticks, tick.Symbol) })

	rec := do(router, http.MethodPost, "/market/prices", `{"symbol":"aapl","price":"150.25"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodPost, "/market/prices",
		`[{"symbol":"MSFT","price":300,"as_of":"2024-01-01T00:00:00Z"},{"symbol":"MSFT","price":299,"as_of":"2023-12-31T00:00:00Z"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"accepted":1`)

	assert.Equal(t, []string{"AAPL", "MSFT"}, ticks)

	price, err := service.LatestPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "300", price.String())
}

func TestHandleRecordPrices_Invalid(t *testing.T) {
	router, _ := setupTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/market/prices", `{"symbol":"AAPL","price":"-1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/market/prices", `nope`).Code)
}

func TestHandleGetPrice(t *testing.T) {
	router, _ := setupTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/market/prices/AAPL", "").Code)

	do(router, http.MethodPost, "/market/prices", `{"symbol":"AAPL","price":"151"}`)
	rec := do(router, http.MethodGet, "/market/prices/aapl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":"151"`)

	rec = do(router, http.MethodGet, "/market/prices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"AAPL"`)
}
