package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/di"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()

	cfg := &config.Config{
		DataDir: t.TempDir(),
		Port:    8001,
		DevMode: true,
		Ledger: config.LedgerConfig{
			Driver:         "sqlite",
			InitialCapital: 100000,
			MaxRetries:     3,
		},
		Risk: config.RiskConfig{
			MaxPositionFraction: 0.1,
			CommissionRate:      0.001,
			SymbolLimits:        map[string]float64{},
		},
		Signals: config.SignalsConfig{QueueSize: 16},
		Jobs: config.JobsConfig{
			MarkToMarketSchedule: "@every 60s",
			PendingRetrySchedule: "@every 30s",
			MaintenanceSchedule:  "0 0 2 * * *",
			WALCheckSchedule:     "@every 5m",
		},
		Backup: config.BackupConfig{Schedule: "0 0 3 * * *", RetentionDays: 30},
	}

	container, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	s := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   true,
	})
	return s, container
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "autotrader", body["service"])
}

func TestHealth_DatabaseClosed(t *testing.T) {
	s, container := newTestServer(t)
	require.NoError(t, container.LedgerDB.Close())

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutes_OrderLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/market/prices", `{"symbol":"AAPL","price":"150"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/orders", `{"symbol":"AAPL","side":"BUY","order_type":"MARKET","quantity":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeData(t, rec)
	assert.Equal(t, "FILLED", result["outcome"])

	rec = do(t, s, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")

	rec = do(t, s, http.MethodGet, "/api/portfolio", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/snapshots", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/orders/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["cash"])
	assert.EqualValues(t, 0, data["pending_orders"])
	jobs, ok := data["jobs"].([]interface{})
	require.True(t, ok)
	assert.Len(t, jobs, 5)
}

func TestSystemJobs_Run(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/system/jobs/unknown/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/system/jobs/check_wal_checkpoints/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decodeData(t, rec)["status"])
}

func TestSystemBackups_AfterManualRun(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/system/jobs/ledger_backup/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/system/backups", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Contains(t, envelope.Data[0]["key"], "ledger-backup-")
}

func readEvent(t *testing.T, reader *bufio.Reader) map[string]interface{} {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var event map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(payload), &event))
			return event
		}
	}
}

func TestEventsStream_FiltersAndUnsubscribes(t *testing.T) {
	s, container := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	before := container.EventBus.SubscriberCount()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=price_updated", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "connected", readEvent(t, reader)["type"])
	assert.Equal(t, before+1, container.EventBus.SubscriberCount())

	// An order event is filtered out, the price event comes through
	do(t, s, http.MethodPost, "/api/orders", `{"symbol":"MSFT","side":"BUY","order_type":"MARKET","quantity":"1"}`)
	do(t, s, http.MethodPost, "/api/market/prices", `{"symbol":"AAPL","price":"150"}`)

	event := readEvent(t, reader)
	assert.Equal(t, "PRICE_UPDATED", event["type"])
	data, ok := event["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AAPL", data["symbol"])

	cancel()
	assert.Eventually(t, func() bool {
		return container.EventBus.SubscriberCount() == before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsStream_UnknownType(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/events/stream?types=NOT_A_TYPE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
