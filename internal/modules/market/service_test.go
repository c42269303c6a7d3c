package market

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	testingpkg "github.com/aristath/autotrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewService(NewRepository(db, log), log)
}

func TestLatestPrice_NoMarketData(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.LatestPrice(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestRecordTick_NewerWinsAndNotifies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var ticks []domain.MarketPrice
	svc.OnTick(func(_ context.Context, tick domain.MarketPrice) { ticks = append(ticks, tick) })

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	updated, err := svc.RecordTick(ctx, "aapl", decimal.NewFromInt(150), t0)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = svc.RecordTick(ctx, "AAPL", decimal.NewFromInt(140), t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = svc.RecordTick(ctx, "AAPL", decimal.NewFromInt(155), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, updated)

	price, err := svc.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(155)))

	require.Len(t, ticks, 2)
	assert.Equal(t, "AAPL", ticks[0].Symbol)

	quote, err := svc.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, quote.AsOf.Equal(t0.Add(time.Minute)))

	prices, err := svc.Prices(ctx)
	require.NoError(t, err)
	assert.Len(t, prices, 1)
}

func TestRecordTick_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordTick(ctx, "AAPL", decimal.Zero, time.Now())
	assert.True(t, domain.IsValidation(err))

	_, err = svc.RecordTick(ctx, " ", decimal.NewFromInt(1), time.Now())
	assert.True(t, domain.IsValidation(err))
}
