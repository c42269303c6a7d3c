package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/risk"
	testingpkg "github.com/aristath/autotrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPrices is an in-memory PriceSource
type mockPrices struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newMockPrices() *mockPrices {
	return &mockPrices{prices: make(map[string]decimal.Decimal)}
}

func (m *mockPrices) set(symbol, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = decimal.RequireFromString(price)
}

func (m *mockPrices) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, domain.ErrNoMarketData)
	}
	return price, nil
}

type fixture struct {
	store   *ledger.Store
	prices  *mockPrices
	service *TradingService
	bus     *events.Bus
}

func newFixture(t *testing.T, initialCapital string, limits risk.Limits) *fixture {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	store := ledger.NewStore(db, log, ledger.Options{MaxRetries: 5})
	_, err := store.EnsureAccount(context.Background(), testingpkg.D(t, initialCapital))
	require.NoError(t, err)

	prices := newMockPrices()
	bus := events.NewBus()
	executor := NewExecutor(store, prices, limits, log)
	return &fixture{
		store:   store,
		prices:  prices,
		service: NewTradingService(store, executor, events.NewManager(bus, log), log),
		bus:     bus,
	}
}

func defaultLimits() risk.Limits {
	return risk.NewLimits(0.1, 0.001, nil)
}

func marketOrder(symbol, side, quantity string) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: side, Quantity: decimal.RequireFromString(quantity)}
}

func TestExecute_MarketBuyFills(t *testing.T) {
	f := newFixture(t, "100000", defaultLimits())
	ctx := context.Background()
	f.prices.set("AAPL", "150")

	order, result, err := f.service.CreateOrder(ctx, marketOrder("AAPL", "BUY", "53.33"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.StatusFilled, order.Status)
	assert.True(t, order.FilledQuantity.Equal(testingpkg.D(t, "53.33")))
	assert.True(t, order.AverageFillPrice.Decimal.Equal(testingpkg.D(t, "150")))
	require.NotNil(t, order.FilledAt)

	require.NotNil(t, result.Trade)
	assert.True(t, result.Trade.Commission.Equal(testingpkg.D(t, "7.9995")))
	assert.True(t, result.Trade.PnL.IsZero())

	account, err := f.store.Account(ctx)
	require.NoError(t, err)
	assert.True(t, account.Cash.Equal(testingpkg.D(t, "91992.5005")), "cash = %s", account.Cash)
	assert.True(t, account.TotalValue.Equal(testingpkg.D(t, "99992.0005")), "total = %s", account.TotalValue)

	position, err := f.store.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.Quantity.Equal(testingpkg.D(t, "53.33")))
	assert.True(t, position.AveragePrice.Equal(testingpkg.D(t, "150")))
	assert.True(t, position.UnrealizedPnL.IsZero())

	snapshots, err := f.store.Snapshots(ctx, ledger.SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.True(t, snapshots[1].TotalValue.Equal(account.TotalValue))
}

func TestExecute_WeightedAverageCost(t *testing.T) {
	f := newFixture(t, "100000", defaultLimits())
	ctx := context.Background()

	f.prices.set("MSFT", "100")
	_, _, err := f.service.CreateOrder(ctx, marketOrder("MSFT", "BUY", "10"))
	require.NoError(t, err)

	f.prices.set("MSFT", "120")
	_, result, err := f.service.CreateOrder(ctx, marketOrder("MSFT", "BUY", "10"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFilled, result.Outcome)

	position, err := f.store.Position(ctx, "MSFT")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, position.AveragePrice.Equal(decimal.NewFromInt(110)), "avg = %s", position.AveragePrice)
	assert.True(t, position.CurrentPrice.Equal(decimal.NewFromInt(120)))
	assert.True(t, position.UnrealizedPnL.Equal(decimal.NewFromInt(200)))
}

func TestExecute_SellRealizesAndClosesPosition(t *testing.T) {
	f := newFixture(t, "100000", defaultLimits())
	ctx := context.Background()

	f.prices.set("AAPL", "100")
	_, _, err := f.service.CreateOrder(ctx, marketOrder("AAPL", "BUY", "10"))
	require.NoError(t, err)

	f.prices.set("AAPL", "110")
	_, result, err := f.service.CreateOrder(ctx, marketOrder("AAPL", "SELL", "4"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFilled, result.Outcome)
	assert.True(t, result.Trade.PnL.Equal(decimal.NewFromInt(40)))

	position, err := f.store.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.True(t, position.Quantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(40)))

	_, result, err = f.service.CreateOrder(ctx, marketOrder("AAPL", "SELL", "6"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFilled, result.Outcome)

	position, err = f.store.Position(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, position)

	// 100000 - 1000 - 1 + 440 - 0.44 + 660 - 0.66
	account, err := f.store.Account(ctx)
	require.NoError(t, err)
	assert.True(t, account.Cash.Equal(testingpkg.D(t, "100097.9")), "cash = %s", account.Cash)
	assert.True(t, account.TotalValue.Equal(account.Cash))
}

func TestExecute_RiskRejections(t *testing.T) {
	tests := []struct {
		name     string
		capital  string
		limits   risk.Limits
		request  OrderRequest
		contains string
	}{
		{
			name:     "sell without position",
			capital:  "100000",
			limits:   defaultLimits(),
			request:  marketOrder("AAPL", "SELL", "5"),
			contains: "insufficient position",
		},
		{
			name:     "position cap",
			capital:  "100000",
			limits:   defaultLimits(),
			request:  marketOrder("AAPL", "BUY", "100"),
			contains: "position size exceeds limit",
		},
		{
			name:     "insufficient cash",
			capital:  "1000",
			limits:   risk.NewLimits(1, 0.001, nil),
			request:  marketOrder("AAPL", "BUY", "10"),
			contains: "insufficient cash",
		},
		{
			name:     "commission shortfall",
			capital:  "1500",
			limits:   risk.NewLimits(1, 0.001, nil),
			request:  marketOrder("AAPL", "BUY", "10"),
			contains: ReasonCommissionShortfall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.capital, tt.limits)
			ctx := context.Background()
			f.prices.set("AAPL", "150")

			order, result, err := f.service.CreateOrder(ctx, tt.request)
			require.Error(t, err)
			reason, rejected := domain.RejectionReason(err)
			require.True(t, rejected, "expected risk rejection, got %v", err)
			assert.Contains(t, reason, tt.contains)

			assert.Equal(t, OutcomeRejected, result.Outcome)
			require.NotNil(t, order)
			assert.Equal(t, domain.StatusRejected, order.Status)

			stored, err := f.store.Order(ctx, order.OrderID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusRejected, stored.Status)
			assert.Contains(t, stored.Reason, tt.contains)

			account, err := f.store.Account(ctx)
			require.NoError(t, err)
			assert.True(t, account.Cash.Equal(testingpkg.D(t, tt.capital)))

			trades, err := f.store.Trades(ctx, ledger.TradeFilter{})
			require.NoError(t, err)
			assert.Empty(t, trades)
		})
	}
}

func TestExecute_NoMarketDataStaysPending(t *testing.T) {
	f := newFixture(t, "100000", defaultLimits())
	ctx := context.Background()

	order, result, err := f.service.CreateOrder(ctx, marketOrder("NVDA", "BUY", "1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, domain.StatusPending, order.Status)

	_, err = f.service.Executor().Execute(ctx, order.OrderID)
	assert.ErrorIs(t, err, domain.ErrNoMarketData)

	f.prices.set("NVDA", "500")
	summary, err := f.service.ProcessPending(ctx, "nvda")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Filled)

	stored, err := f.store.Order(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, stored.Status)
}

func TestExecute_LimitSell(t *testing.T) {
	f := newFixture(t, "100000", defaultLimits())
	ctx := context.Background()

	f.prices.set("AAPL", "100")
	_, _, err := f.service.CreateOrder(ctx, marketOrder("AAPL", "BUY", "20"))
	require.NoError(t, err)

	f.prices.set("AAPL", "101")

	high := decimal.NewFromInt(105)
	waiting, result, err := f.service.CreateOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: "SELL", OrderType: "LIMIT", Quantity: decimal.NewFromInt(10), Price: &high,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, domain.StatusPending, waiting.Status)

	low := decimal.NewFromInt(95)
	filled, result, err := f.service.CreateOrder(ctx, OrderRequest{
		Symbol: "AAPL", Side: "SELL", OrderType: "LIMIT", Quantity: decimal.NewFromInt(10), Price: &low,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.StatusFilled, filled.Status)
	assert.True(t, result.Trade.Price.Equal(decimal.NewFromInt(101)))

	f.prices.set("AAPL", "106")
	summary, err := f.service.ProcessPending(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Filled)

	position, err := f.store.Position(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, position)
}

func TestTriggered(t *testing.T) {
	price := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }

	tests := []struct {
		name     string
		order    domain.Order
		market   int64
		expected bool
	}{
		{"market always", domain.Order{Type: domain.OrderTypeMarket, Side: domain.SideBuy}, 100, true},
		{"limit buy below", domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideBuy, Price: price(100)}, 99, true},
		{"limit buy at", domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideBuy, Price: price(100)}, 100, true},
		{"limit buy above", domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideBuy, Price: price(100)}, 101, false},
		{"limit sell above", domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideSell, Price: price(95)}, 101, true},
		{"limit sell below", domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideSell, Price: price(105)}, 101, false},
		{"stop buy through", domain.Order{Type: domain.OrderTypeStop, Side: domain.SideBuy, Price: price(100)}, 101, true},
		{"stop buy under", domain.Order{Type: domain.OrderTypeStop, Side: domain.SideBuy, Price: price(100)}, 99, false},
		{"stop sell through", domain.Order{Type: domain.OrderTypeStop, Side: domain.SideSell, Price: price(100)}, 99, true},
		{"stop sell over", domain.Order{Type: domain.OrderTypeStop, Side: domain.SideSell, Price: price(100)}, 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := triggered(&tt.order, decimal.NewFromInt(tt.market))
			assert.Equal(t, tt.expected, ok)
			if !ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestExecute_ConcurrentBuysNeverOverdraw(t *testing.T) {
	f := newFixture(t, "100000", risk.NewLimits(1, 0.001, nil))
	ctx := context.Background()

	const workers = 10
	for i := 0; i < workers; i++ {
		f.prices.set(fmt.Sprintf("SYM%d", i), "200")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		filled   int
		rejected int
		other    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, result, err := f.service.CreateOrder(ctx, marketOrder(fmt.Sprintf("SYM%d", i), "BUY", "100"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && result.Outcome == OutcomeFilled:
				filled++
			case err != nil && result.Outcome == OutcomeRejected:
				rejected++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	// Each fill costs 20000 + 20 commission, so only four fit in 100000
	assert.Empty(t, other)
	assert.Equal(t, 4, filled)
	assert.Equal(t, workers-4, rejected)

	account, err := f.store.Account(ctx)
	require.NoError(t, err)
	assert.False(t, account.Cash.IsNegative())
	expected := decimal.NewFromInt(100000).Sub(decimal.NewFromInt(20020).Mul(decimal.NewFromInt(int64(filled))))
	assert.True(t, account.Cash.Equal(expected), "cash = %s", account.Cash)

	trades, err := f.store.Trades(ctx, ledger.TradeFilter{})
	require.NoError(t, err)
	assert.Len(t, trades, filled)
}
