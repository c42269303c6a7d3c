package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
)

// Env is passed to every command as the first Execute argument
type Env struct {
	Client *Client
	Out    io.Writer
	ErrOut io.Writer
}

// Commands lists every tradectl command
var Commands = []subcommands.Command{
	&portfolioCmd{},
	&positionsCmd{},
	&tradesCmd{},
	&ordersCmd{},
	&orderCmd{},
	&cancelCmd{},
	&signalCmd{},
	&statusCmd{},
	&runJobCmd{},
}

func envFrom(args []interface{}) (*Env, bool) {
	if len(args) == 0 {
		return nil, false
	}
	env, ok := args[0].(*Env)
	return env, ok
}

// fail prints err and maps it to an exit status
func fail(env *Env, err error) subcommands.ExitStatus {
	fmt.Fprintln(env.ErrOut, "error:", err)
	return subcommands.ExitFailure
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// portfolio

type portfolioCmd struct{}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show cash, total value and PnL" }
func (*portfolioCmd) Usage() string {
	return `tradectl portfolio

  Prints the current valuation of the account.
`
}
func (*portfolioCmd) SetFlags(*flag.FlagSet) {}

func (*portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	var p ledger.Portfolio
	if err := env.Client.Get(ctx, "/portfolio", nil, &p); err != nil {
		return fail(env, err)
	}

	v := p.Valuation
	tw := newTable(env.Out)
	fmt.Fprintf(tw, "Cash\t%s\n", v.Cash.StringFixed(2))
	fmt.Fprintf(tw, "Positions value\t%s\n", v.PositionsValue.StringFixed(2))
	fmt.Fprintf(tw, "Total value\t%s\n", v.TotalValue.StringFixed(2))
	fmt.Fprintf(tw, "Realized PnL\t%s\n", v.RealizedPnL.StringFixed(2))
	fmt.Fprintf(tw, "Unrealized PnL\t%s\n", v.UnrealizedPnL.StringFixed(2))
	fmt.Fprintf(tw, "Total return\t%s%%\n", v.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(tw, "Open positions\t%d\n", v.PositionCount)
	tw.Flush()
	return subcommands.ExitSuccess
}

// positions

type positionsCmd struct{}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list open positions" }
func (*positionsCmd) Usage() string {
	return `tradectl positions
`
}
func (*positionsCmd) SetFlags(*flag.FlagSet) {}

func (*positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	var positions []domain.Position
	if err := env.Client.Get(ctx, "/positions", nil, &positions); err != nil {
		return fail(env, err)
	}
	if len(positions) == 0 {
		fmt.Fprintln(env.Out, "No open positions")
		return subcommands.ExitSuccess
	}

	tw := newTable(env.Out)
	fmt.Fprintln(tw, "SYMBOL\tQUANTITY\tAVG PRICE\tPRICE\tUNREALIZED\tREALIZED")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol,
			p.Quantity.String(),
			p.AveragePrice.StringFixed(2),
			p.CurrentPrice.StringFixed(2),
			p.UnrealizedPnL.StringFixed(2),
			p.RealizedPnL.StringFixed(2))
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

// trades

type tradesCmd struct {
	symbol string
	limit  int
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list executed trades, newest first" }
func (*tradesCmd) Usage() string {
	return `tradectl trades [-symbol <SYMBOL>] [-limit <n>]
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Only trades for this symbol.")
	f.IntVar(&c.limit, "limit", 50, "Maximum number of trades.")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	query := url.Values{"limit": {strconv.Itoa(c.limit)}}
	if c.symbol != "" {
		query.Set("symbol", c.symbol)
	}

	var trades []domain.Trade
	if err := env.Client.Get(ctx, "/trades", query, &trades); err != nil {
		return fail(env, err)
	}

	tw := newTable(env.Out)
	fmt.Fprintln(tw, "TIME\tSYMBOL\tSIDE\tQUANTITY\tPRICE\tCOMMISSION\tPNL")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Local().Format(time.DateTime),
			t.Symbol,
			t.Side,
			t.Quantity.String(),
			t.Price.StringFixed(2),
			t.Commission.StringFixed(2),
			t.PnL.StringFixed(2))
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

// orders

type ordersCmd struct {
	status string
	symbol string
	limit  int
}

func (*ordersCmd) Name() string     { return "orders" }
func (*ordersCmd) Synopsis() string { return "list orders" }
func (*ordersCmd) Usage() string {
	return `tradectl orders [-status PENDING|FILLED|CANCELLED|REJECTED] [-symbol <SYMBOL>] [-limit <n>]
`
}

func (c *ordersCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "", "Only orders in this status.")
	f.StringVar(&c.symbol, "symbol", "", "Only orders for this symbol.")
	f.IntVar(&c.limit, "limit", 50, "Maximum number of orders.")
}

func (c *ordersCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	query := url.Values{"limit": {strconv.Itoa(c.limit)}}
	if c.status != "" {
		query.Set("status", c.status)
	}
	if c.symbol != "" {
		query.Set("symbol", c.symbol)
	}

	var orders []domain.Order
	if err := env.Client.Get(ctx, "/orders", query, &orders); err != nil {
		return fail(env, err)
	}

	tw := newTable(env.Out)
	fmt.Fprintln(tw, "ORDER ID\tSYMBOL\tSIDE\tTYPE\tQUANTITY\tSTATUS\tREASON")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity.String(), o.Status, o.Reason)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

// order

type orderCmd struct {
	symbol    string
	side      string
	orderType string
	quantity  string
	price     string
}

func (*orderCmd) Name() string     { return "order" }
func (*orderCmd) Synopsis() string { return "submit an order" }
func (*orderCmd) Usage() string {
	return `tradectl order -symbol <SYMBOL> -side BUY|SELL -qty <quantity> [-type MARKET|LIMIT|STOP] [-price <price>]

  Submits an order. MARKET orders fill at the latest price; LIMIT and STOP
  orders wait as PENDING until the price triggers them.
`
}

func (c *orderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Symbol to trade.")
	f.StringVar(&c.side, "side", "BUY", "BUY or SELL.")
	f.StringVar(&c.orderType, "type", "MARKET", "MARKET, LIMIT or STOP.")
	f.StringVar(&c.quantity, "qty", "", "Quantity (decimal).")
	f.StringVar(&c.price, "price", "", "Limit or stop price.")
}

type orderRequest struct {
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	OrderType string           `json:"order_type"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type orderResult struct {
	Outcome string        `json:"outcome"`
	Order   *domain.Order `json:"order"`
	Trade   *domain.Trade `json:"trade,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

func (c *orderCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	quantity, err := decimal.NewFromString(c.quantity)
	if c.symbol == "" || err != nil {
		fmt.Fprintln(env.ErrOut, "error: -symbol and a numeric -qty are required")
		return subcommands.ExitUsageError
	}
	req := orderRequest{Symbol: c.symbol, Side: c.side, OrderType: c.orderType, Quantity: quantity}
	if c.price != "" {
		price, err := decimal.NewFromString(c.price)
		if err != nil {
			fmt.Fprintf(env.ErrOut, "error: invalid -price %q\n", c.price)
			return subcommands.ExitUsageError
		}
		req.Price = &price
	}

	var result orderResult
	_, err = env.Client.Post(ctx, "/orders", req, &result)
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity) {
		return fail(env, err)
	}

	printOrderResult(env.Out, result)
	if result.Outcome == "REJECTED" {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printOrderResult(w io.Writer, result orderResult) {
	if result.Order == nil {
		fmt.Fprintf(w, "%s\n", result.Outcome)
		return
	}
	fmt.Fprintf(w, "%s %s %s %s\n", result.Outcome, result.Order.Side, result.Order.Quantity.String(), result.Order.Symbol)
	fmt.Fprintf(w, "order_id: %s\n", result.Order.OrderID)
	if result.Trade != nil {
		fmt.Fprintf(w, "price: %s commission: %s\n", result.Trade.Price.StringFixed(2), result.Trade.Commission.StringFixed(2))
	}
	if result.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", result.Reason)
	}
}

// cancel

type cancelCmd struct{}

func (*cancelCmd) Name() string     { return "cancel" }
func (*cancelCmd) Synopsis() string { return "cancel a pending order" }
func (*cancelCmd) Usage() string {
	return `tradectl cancel <order_id>
`
}
func (*cancelCmd) SetFlags(*flag.FlagSet) {}

func (*cancelCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok || f.NArg() != 1 {
		return subcommands.ExitUsageError
	}

	var order domain.Order
	if _, err := env.Client.Post(ctx, "/orders/"+url.PathEscape(f.Arg(0))+"/cancel", nil, &order); err != nil {
		return fail(env, err)
	}
	fmt.Fprintf(env.Out, "%s %s\n", order.OrderID, order.Status)
	return subcommands.ExitSuccess
}

// signal

type signalCmd struct {
	symbol     string
	action     string
	confidence float64
	price      string
	sync       bool
}

func (*signalCmd) Name() string     { return "signal" }
func (*signalCmd) Synopsis() string { return "submit a trading signal" }
func (*signalCmd) Usage() string {
	return `tradectl signal -symbol <SYMBOL> -action BUY|SELL|HOLD -confidence <0..1> -price <price> [-sync]

  Submits a signal to the intake queue. With -sync the server processes it
  inline and prints the outcome.
`
}

func (c *signalCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Symbol.")
	f.StringVar(&c.action, "action", "BUY", "BUY, SELL or HOLD.")
	f.Float64Var(&c.confidence, "confidence", 0.5, "Confidence in [0, 1].")
	f.StringVar(&c.price, "price", "", "Current price.")
	f.BoolVar(&c.sync, "sync", false, "Process inline and wait for the outcome.")
}

func (c *signalCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	body := map[string]interface{}{
		"symbol":     c.symbol,
		"action":     c.action,
		"confidence": c.confidence,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if c.price != "" {
		body["current_price"] = c.price
	}

	path := "/signals"
	if c.sync {
		path += "?sync=true"
	}

	var response map[string]interface{}
	if _, err := env.Client.Post(ctx, path, body, &response); err != nil {
		return fail(env, err)
	}

	if c.sync {
		fmt.Fprintf(env.Out, "%v %v %v\n", response["outcome"], response["symbol"], response["reason"])
	} else {
		fmt.Fprintf(env.Out, "queued %v (queue depth %v)\n", response["signal_key"], response["queue_depth"])
	}
	return subcommands.ExitSuccess
}

// status

type statusCmd struct{}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show engine status and scheduled jobs" }
func (*statusCmd) Usage() string {
	return `tradectl status
`
}
func (*statusCmd) SetFlags(*flag.FlagSet) {}

type statusResponse struct {
	Status           string  `json:"status"`
	UptimeSeconds    int64   `json:"uptime_seconds"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	TotalValue       string  `json:"total_value"`
	OpenPositions    int     `json:"open_positions"`
	PendingOrders    int     `json:"pending_orders"`
	SignalQueueDepth int     `json:"signal_queue_depth"`
	Jobs             []struct {
		Name string    `json:"name"`
		Next time.Time `json:"next"`
	} `json:"jobs"`
}

func (*statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok {
		return subcommands.ExitUsageError
	}

	var status statusResponse
	if err := env.Client.Get(ctx, "/system/status", nil, &status); err != nil {
		return fail(env, err)
	}

	tw := newTable(env.Out)
	fmt.Fprintf(tw, "Status\t%s\n", status.Status)
	fmt.Fprintf(tw, "Uptime\t%s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Fprintf(tw, "CPU / memory\t%.1f%% / %.1f%%\n", status.CPUPercent, status.MemoryPercent)
	fmt.Fprintf(tw, "Total value\t%s\n", status.TotalValue)
	fmt.Fprintf(tw, "Open positions\t%d\n", status.OpenPositions)
	fmt.Fprintf(tw, "Pending orders\t%d\n", status.PendingOrders)
	fmt.Fprintf(tw, "Signal queue\t%d\n", status.SignalQueueDepth)
	for _, job := range status.Jobs {
		fmt.Fprintf(tw, "Job %s\tnext %s\n", job.Name, job.Next.Local().Format(time.DateTime))
	}
	tw.Flush()
	return subcommands.ExitSuccess
}

// run-job

type runJobCmd struct{}

func (*runJobCmd) Name() string     { return "run-job" }
func (*runJobCmd) Synopsis() string { return "run a scheduled job now" }
func (*runJobCmd) Usage() string {
	return `tradectl run-job <name>

  Names: mark_to_market, pending_orders, ledger_backup, ledger_maintenance, check_wal_checkpoints
`
}
func (*runJobCmd) SetFlags(*flag.FlagSet) {}

func (*runJobCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env, ok := envFrom(args)
	if !ok || f.NArg() != 1 {
		return subcommands.ExitUsageError
	}

	var result struct {
		Job        string `json:"job"`
		Status     string `json:"status"`
		DurationMS int64  `json:"duration_ms"`
	}
	if _, err := env.Client.Post(ctx, "/system/jobs/"+url.PathEscape(f.Arg(0))+"/run", nil, &result); err != nil {
		return fail(env, err)
	}
	fmt.Fprintf(env.Out, "%s %s in %dms\n", result.Job, result.Status, result.DurationMS)
	return subcommands.ExitSuccess
}
