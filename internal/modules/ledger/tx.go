package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderFilter narrows order listings
type OrderFilter struct {
	Status domain.OrderStatus
	Symbol string
	Limit  int
}

// TradeFilter narrows trade listings
type TradeFilter struct {
	Symbol string
	Limit  int
	Offset int
}

// SnapshotFilter narrows snapshot listings; zero times are open bounds
type SnapshotFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Reader runs queries against one consistent view of the ledger.
// It is only valid inside the View or Atomic callback that created it.
type Reader struct {
	ctx context.Context
	q   database.Querier
}

// Account returns the singleton account row
func (r *Reader) Account() (*domain.Account, error) {
	row := r.q.QueryRowContext(r.ctx, "SELECT "+accountColumns+" FROM account WHERE id = 1")
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account not initialized")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	return account, nil
}

// Position returns the open position for symbol, or nil if there is none
func (r *Reader) Position(symbol string) (*domain.Position, error) {
	row := r.q.QueryRowContext(r.ctx, "SELECT "+positionColumns+" FROM positions WHERE symbol = ?", symbol)
	position, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position %s: %w", symbol, err)
	}
	return position, nil
}

// Positions returns all open positions ordered by symbol
func (r *Reader) Positions() ([]domain.Position, error) {
	rows, err := r.q.QueryContext(r.ctx, "SELECT "+positionColumns+" FROM positions ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// Order returns an order by its public id
func (r *Reader) Order(orderID string) (*domain.Order, error) {
	row := r.q.QueryRowContext(r.ctx, "SELECT "+orderColumns+" FROM orders WHERE order_id = ?", orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", orderID, err)
	}
	return order, nil
}

// Orders lists orders, oldest first, so pending retries follow submission order
func (r *Reader) Orders(filter OrderFilter) ([]domain.Order, error) {
	var where []string
	var args []interface{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// TradeForOrder returns the trade produced by an order, or nil
func (r *Reader) TradeForOrder(orderID string) (*domain.Trade, error) {
	row := r.q.QueryRowContext(r.ctx, "SELECT "+tradeColumns+" FROM trades WHERE order_id = ?", orderID)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trade for order %s: %w", orderID, err)
	}
	return trade, nil
}

// Trades lists trades newest first
func (r *Reader) Trades(filter TradeFilter) ([]domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades"
	var args []interface{}
	if filter.Symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, filter.Symbol)
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.q.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// Snapshots lists snapshots in chronological order. With a limit, the most
// recent snapshots are kept.
func (r *Reader) Snapshots(filter SnapshotFilter) ([]domain.PortfolioSnapshot, error) {
	var where []string
	var args []interface{}
	if !filter.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.To.UnixNano())
	}

	inner := "SELECT " + snapshotColumns + " FROM portfolio_snapshots"
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
	}
	inner += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		inner += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	query := "SELECT " + snapshotColumns + " FROM (" + inner + ") ORDER BY timestamp ASC, id ASC"

	rows, err := r.q.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.PortfolioSnapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

// Tx is a serialized read-modify-write transaction on the ledger.
// Any position or cash write marks the portfolio for revaluation, which
// runs once just before commit.
type Tx struct {
	Reader
	now        time.Time
	needsReval bool
	snapshots  []domain.PortfolioSnapshot
}

// Now is the timestamp used for every write in this transaction
func (tx *Tx) Now() time.Time {
	return tx.now
}

// RequestRevaluation forces a snapshot even if no position row changed
func (tx *Tx) RequestRevaluation() {
	tx.needsReval = true
}

// SetCash overwrites account cash. Negative cash is refused here and by the schema.
func (tx *Tx) SetCash(cash decimal.Decimal) error {
	if cash.IsNegative() {
		return fmt.Errorf("refusing to set negative cash %s", cash)
	}
	_, err := tx.q.ExecContext(tx.ctx,
		"UPDATE account SET cash = ?, last_updated = ? WHERE id = 1",
		cash, tx.now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to update cash: %w", err)
	}
	tx.needsReval = true
	return nil
}

// InsertPosition creates a new position row
func (tx *Tx) InsertPosition(p *domain.Position) error {
	res, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO positions (symbol, quantity, average_price, current_price, unrealized_pnl, realized_pnl, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.Quantity, p.AveragePrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL,
		tx.now.UnixNano(), tx.now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	p.LastUpdated = tx.now
	p.CreatedAt = tx.now
	tx.needsReval = true
	return nil
}

// UpdatePosition writes every mutable column of an existing position
func (tx *Tx) UpdatePosition(p *domain.Position) error {
	res, err := tx.q.ExecContext(tx.ctx, `
		UPDATE positions
		SET quantity = ?, average_price = ?, current_price = ?, unrealized_pnl = ?, realized_pnl = ?, last_updated = ?
		WHERE symbol = ?`,
		p.Quantity, p.AveragePrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, tx.now.UnixNano(), p.Symbol)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", p.Symbol, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s does not exist", p.Symbol)
	}
	p.LastUpdated = tx.now
	tx.needsReval = true
	return nil
}

// DeletePosition removes a closed position
func (tx *Tx) DeletePosition(symbol string) error {
	if _, err := tx.q.ExecContext(tx.ctx, "DELETE FROM positions WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	tx.needsReval = true
	return nil
}

// InsertOrder persists a new order
func (tx *Tx) InsertOrder(o *domain.Order) error {
	o.Timestamp = tx.now
	o.UpdatedAt = tx.now
	res, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO orders (order_id, symbol, side, order_type, quantity, price, status, filled_quantity,
		                    average_fill_price, reason, source, timestamp, filled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.Symbol, string(o.Side), string(o.Type), o.Quantity, o.Price, string(o.Status),
		o.FilledQuantity, o.AverageFillPrice, o.Reason, string(o.Source),
		o.Timestamp.UnixNano(), nullNanos(o.FilledAt), o.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.OrderID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		o.ID = id
	}
	return nil
}

// UpdateOrder persists status and fill fields of an order.
// The status guard refuses to touch orders that left PENDING.
func (tx *Tx) UpdateOrder(o *domain.Order) error {
	o.UpdatedAt = tx.now
	res, err := tx.q.ExecContext(tx.ctx, `
		UPDATE orders
		SET status = ?, filled_quantity = ?, average_fill_price = ?, reason = ?, filled_at = ?, updated_at = ?
		WHERE order_id = ? AND status = ?`,
		string(o.Status), o.FilledQuantity, o.AverageFillPrice, o.Reason, nullNanos(o.FilledAt),
		o.UpdatedAt.UnixNano(), o.OrderID, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.OrderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", o.OrderID, domain.ErrInvalidTransition)
	}
	return nil
}

// InsertTrade appends a trade record
func (tx *Tx) InsertTrade(t *domain.Trade) error {
	t.Timestamp = tx.now
	res, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO trades (order_id, symbol, side, quantity, price, commission, pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.Symbol, string(t.Side), t.Quantity, t.Price, t.Commission, t.PnL, t.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert trade for order %s: %w", t.OrderID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

// Revalue recomputes account.total_value from cash and positions and
// appends a snapshot of the current in-transaction state. Atomic calls it
// automatically before commit when a write is pending revaluation.
func (tx *Tx) Revalue() (*domain.PortfolioSnapshot, error) {
	account, err := tx.Account()
	if err != nil {
		return nil, err
	}
	positions, err := tx.Positions()
	if err != nil {
		return nil, err
	}

	v := Valuate(account, positions)
	if _, err := tx.q.ExecContext(tx.ctx,
		"UPDATE account SET total_value = ?, last_updated = ? WHERE id = 1",
		v.TotalValue, tx.now.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to update total value: %w", err)
	}

	snapshot := &domain.PortfolioSnapshot{
		TotalValue:  v.TotalValue,
		Cash:        v.Cash,
		TotalPnL:    v.TotalPnL,
		TotalReturn: v.TotalReturn,
		Timestamp:   tx.now,
	}
	res, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO portfolio_snapshots (total_value, cash, total_pnl, total_return, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		snapshot.TotalValue, snapshot.Cash, snapshot.TotalPnL, snapshot.TotalReturn, snapshot.Timestamp.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to append portfolio snapshot: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snapshot.ID = id
	}
	tx.needsReval = false
	tx.snapshots = append(tx.snapshots, *snapshot)
	return snapshot, nil
}
