// Package ledger is the durable store for account, positions, orders,
// trades and portfolio snapshots, with serialized read-modify-write transactions.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RevaluationHook is called after commit for every snapshot a transaction appended
type RevaluationHook func(snapshot domain.PortfolioSnapshot)

// Options configures a Store
type Options struct {
	MaxRetries   int           // Attempts after the first on a busy ledger
	RetryBackoff time.Duration // Base backoff, doubled per attempt
	Clock        func() time.Time
}

// Store is the single entry point for ledger reads and writes
type Store struct {
	db           *database.DB
	log          zerolog.Logger
	maxRetries   int
	retryBackoff time.Duration
	clock        func() time.Time

	mu       sync.RWMutex
	hooks    []RevaluationHook
	lastTick int64
}

// NewStore creates a ledger store on top of a migrated ledger database
func NewStore(db *database.DB, log zerolog.Logger, opts Options) *Store {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		db:           db,
		log:          log.With().Str("service", "ledger").Logger(),
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		clock:        opts.Clock,
	}
}

// DB exposes the underlying database for maintenance jobs
func (s *Store) DB() *database.DB {
	return s.db
}

// OnRevaluation registers a hook fired after each committed snapshot
func (s *Store) OnRevaluation(hook RevaluationHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// now returns a strictly increasing UTC timestamp so ledger rows never tie
func (s *Store) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.clock().UTC().UnixNano()
	if n <= s.lastTick {
		n = s.lastTick + 1
	}
	s.lastTick = n
	return time.Unix(0, n).UTC()
}

// Atomic runs fn inside one serialized ledger transaction.
//
// The write lock is held from before the first read until commit, so every
// check fn performs stays valid for the writes that follow it. When fn
// touched cash or positions the portfolio is revalued and a snapshot is
// appended before commit. A busy ledger reruns fn from the start, up to
// MaxRetries times, then returns domain.ErrPersistenceConflict. Errors
// returned by fn roll the transaction back and are returned unchanged.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retryBackoff * time.Duration(1<<(attempt-1))
			s.log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Ledger busy, retrying transaction")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		var tx *Tx
		err := s.db.WithImmediateTx(ctx, func(q database.Querier) error {
			tx = &Tx{Reader: Reader{ctx: ctx, q: q}, now: s.now()}
			if err := fn(tx); err != nil {
				return err
			}
			if tx.needsReval {
				if _, err := tx.Revalue(); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			s.fireHooks(tx.snapshots)
			return nil
		}
		if !database.IsBusy(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", domain.ErrPersistenceConflict, lastErr)
}

func (s *Store) fireHooks(snapshots []domain.PortfolioSnapshot) {
	if len(snapshots) == 0 {
		return
	}
	s.mu.RLock()
	hooks := append([]RevaluationHook(nil), s.hooks...)
	s.mu.RUnlock()

	for _, snapshot := range snapshots {
		for _, hook := range hooks {
			hook(snapshot)
		}
	}
}

// View runs fn against one consistent read snapshot of the ledger
func (s *Store) View(ctx context.Context, fn func(r *Reader) error) error {
	return s.db.WithReadTx(ctx, func(q database.Querier) error {
		return fn(&Reader{ctx: ctx, q: q})
	})
}

// EnsureAccount creates the account with initialCapital on first start and
// records the opening snapshot. An existing account is left untouched.
func (s *Store) EnsureAccount(ctx context.Context, initialCapital decimal.Decimal) (*domain.Account, error) {
	if !initialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %s", initialCapital)
	}

	var account *domain.Account
	err := s.Atomic(ctx, func(tx *Tx) error {
		res, err := tx.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO account (id, cash, total_value, initial_capital, last_updated)
			VALUES (1, ?, ?, ?, ?)`,
			initialCapital, initialCapital, initialCapital, tx.now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to initialize account: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.log.Info().Str("initial_capital", initialCapital.String()).Msg("Account initialized")
			tx.RequestRevaluation()
		}
		account, err = tx.Account()
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Portfolio is a consistent view of the account, open positions and valuation
type Portfolio struct {
	Account   domain.Account    `json:"account"`
	Positions []domain.Position `json:"positions"`
	Valuation Valuation         `json:"valuation"`
}

// Portfolio reads account and positions from one snapshot and values them
func (s *Store) Portfolio(ctx context.Context) (*Portfolio, error) {
	var p Portfolio
	err := s.View(ctx, func(r *Reader) error {
		account, err := r.Account()
		if err != nil {
			return err
		}
		positions, err := r.Positions()
		if err != nil {
			return err
		}
		p.Account = *account
		p.Positions = positions
		p.Valuation = Valuate(account, positions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Account returns the current account
func (s *Store) Account(ctx context.Context) (*domain.Account, error) {
	var account *domain.Account
	err := s.View(ctx, func(r *Reader) (err error) {
		account, err = r.Account()
		return err
	})
	return account, err
}

// Positions returns all open positions
func (s *Store) Positions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position
	err := s.View(ctx, func(r *Reader) (err error) {
		positions, err = r.Positions()
		return err
	})
	return positions, err
}

// Position returns one open position, or nil
func (s *Store) Position(ctx context.Context, symbol string) (*domain.Position, error) {
	var position *domain.Position
	err := s.View(ctx, func(r *Reader) (err error) {
		position, err = r.Position(symbol)
		return err
	})
	return position, err
}

// Order returns an order by id, or domain.ErrOrderNotFound
func (s *Store) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.View(ctx, func(r *Reader) (err error) {
		order, err = r.Order(orderID)
		return err
	})
	return order, err
}

// Orders lists orders matching filter
func (s *Store) Orders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.View(ctx, func(r *Reader) (err error) {
		orders, err = r.Orders(filter)
		return err
	})
	return orders, err
}

// Trades lists trades newest first
func (s *Store) Trades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.View(ctx, func(r *Reader) (err error) {
		trades, err = r.Trades(filter)
		return err
	})
	return trades, err
}

// Snapshots lists snapshots chronologically
func (s *Store) Snapshots(ctx context.Context, filter SnapshotFilter) ([]domain.PortfolioSnapshot, error) {
	var snapshots []domain.PortfolioSnapshot
	err := s.View(ctx, func(r *Reader) (err error) {
		snapshots, err = r.Snapshots(filter)
		return err
	})
	return snapshots, err
}
