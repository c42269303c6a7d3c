package signals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists the processed-signal set used for duplicate detection
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new processed-signal repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "processed_signals").Logger(),
	}
}

// Get returns the record for key, or nil if the signal was never processed
func (r *Repository) Get(ctx context.Context, key string) (*domain.ProcessedSignal, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT signal_key, symbol, action, outcome, reason, order_id, received_at
		FROM processed_signals WHERE signal_key = ?`, key)

	p, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read processed signal: %w", err)
	}
	return p, nil
}

// Record stores the outcome of a signal. The first record for a key wins.
func (r *Repository) Record(ctx context.Context, p *domain.ProcessedSignal) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_signals (signal_key, symbol, action, outcome, reason, order_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SignalKey, p.Symbol, string(p.Action), string(p.Outcome), p.Reason, p.OrderID, p.ReceivedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record processed signal: %w", err)
	}
	return nil
}

// List returns the most recently received signals first
func (r *Repository) List(ctx context.Context, limit int) ([]domain.ProcessedSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT signal_key, symbol, action, outcome, reason, order_id, received_at
		FROM processed_signals ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed signals: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedSignal
	for rows.Next() {
		p, err := scanProcessed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processed signal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProcessed(row interface{ Scan(...interface{}) error }) (*domain.ProcessedSignal, error) {
	var p domain.ProcessedSignal
	var action, outcome string
	var receivedAt int64
	if err := row.Scan(&p.SignalKey, &p.Symbol, &action, &outcome, &p.Reason, &p.OrderID, &receivedAt); err != nil {
		return nil, err
	}
	p.Action = domain.SignalAction(action)
	p.Outcome = domain.SignalOutcome(outcome)
	p.ReceivedAt = time.Unix(0, receivedAt).UTC()
	return &p, nil
}
