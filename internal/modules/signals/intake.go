package signals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrQueueFull is returned by Enqueue when the intake cannot accept more signals
var ErrQueueFull = errors.New("signal queue is full")

// OrderSubmitter creates and executes orders
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req trading.OrderRequest) (*domain.Order, trading.ExecutionResult, error)
}

// AccountReader returns the current account for sizing
type AccountReader interface {
	Account(ctx context.Context) (*domain.Account, error)
}

// PriceRecorder stores a signal's price as a market tick
type PriceRecorder interface {
	RecordTick(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (bool, error)
}

// Source delivers signals into out until ctx is cancelled
type Source interface {
	Name() string
	Stream(ctx context.Context, out chan<- Signal) error
}

// IntakeConfig configures an Intake
type IntakeConfig struct {
	QueueSize int
	// Prices, when set, records each actionable signal's current_price as a tick before sizing
	Prices PriceRecorder
}

// Intake processes signals strictly one at a time: dedupe, size, submit, record.
type Intake struct {
	orders   OrderSubmitter
	accounts AccountReader
	sizer    *Sizer
	repo     *Repository
	prices   PriceRecorder
	events   *events.Manager
	log      zerolog.Logger

	queue chan Signal
	mu    sync.Mutex // serializes Process across Run and direct callers
}

// NewIntake creates a new signal intake
func NewIntake(
	orders OrderSubmitter,
	accounts AccountReader,
	sizer *Sizer,
	repo *Repository,
	eventManager *events.Manager,
	cfg IntakeConfig,
	log zerolog.Logger,
) *Intake {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Intake{
		orders:   orders,
		accounts: accounts,
		sizer:    sizer,
		repo:     repo,
		prices:   cfg.Prices,
		events:   eventManager,
		log:      log.With().Str("service", "signal_intake").Logger(),
		queue:    make(chan Signal, cfg.QueueSize),
	}
}

// Enqueue hands a validated signal to the intake loop without blocking
func (in *Intake) Enqueue(sig Signal) error {
	select {
	case in.queue <- sig:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of signals waiting to be processed
func (in *Intake) QueueDepth() int {
	return len(in.queue)
}

// Run starts every source and processes their signals sequentially until ctx is done
func (in *Intake) Run(ctx context.Context, sources ...Source) {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			in.log.Info().Str("source", src.Name()).Msg("Signal source started")
			if err := src.Stream(ctx, in.queue); err != nil && ctx.Err() == nil {
				in.log.Error().Err(err).Str("source", src.Name()).Msg("Signal source stopped")
			}
		}(src)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			in.log.Info().Msg("Signal intake stopped")
			return
		case sig := <-in.queue:
			in.processQueued(ctx, sig)
		}
	}
}

// processQueued runs one queued signal; a failure never stops the loop
func (in *Intake) processQueued(ctx context.Context, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			in.log.Error().Interface("panic", r).Str("symbol", sig.Symbol).Msg("Signal processing panicked")
		}
	}()
	if _, err := in.Process(ctx, sig); err != nil {
		in.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Signal processing failed")
	}
}

// Process handles one signal and returns its recorded outcome. A signal
// whose key was already processed returns the earlier record unchanged.
// Errors are returned only for store failures; gate rejections and sizing
// drops are outcomes.
func (in *Intake) Process(ctx context.Context, sig Signal) (*domain.ProcessedSignal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := sig.Validate(); err != nil {
		return nil, err
	}

	key := sig.Key()
	if seen, err := in.repo.Get(ctx, key); err != nil {
		return nil, err
	} else if seen != nil {
		in.log.Debug().Str("signal_key", key).Str("outcome", string(seen.Outcome)).Msg("Duplicate signal skipped")
		return seen, nil
	}

	in.emit(events.SignalReceived, key, &sig, "", "")

	record := &domain.ProcessedSignal{
		SignalKey:  key,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		ReceivedAt: time.Now().UTC(),
	}

	persist, err := in.handle(ctx, &sig, record)
	if persist {
		if recErr := in.repo.Record(ctx, record); recErr != nil {
			in.log.Error().Err(recErr).Str("signal_key", key).Msg("Failed to record processed signal")
		}
	}

	switch record.Outcome {
	case domain.OutcomeDropped, domain.OutcomeRejected, domain.OutcomeFailed:
		in.emit(events.SignalDropped, key, &sig, record.Outcome, record.Reason)
	}
	return record, err
}

// handle fills record and reports whether it should enter the processed set
func (in *Intake) handle(ctx context.Context, sig *Signal, record *domain.ProcessedSignal) (bool, error) {
	side, actionable := sig.Action.Side()
	if !actionable {
		record.Outcome = domain.OutcomeIgnored
		return true, nil
	}

	if in.prices != nil {
		if _, err := in.prices.RecordTick(ctx, sig.Symbol, sig.CurrentPrice, sig.Timestamp); err != nil {
			in.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Failed to record signal price")
		}
	}

	account, err := in.accounts.Account(ctx)
	if err != nil {
		record.Outcome = domain.OutcomeFailed
		record.Reason = err.Error()
		return false, err
	}

	quantity := in.sizer.Size(account.TotalValue, sig)
	if !quantity.IsPositive() {
		record.Outcome = domain.OutcomeDropped
		record.Reason = "sized quantity is zero"
		in.log.Info().
			Str("symbol", sig.Symbol).
			Float64("confidence", sig.Confidence).
			Msg("Signal dropped: sized quantity is zero")
		return true, nil
	}

	order, result, err := in.orders.CreateOrder(ctx, trading.OrderRequest{
		Symbol:    sig.Symbol,
		Side:      string(side),
		OrderType: string(domain.OrderTypeMarket),
		Quantity:  quantity,
		Source:    domain.SourceSignal,
	})
	if order != nil {
		record.OrderID = order.OrderID
	}

	if reason, rejected := domain.RejectionReason(err); rejected {
		record.Outcome = domain.OutcomeRejected
		record.Reason = reason
		in.log.Info().Str("symbol", sig.Symbol).Str("reason", reason).Msg("Signal rejected by risk gate")
		return true, nil
	}
	if err != nil {
		record.Outcome = domain.OutcomeFailed
		record.Reason = err.Error()
		// Without a persisted order a redelivery may safely retry
		return order != nil, err
	}

	switch result.Outcome {
	case trading.OutcomeFilled:
		record.Outcome = domain.OutcomeExecuted
	case trading.OutcomeRejected:
		record.Outcome = domain.OutcomeRejected
		record.Reason = result.Reason
	default:
		record.Outcome = domain.OutcomePending
		record.Reason = result.Reason
	}
	return true, nil
}

func (in *Intake) emit(eventType events.EventType, key string, sig *Signal, outcome domain.SignalOutcome, reason string) {
	if in.events == nil {
		return
	}
	in.events.EmitTyped("signals", &events.SignalEventData{
		Type:       eventType,
		SignalKey:  key,
		Symbol:     sig.Symbol,
		Action:     string(sig.Action),
		Confidence: sig.Confidence,
		Outcome:    string(outcome),
		Reason:     reason,
	})
}
