// Package signals consumes trading signals, sizes them into orders and
// submits them through the trading service one at a time.
package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Signal is a validated trading signal
type Signal struct {
	SignalID     string              `json:"signal_id,omitempty"`
	Symbol       string              `json:"symbol"`
	Action       domain.SignalAction `json:"action"`
	Confidence   float64             `json:"confidence"`
	CurrentPrice decimal.Decimal     `json:"current_price"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Validate normalizes the symbol and checks every field
func (s *Signal) Validate() error {
	s.Symbol = domain.NormalizeSymbol(s.Symbol)
	if s.Symbol == "" {
		return domain.NewValidationError("symbol", "must not be empty")
	}
	if !s.Action.IsValid() {
		return domain.NewValidationError("action", fmt.Sprintf("must be BUY, SELL or HOLD, got %q", s.Action))
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return domain.NewValidationError("confidence", "must be within [0, 1]")
	}
	if s.Action != domain.ActionHold && !s.CurrentPrice.IsPositive() {
		return domain.NewValidationError("current_price", "must be positive")
	}
	if s.Timestamp.IsZero() {
		return domain.NewValidationError("timestamp", "must be set")
	}
	return nil
}

// Key identifies a signal for duplicate detection: the producer's id when
// present, otherwise a SHA-256 of the canonical payload.
func (s *Signal) Key() string {
	if s.SignalID != "" {
		return "id:" + s.SignalID
	}
	canonical := fmt.Sprintf("%s|%s|%s|%s|%d",
		s.Symbol,
		s.Action,
		strconv.FormatFloat(s.Confidence, 'f', -1, 64),
		s.CurrentPrice.String(),
		s.Timestamp.UTC().UnixNano())
	sum := sha256.Sum256([]byte(canonical))
	return "sha256:" + hex.EncodeToString(sum[:])
}
