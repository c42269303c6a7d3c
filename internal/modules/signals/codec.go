package signals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// wireSignal is the loosely typed message producers send. Prices may be
// numbers or strings; timestamps may be RFC3339 strings, unix seconds or
// msgpack timestamps.
type wireSignal struct {
	SignalID     string      `json:"signal_id,omitempty" msgpack:"signal_id,omitempty"`
	Symbol       string      `json:"symbol" msgpack:"symbol"`
	Action       string      `json:"action" msgpack:"action"`
	Confidence   *float64    `json:"confidence" msgpack:"confidence"`
	CurrentPrice interface{} `json:"current_price" msgpack:"current_price"`
	Timestamp    interface{} `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// DecodeJSON decodes and validates a JSON signal
func DecodeJSON(data []byte) (*Signal, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var w wireSignal
	if err := dec.Decode(&w); err != nil {
		return nil, domain.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	return w.toSignal()
}

// DecodeMsgpack decodes and validates a msgpack signal
func DecodeMsgpack(data []byte) (*Signal, error) {
	var w wireSignal
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, domain.NewValidationError("payload", "malformed msgpack: "+err.Error())
	}
	return w.toSignal()
}

// EncodeJSON encodes a signal in the JSON wire format
func EncodeJSON(s *Signal) ([]byte, error) {
	return json.Marshal(fromSignal(s))
}

// EncodeMsgpack encodes a signal in the msgpack wire format
func EncodeMsgpack(s *Signal) ([]byte, error) {
	return msgpack.Marshal(fromSignal(s))
}

func fromSignal(s *Signal) wireSignal {
	confidence := s.Confidence
	return wireSignal{
		SignalID:     s.SignalID,
		Symbol:       s.Symbol,
		Action:       string(s.Action),
		Confidence:   &confidence,
		CurrentPrice: s.CurrentPrice.String(),
		Timestamp:    s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (w *wireSignal) toSignal() (*Signal, error) {
	if w.Confidence == nil {
		return nil, domain.NewValidationError("confidence", "is required")
	}

	s := &Signal{
		SignalID:   strings.TrimSpace(w.SignalID),
		Symbol:     w.Symbol,
		Action:     domain.SignalAction(strings.ToUpper(strings.TrimSpace(w.Action))),
		Confidence: *w.Confidence,
	}

	if w.CurrentPrice != nil {
		price, err := toDecimal(w.CurrentPrice)
		if err != nil {
			return nil, domain.NewValidationError("current_price", err.Error())
		}
		s.CurrentPrice = price
	}

	ts, err := toTime(w.Timestamp)
	if err != nil {
		return nil, domain.NewValidationError("timestamp", err.Error())
	}
	// The payload hash covers the timestamp, so only signals with an id may omit it
	if ts.IsZero() && s.SignalID != "" {
		ts = time.Now().UTC()
	}
	s.Timestamp = ts

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat32(x), nil
	case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
		return decimal.NewFromString(fmt.Sprint(x))
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}
}

// toTime accepts RFC3339 strings, unix seconds and time values; nil is the zero time
func toTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, fmt.Errorf("must be RFC3339: %w", err)
		}
		return t.UTC(), nil
	default:
		seconds, err := toDecimal(v)
		if err != nil {
			return time.Time{}, err
		}
		nanos := seconds.Shift(9).IntPart()
		return time.Unix(0, nanos).UTC(), nil
	}
}
