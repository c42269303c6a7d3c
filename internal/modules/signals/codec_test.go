package signals

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodeJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	testCases := []struct {
		name    string
		payload string
		price   string
		ts      time.Time
	}{
		{
			name:    "numeric price",
			payload: `{"symbol":"aapl","action":"buy","confidence":0.8,"current_price":150.25,"timestamp":"2026-01-02T15:04:05Z"}`,
			price:   "150.25",
			ts:      ts,
		},
		{
			name:    "string price",
			payload: `{"symbol":"AAPL","action":"BUY","confidence":0.8,"current_price":"150.25","timestamp":"2026-01-02T15:04:05Z"}`,
			price:   "150.25",
			ts:      ts,
		},
		{
			name:    "unix seconds",
			payload: `{"symbol":"AAPL","action":"BUY","confidence":0.8,"current_price":150.25,"timestamp":1767366245}`,
			price:   "150.25",
			ts:      ts,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := DecodeJSON([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, "AAPL", sig.Symbol)
			assert.Equal(t, domain.ActionBuy, sig.Action)
			assert.InDelta(t, 0.8, sig.Confidence, 1e-12)
			assert.Equal(t, tc.price, sig.CurrentPrice.String())
			assert.True(t, tc.ts.Equal(sig.Timestamp))
		})
	}
}

func TestDecode_MissingTimestamp(t *testing.T) {
	t.Run("with signal id defaults to now", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		sig, err := DecodeJSON([]byte(`{"signal_id":"s-9","symbol":"AAPL","action":"HOLD","confidence":0.5}`))
		require.NoError(t, err)
		assert.True(t, sig.Timestamp.After(before))
		assert.Equal(t, "id:s-9", sig.Key())
	})

	t.Run("without signal id is rejected", func(t *testing.T) {
		_, err := DecodeJSON([]byte(`{"symbol":"AAPL","action":"BUY","confidence":0.5,"current_price":1}`))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "timestamp", ve.Field)
	})

	t.Run("redelivery keeps its key", func(t *testing.T) {
		payload := []byte(`{"signal_id":"s-10","symbol":"AAPL","action":"BUY","confidence":0.5,"current_price":1}`)
		first, err := DecodeJSON(payload)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		second, err := DecodeJSON(payload)
		require.NoError(t, err)
		assert.Equal(t, first.Key(), second.Key())
	})
}

func TestDecodeJSON_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
	}{
		{"malformed", `{"symbol":`},
		{"missing confidence", `{"symbol":"AAPL","action":"BUY","current_price":1,"timestamp":1767366245}`},
		{"bad price", `{"symbol":"AAPL","action":"BUY","confidence":0.5,"current_price":"abc","timestamp":1767366245}`},
		{"bad timestamp", `{"symbol":"AAPL","action":"BUY","confidence":0.5,"current_price":1,"timestamp":"yesterday"}`},
		{"unknown action", `{"symbol":"AAPL","action":"SHORT","confidence":0.5,"current_price":1,"timestamp":1767366245}`},
		{"buy without price", `{"symbol":"AAPL","action":"BUY","confidence":0.5,"timestamp":1767366245}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(tc.payload))
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestDecodeMsgpack(t *testing.T) {
	data, err := msgpack.Marshal(map[string]interface{}{
		"symbol":        "msft",
		"action":        "SELL",
		"confidence":    0.5,
		"current_price": 300.5,
		"timestamp":     int64(1767366245),
	})
	require.NoError(t, err)

	sig, err := DecodeMsgpack(data)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", sig.Symbol)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.Equal(t, "300.5", sig.CurrentPrice.String())
	assert.Equal(t, int64(1767366245), sig.Timestamp.Unix())

	_, err = DecodeMsgpack([]byte{0xc1})
	assert.True(t, domain.IsValidation(err))
}

func TestDecodeMsgpack_NonFiniteValues(t *testing.T) {
	nan := math.NaN()

	testCases := []struct {
		name   string
		fields map[string]interface{}
		field  string
	}{
		{"NaN confidence", map[string]interface{}{"confidence": nan, "current_price": 150.0}, "confidence"},
		{"infinite confidence", map[string]interface{}{"confidence": math.Inf(1), "current_price": 150.0}, "confidence"},
		{"NaN price", map[string]interface{}{"confidence": 0.5, "current_price": nan}, "current_price"},
		{"NaN float32 price", map[string]interface{}{"confidence": 0.5, "current_price": float32(nan)}, "current_price"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]interface{}{
				"symbol":    "AAPL",
				"action":    "BUY",
				"timestamp": int64(1767366245),
			}
			for k, v := range tc.fields {
				payload[k] = v
			}
			data, err := msgpack.Marshal(payload)
			require.NoError(t, err)

			_, err = DecodeMsgpack(data)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestEncodeDecode_PreservesKey(t *testing.T) {
	s := validSignal()
	require.NoError(t, s.Validate())

	js, err := EncodeJSON(&s)
	require.NoError(t, err)
	fromJSON, err := DecodeJSON(js)
	require.NoError(t, err)
	assert.Equal(t, s.Key(), fromJSON.Key())

	mp, err := EncodeMsgpack(&s)
	require.NoError(t, err)
	fromMsgpack, err := DecodeMsgpack(mp)
	require.NoError(t, err)
	assert.Equal(t, s.Key(), fromMsgpack.Key())
}
