package signals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestChannelSource_Stream(t *testing.T) {
	source := NewChannelSource("api", 2)
	require.NoError(t, source.Push(validSignal()))
	require.NoError(t, source.Push(validSignal()))
	assert.ErrorIs(t, source.Push(validSignal()), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Signal, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- source.Stream(ctx, out) }()

	for i := 0; i < 2; i++ {
		select {
		case sig := <-out:
			assert.Equal(t, "aapl ", sig.Symbol)
		case <-time.After(5 * time.Second):
			t.Fatal("signal not forwarded")
		}
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWebSocketSource_DecodesFrames(t *testing.T) {
	s := validSignal()
	require.NoError(t, s.Validate())
	jsonFrame, err := EncodeJSON(&s)
	require.NoError(t, err)

	m := validSignal()
	m.Symbol = "MSFT"
	require.NoError(t, m.Validate())
	msgpackFrame, err := EncodeMsgpack(&m)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"symbol":`))
		_ = conn.Write(ctx, websocket.MessageText, jsonFrame)
		_ = conn.Write(ctx, websocket.MessageBinary, msgpackFrame)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	source := NewWebSocketSource("ws://"+strings.TrimPrefix(server.URL, "http://"), zerolog.New(nil).Level(zerolog.Disabled))
	source.baseDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Signal, 8)
	go func() { _ = source.Stream(ctx, out) }()

	var symbols []string
	for len(symbols) < 2 {
		select {
		case sig := <-out:
			symbols = append(symbols, sig.Symbol)
		case <-time.After(5 * time.Second):
			t.Fatal("websocket signals not delivered")
		}
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestWebSocketSource_CalculateBackoff(t *testing.T) {
	source := NewWebSocketSource("ws://localhost", zerolog.New(nil).Level(zerolog.Disabled))

	assert.Equal(t, 5*time.Second, source.calculateBackoff(1))
	assert.Equal(t, 10*time.Second, source.calculateBackoff(2))
	assert.Equal(t, 40*time.Second, source.calculateBackoff(4))
	assert.Equal(t, 5*time.Minute, source.calculateBackoff(20))
}
