package signals

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	dialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// ChannelSource forwards signals pushed from inside the process, such as
// the HTTP endpoint
type ChannelSource struct {
	name string
	ch   chan Signal
}

// NewChannelSource creates a buffered in-process source
func NewChannelSource(name string, size int) *ChannelSource {
	if size <= 0 {
		size = 64
	}
	return &ChannelSource{name: name, ch: make(chan Signal, size)}
}

// Name returns the source name
func (c *ChannelSource) Name() string {
	return c.name
}

// Push queues a signal without blocking
func (c *ChannelSource) Push(sig Signal) error {
	select {
	case c.ch <- sig:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stream forwards pushed signals into out until ctx is cancelled
func (c *ChannelSource) Stream(ctx context.Context, out chan<- Signal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-c.ch:
			select {
			case out <- sig:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// WebSocketSource consumes signals from a websocket producer. Text frames
// carry JSON, binary frames carry msgpack. The connection is re-established
// with exponential backoff until ctx is cancelled.
type WebSocketSource struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewWebSocketSource creates a websocket signal consumer for url
func NewWebSocketSource(url string, log zerolog.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:        url,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "signal_websocket").Logger(),
		baseDelay:  baseReconnectDelay,
		maxDelay:   maxReconnectDelay,
	}
}

// createHTTP1Client forces HTTP/1.1 so TLS ALPN cannot negotiate HTTP/2,
// which cannot carry the websocket upgrade.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// Name returns the source name
func (ws *WebSocketSource) Name() string {
	return "websocket"
}

// Stream connects, reads and reconnects until ctx is cancelled
func (ws *WebSocketSource) Stream(ctx context.Context, out chan<- Signal) error {
	attempt := 0
	for {
		received, err := ws.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received > 0 {
			attempt = 0
		}
		attempt++

		delay := ws.calculateBackoff(attempt)
		ws.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Signal websocket disconnected, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection and returns how many signals it delivered
func (ws *WebSocketSource) session(ctx context.Context, out chan<- Signal) (int, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, ws.url, &websocket.DialOptions{
		HTTPClient: ws.httpClient,
	})
	dialCancel()
	if err != nil {
		return 0, fmt.Errorf("failed to dial signal websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ws.log.Info().Str("url", ws.url).Msg("Connected to signal websocket")

	received := 0
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ws.log.Info().Int("status", int(closeStatus)).Msg("Signal websocket closed normally")
				return received, nil
			}
			return received, fmt.Errorf("signal websocket read failed: %w", err)
		}

		var sig *Signal
		if msgType == websocket.MessageBinary {
			sig, err = DecodeMsgpack(data)
		} else {
			sig, err = DecodeJSON(data)
		}
		if err != nil {
			ws.log.Warn().Err(err).Int("bytes", len(data)).Msg("Discarding malformed signal")
			continue
		}

		select {
		case out <- *sig:
			received++
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}

func (ws *WebSocketSource) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(ws.baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > ws.maxDelay || delay <= 0 {
		delay = ws.maxDelay
	}
	return delay
}
