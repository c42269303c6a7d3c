package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/autotrader/internal/events"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
)

const (
	streamBufferSize  = 100
	heartbeatInterval = 30 * time.Second
)

// EventsStreamHandler streams bus events to clients as Server-Sent Events
type EventsStreamHandler struct {
	eventBus  *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		heartbeat: heartbeatInterval,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream.
// ?types=ORDER_CREATED,TRADE_EXECUTED limits the stream to the listed types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	allowedTypes, err := parseTypesFilter(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := make(chan *events.Event, streamBufferSize)
	handler := func(event *events.Event) {
		// Never block the publisher
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	var subscriptions []events.SubscriptionID
	if allowedTypes == nil {
		subscriptions = append(subscriptions, h.eventBus.SubscribeAll(handler))
	} else {
		for _, eventType := range allowedTypes {
			subscriptions = append(subscriptions, h.eventBus.Subscribe(eventType, handler))
		}
	}
	defer func() {
		for _, id := range subscriptions {
			h.eventBus.Unsubscribe(id)
		}
	}()

	h.log.Info().
		Int("types", len(allowedTypes)).
		Msg("Client connected to event stream")

	h.write(w, flusher, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.write(w, flusher, map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339Nano),
				"data":      event.Data,
			})

		case <-heartbeat.C:
			h.write(w, flusher, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
		}
	}
}

func (h *EventsStreamHandler) write(w http.ResponseWriter, flusher http.Flusher, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// parseTypesFilter returns nil for an empty filter (all types)
func parseTypesFilter(raw string) ([]events.EventType, error) {
	parts := utils.ParseCSV(raw)
	if parts == nil {
		return nil, nil
	}

	known := make(map[events.EventType]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	var types []events.EventType
	seen := make(map[events.EventType]bool)
	for _, part := range parts {
		eventType := events.EventType(strings.ToUpper(part))
		if seen[eventType] {
			continue
		}
		if !known[eventType] {
			return nil, fmt.Errorf("unknown event type: %s", eventType)
		}
		seen[eventType] = true
		types = append(types, eventType)
	}
	return types, nil
}
