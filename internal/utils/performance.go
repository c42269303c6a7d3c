package utils

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	slowThreshold     = 10 * time.Second
	verySlowThreshold = 30 * time.Second
)

// Timer measures one operation and logs its duration when stopped
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for operation name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{start: time.Now(), name: name, log: log}
}

// Stop logs the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	return t.StopWithContext(nil)
}

// StopWithContext logs the elapsed time with extra fields and returns it.
// Operations over 10s are logged at info, over 30s at warn.
func (t *Timer) StopWithContext(fields map[string]interface{}) time.Duration {
	duration := time.Since(t.start)

	var event *zerolog.Event
	switch {
	case duration > verySlowThreshold:
		event = t.log.Warn()
	case duration > slowThreshold:
		event = t.log.Info()
	default:
		event = t.log.Debug()
	}

	event.
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Fields(fields).
		Msg("Operation timed")

	return duration
}

// OperationTimer is the defer-friendly form of NewTimer(...).Stop
//
//	defer utils.OperationTimer("pending_orders", log)()
func OperationTimer(operation string, log zerolog.Logger) func() {
	timer := NewTimer(operation, log)
	return func() {
		timer.Stop()
	}
}
