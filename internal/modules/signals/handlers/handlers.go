// Package handlers provides HTTP handlers for signal intake.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/signals"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
)

const maxSignalBody = 1 << 20

// Intake is the subset of signals.Intake the handlers use
type Intake interface {
	Enqueue(sig signals.Signal) error
	Process(ctx context.Context, sig signals.Signal) (*domain.ProcessedSignal, error)
	QueueDepth() int
}

// ProcessedLister lists processed signals
type ProcessedLister interface {
	List(ctx context.Context, limit int) ([]domain.ProcessedSignal, error)
}

// Handler handles signal HTTP requests
type Handler struct {
	intake    Intake
	processed ProcessedLister
	log       zerolog.Logger
}

// NewHandler creates a new signals handler
func NewHandler(intake Intake, processed ProcessedLister, log zerolog.Logger) *Handler {
	return &Handler{
		intake:    intake,
		processed: processed,
		log:       log.With().Str("handler", "signals").Logger(),
	}
}

// HandleSubmitSignal accepts a JSON or msgpack signal.
// By default the signal is queued and 202 is returned; with ?sync=true it is
// processed inline and the recorded outcome is returned.
// POST /api/signals
func (h *Handler) HandleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBody))
	if err != nil {
		utils.WriteError(w, h.log, http.StatusBadRequest, "Invalid request body")
		return
	}

	var sig *signals.Signal
	if isMsgpack(r.Header.Get("Content-Type")) {
		sig, err = signals.DecodeMsgpack(body)
	} else {
		sig, err = signals.DecodeJSON(body)
	}
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		record, err := h.intake.Process(r.Context(), *sig)
		if err != nil && record == nil {
			utils.WriteErr(w, h.log, err)
			return
		}
		utils.WriteData(w, h.log, http.StatusOK, record)
		return
	}

	if err := h.intake.Enqueue(*sig); err != nil {
		if errors.Is(err, signals.ErrQueueFull) {
			utils.WriteError(w, h.log, http.StatusServiceUnavailable, err.Error())
			return
		}
		utils.WriteErr(w, h.log, err)
		return
	}

	utils.WriteData(w, h.log, http.StatusAccepted, map[string]interface{}{
		"signal_key":  sig.Key(),
		"queued":      true,
		"queue_depth": h.intake.QueueDepth(),
	})
}

// HandleListProcessed returns recently processed signals, newest first
// GET /api/signals/processed
func (h *Handler) HandleListProcessed(w http.ResponseWriter, r *http.Request) {
	limit := utils.QueryInt(r, "limit", 100, 1000)

	records, err := h.processed.List(r.Context(), limit)
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if records == nil {
		records = []domain.ProcessedSignal{}
	}
	utils.WriteData(w, h.log, http.StatusOK, records)
}

func isMsgpack(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "msgpack")
}
