// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"net/http"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/modules/snapshots"
	"github.com/aristath/autotrader/internal/utils"
	"github.com/rs/zerolog"
)

const (
	defaultSnapshotLimit = 100
	maxSnapshotLimit     = 5000
)

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleGetSnapshots handles GET /api/snapshots?limit=&from=&to=
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	from, err := utils.QueryTime(r, "from")
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	to, err := utils.QueryTime(r, "to")
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	list, err := h.service.List(r.Context(), ledger.SnapshotFilter{
		From:  from,
		To:    to,
		Limit: utils.QueryInt(r, "limit", defaultSnapshotLimit, maxSnapshotLimit),
	})
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	if list == nil {
		list = []domain.PortfolioSnapshot{}
	}
	utils.WriteData(w, h.log, http.StatusOK, list)
}

// HandleGetStats handles GET /api/snapshots/stats?from=&to=
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	from, err := utils.QueryTime(r, "from")
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	to, err := utils.QueryTime(r, "to")
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), from, to)
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, stats)
}
