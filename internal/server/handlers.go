package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/autotrader/internal/utils"
)

const healthCheckTimeout = 5 * time.Second

// handleHealth reports whether the ledger database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := map[string]interface{}{
		"status":         "healthy",
		"version":        "1.0.0",
		"service":        "autotrader",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	status := http.StatusOK
	if err := s.container.LedgerDB.Conn().PingContext(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, s.log, status, response)
}
