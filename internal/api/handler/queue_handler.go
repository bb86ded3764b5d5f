package handler

import (
	"net/http"

	"github.com/hookpace/hookpace/internal/queue"
)

// QueueHandler serves a human-readable JSON snapshot of every destination
// queue. Raw Prometheus metrics (counters, gauges) are available at /metrics
// via promhttp and are separate from this endpoint.
type QueueHandler struct {
	mgr *queue.Manager
}

func NewQueueHandler(mgr *queue.Manager) *QueueHandler {
	return &QueueHandler{mgr: mgr}
}

// GetQueues handles GET /api/v1/queues
//
// @Summary  Per-destination backlog depth and ETA snapshot
// @Tags     queues
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/queues [get]
func (h *QueueHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	depths := h.mgr.Depths()
	total := 0
	for _, d := range depths {
		total += d
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"depths":  depths,
		"total":   total,
		"pending": h.mgr.Snapshots(),
	})
}
