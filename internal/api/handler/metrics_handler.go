package handler

import (
	"net/http"
	"sort"

	"github.com/notifyhub/step-engine/internal/queue"
)

// MetricsHandler serves a JSON snapshot of the queue and the routing table.
// Prometheus series are scraped separately at /metrics.
type MetricsHandler struct {
	q         *queue.PriorityQueue
	stepTypes []string
	workers   int
}

func NewMetricsHandler(q *queue.PriorityQueue, stepTypes []string, workers int) *MetricsHandler {
	sorted := append([]string(nil), stepTypes...)
	sort.Strings(sorted)
	return &MetricsHandler{q: q, stepTypes: sorted, workers: workers}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Real-time queue depth snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	high, normal, low := h.q.Depths()
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": map[string]int{
			"high":   high,
			"normal": normal,
			"low":    low,
			"total":  high + normal + low,
		},
		"workers":    h.workers,
		"step_types": h.stepTypes,
	})
}
