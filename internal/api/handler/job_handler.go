package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/step-engine/internal/api/middleware"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/queue"
)

// JobService is the subset of service.JobService the job endpoints use.
type JobService interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
	ExecutionDetails(ctx context.Context, id string) ([]*domain.ExecutionDetail, error)
	Enqueue(ctx context.Context, id string, priority queue.Priority) error
}

// JobHandler exposes job inspection and manual dispatch.
type JobHandler struct {
	svc    JobService
	logger *zap.Logger
}

func NewJobHandler(svc JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

// GetByID handles GET /api/v1/jobs/{id}
//
// @Summary  Get a job by ID
// @Tags     jobs
// @Produce  json
// @Param    id   path      string  true  "Job ID"
// @Success  200  {object}  domain.Job
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/jobs/{id} [get]
func (h *JobHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// ExecutionDetails handles GET /api/v1/jobs/{id}/execution-details
//
// @Summary  List the execution trace of a job
// @Tags     jobs
// @Produce  json
// @Param    id   path      string  true  "Job ID"
// @Success  200  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/jobs/{id}/execution-details [get]
func (h *JobHandler) ExecutionDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.ExecutionDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": details})
}

// Dispatch handles POST /api/v1/jobs/{id}/dispatch?priority=high|normal|low
//
// @Summary  Queue a pending job for step dispatch
// @Tags     jobs
// @Produce  json
// @Param    id        path   string  true   "Job ID"
// @Param    priority  query  string  false  "high, normal (default) or low"
// @Success  202  {object}  map[string]string
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Failure  422  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/jobs/{id}/dispatch [post]
func (h *JobHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	priority, err := queue.ParsePriority(r.URL.Query().Get("priority"))
	if err != nil {
		mapError(w, err)
		return
	}

	if err := h.svc.Enqueue(r.Context(), id, priority); err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Warn("dispatch job failed",
			zap.String("job_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":       id,
		"priority": string(priority),
		"status":   "queued",
	})
}
