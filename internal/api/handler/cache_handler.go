package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/step-engine/internal/api/middleware"
)

// CacheInvalidator drops cached entities after they change upstream.
type CacheInvalidator interface {
	InvalidateSubscriber(ctx context.Context, environmentID, subscriberID string) error
	InvalidateTemplate(ctx context.Context, environmentID, templateID string) error
}

type CacheHandler struct {
	svc    CacheInvalidator
	logger *zap.Logger
}

func NewCacheHandler(svc CacheInvalidator, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{svc: svc, logger: logger}
}

// InvalidateSubscriber handles
// DELETE /api/v1/environments/{environmentId}/subscribers/{subscriberId}/cache
//
// @Summary  Drop a cached subscriber
// @Tags     cache
// @Success  204
// @Router   /api/v1/environments/{environmentId}/subscribers/{subscriberId}/cache [delete]
func (h *CacheHandler) InvalidateSubscriber(w http.ResponseWriter, r *http.Request) {
	env, sub := chi.URLParam(r, "environmentId"), chi.URLParam(r, "subscriberId")
	if err := h.svc.InvalidateSubscriber(r.Context(), env, sub); err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Error("invalidate subscriber failed",
			zap.String("environment_id", env),
			zap.String("subscriber_id", sub),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateTemplate handles
// DELETE /api/v1/environments/{environmentId}/templates/{templateId}/cache
//
// @Summary  Drop a cached notification template
// @Tags     cache
// @Success  204
// @Router   /api/v1/environments/{environmentId}/templates/{templateId}/cache [delete]
func (h *CacheHandler) InvalidateTemplate(w http.ResponseWriter, r *http.Request) {
	env, tpl := chi.URLParam(r, "environmentId"), chi.URLParam(r, "templateId")
	if err := h.svc.InvalidateTemplate(r.Context(), env, tpl); err != nil {
		apimw.LoggerFrom(r.Context(), h.logger).Error("invalidate template failed",
			zap.String("environment_id", env),
			zap.String("template_id", tpl),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
