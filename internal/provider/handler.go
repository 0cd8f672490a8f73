package provider

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Limiter throttles sends per step type.
type Limiter interface {
	Wait(ctx context.Context, t domain.StepType) error
}

// JobFinisher records the terminal status of a handed-over job.
type JobFinisher interface {
	UpdateStatus(ctx context.Context, organizationID, id string, status domain.JobStatus) error
	MarkFailed(ctx context.Context, organizationID, id, errMsg string) error
}

// Handler executes a dispatched step through a Provider. It satisfies
// dispatcher.Handler and is registered for every step type.
type Handler struct {
	prov    Provider
	limiter Limiter
	jobs    JobFinisher
	logger  *zap.Logger

	onSent func(domain.StepType, time.Duration)
}

func NewHandler(prov Provider, limiter Limiter, jobs JobFinisher, logger *zap.Logger, onSent func(domain.StepType, time.Duration)) *Handler {
	if onSent == nil {
		onSent = func(domain.StepType, time.Duration) {}
	}
	return &Handler{prov: prov, limiter: limiter, jobs: jobs, logger: logger, onSent: onSent}
}

// Execute waits for a token, sends, and marks the job completed. A failed
// send marks the job failed; there is no retry.
func (h *Handler) Execute(ctx context.Context, job *domain.Job) error {
	log := h.logger.With(zap.String("job_id", job.ID), zap.String("step_type", string(job.Type)))

	if err := h.limiter.Wait(ctx, job.Type); err != nil {
		return errors.Wrap(err, "wait for rate limiter")
	}

	start := time.Now()
	resp, err := h.prov.Send(ctx, job)
	if err != nil {
		log.Warn("provider send failed", zap.Error(err))
		if markErr := h.jobs.MarkFailed(ctx, job.OrganizationID, job.ID, err.Error()); markErr != nil {
			log.Error("failed to mark job as failed", zap.Error(markErr))
		}
		return errors.Wrap(err, "send step")
	}
	elapsed := time.Since(start)

	if err := h.jobs.UpdateStatus(ctx, job.OrganizationID, job.ID, domain.JobCompleted); err != nil {
		return errors.Wrap(err, "mark job completed")
	}
	h.onSent(job.Type, elapsed)
	log.Info("step handed over", zap.String("provider_msg_id", resp.MessageID), zap.Duration("latency", elapsed))
	return nil
}
