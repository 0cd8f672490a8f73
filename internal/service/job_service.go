package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/queue"
	"github.com/notifyhub/step-engine/internal/repository"
)

// CacheInvalidator drops cached entities. The entity cache satisfies it.
type CacheInvalidator interface {
	InvalidateSubscriber(ctx context.Context, environmentID, subscriberID string) error
	InvalidateTemplate(ctx context.Context, environmentID, templateID string) error
}

// JobService coordinates the repositories, the queue and the entity cache
// for the HTTP surface. Workers never call it.
type JobService struct {
	jobs    repository.JobRepository
	details repository.ExecutionDetailRepository
	cache   CacheInvalidator
	q       *queue.PriorityQueue
	logger  *zap.Logger
}

func NewJobService(
	jobs repository.JobRepository,
	details repository.ExecutionDetailRepository,
	cache CacheInvalidator,
	q *queue.PriorityQueue,
	logger *zap.Logger,
) *JobService {
	return &JobService{jobs: jobs, details: details, cache: cache, q: q, logger: logger}
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ExecutionDetails returns the trace of a job in creation order.
func (s *JobService) ExecutionDetails(ctx context.Context, id string) ([]*domain.ExecutionDetail, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	details, err := s.details.ListByJob(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list execution details")
	}
	if details == nil {
		details = []*domain.ExecutionDetail{}
	}
	return details, nil
}

// Enqueue claims a pending job and puts it on the queue. Terminal jobs are
// rejected with ErrJobNotDispatchable. If the queue is full the claim is
// released so the sweeper can pick the job up later.
func (s *JobService) Enqueue(ctx context.Context, id string, priority queue.Priority) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return errors.Wrapf(domain.ErrJobNotDispatchable, "job %s is %s", id, job.Status)
	}

	if err := s.jobs.Claim(ctx, id); err != nil {
		return err
	}

	if err := s.q.Enqueue(queue.Item{JobID: id, Priority: priority}); err != nil {
		if relErr := s.jobs.ReleaseClaim(ctx, id); relErr != nil {
			s.logger.Error("failed to release claim", zap.String("job_id", id), zap.Error(relErr))
		}
		return err
	}

	s.logger.Info("job enqueued", zap.String("job_id", id), zap.String("priority", string(priority)))
	return nil
}

func (s *JobService) InvalidateSubscriber(ctx context.Context, environmentID, subscriberID string) error {
	if err := s.cache.InvalidateSubscriber(ctx, environmentID, subscriberID); err != nil {
		return errors.Wrap(err, "invalidate subscriber")
	}
	return nil
}

func (s *JobService) InvalidateTemplate(ctx context.Context, environmentID, templateID string) error {
	if err := s.cache.InvalidateTemplate(ctx, environmentID, templateID); err != nil {
		return errors.Wrap(err, "invalidate template")
	}
	return nil
}
