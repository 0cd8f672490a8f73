package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/dispatcher"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/queue"
)

// JobStore is the part of the job repository workers need.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	MarkFailed(ctx context.Context, organizationID, id, errMsg string) error
	ReleaseClaim(ctx context.Context, id string) error
}

// Dispatcher evaluates one job.
type Dispatcher interface {
	Execute(ctx context.Context, cmd dispatcher.Command) error
}

// Worker is a single goroutine that pulls job ids from the priority queue
// and runs each through the dispatcher under its own timeout.
type Worker struct {
	id      int
	q       *queue.PriorityQueue
	jobs    JobStore
	d       Dispatcher
	timeout time.Duration
	logger  *zap.Logger

	onAbandoned func()
	onReleased  func()
}

// NewWorker constructs a worker. Nil hooks are no-ops.
func NewWorker(
	id int,
	q *queue.PriorityQueue,
	jobs JobStore,
	d Dispatcher,
	timeout time.Duration,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	if hooks.OnAbandoned == nil {
		hooks.OnAbandoned = func() {}
	}
	if hooks.OnReleased == nil {
		hooks.OnReleased = func() {}
	}
	return &Worker{
		id: id, q: q, jobs: jobs, d: d, timeout: timeout, logger: logger,
		onAbandoned: hooks.OnAbandoned, onReleased: hooks.OnReleased,
	}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping", zap.Int("id", w.id))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	log := w.logger.With(zap.String("job_id", item.JobID))

	job, err := w.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		log.Error("failed to fetch job, releasing claim", zap.Error(err))
		w.release(ctx, log, item.JobID)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err = w.d.Execute(dctx, dispatcher.Command{Job: job})
	if err == nil {
		return
	}

	// Missing template or subscriber will not fix itself: abandon the job.
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("abandoning job", zap.Error(err))
		mctx, mcancel := detached(ctx)
		defer mcancel()
		if markErr := w.jobs.MarkFailed(mctx, job.OrganizationID, job.ID, err.Error()); markErr != nil {
			log.Error("failed to mark job as failed", zap.Error(markErr))
		}
		w.onAbandoned()
		return
	}

	log.Error("dispatch failed, releasing claim", zap.Error(err))
	w.release(ctx, log, job.ID)
}

// release hands the job back to the sweeper. It runs on a detached context
// so a shutdown in progress does not leave the claim behind.
func (w *Worker) release(ctx context.Context, log *zap.Logger, id string) {
	rctx, cancel := detached(ctx)
	defer cancel()
	if err := w.jobs.ReleaseClaim(rctx, id); err != nil {
		log.Error("failed to release claim", zap.Error(err))
	}
	w.onReleased()
}

// releaseTimeout bounds bookkeeping writes made after ctx may have ended.
const releaseTimeout = 5 * time.Second

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
}
