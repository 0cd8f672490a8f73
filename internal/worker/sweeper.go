package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/queue"
)

// PendingClaimer hands out unclaimed pending jobs, marking them claimed.
type PendingClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error)
	ReleaseClaim(ctx context.Context, id string) error
}

// Sweeper polls the database for pending jobs nobody has claimed and puts
// them on the queue at normal priority. Jobs that do not fit are released
// for the next tick.
type Sweeper struct {
	jobs      PendingClaimer
	q         *queue.PriorityQueue
	interval  time.Duration
	batchSize int
	logger    *zap.Logger

	onDepths func(high, normal, low int)
}

func NewSweeper(
	jobs PendingClaimer,
	q *queue.PriorityQueue,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
	onDepths func(high, normal, low int),
) *Sweeper {
	if onDepths == nil {
		onDepths = func(int, int, int) {}
	}
	return &Sweeper{jobs: jobs, q: q, interval: interval, batchSize: batchSize, logger: logger, onDepths: onDepths}
}

// Run ticks every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("batch_size", s.batchSize))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one poll and returns how many jobs were enqueued.
func (s *Sweeper) Sweep(ctx context.Context) int {
	defer func() { s.onDepths(s.q.Depths()) }()

	jobs, err := s.jobs.ClaimPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("sweep poll error", zap.Error(err))
		return 0
	}

	enqueued := 0
	for _, j := range jobs {
		if err := s.q.Enqueue(queue.Item{JobID: j.ID, Priority: queue.PriorityNormal}); err != nil {
			s.logger.Warn("could not enqueue pending job", zap.String("job_id", j.ID), zap.Error(err))
			if relErr := s.jobs.ReleaseClaim(ctx, j.ID); relErr != nil {
				s.logger.Error("failed to release claim", zap.String("job_id", j.ID), zap.Error(relErr))
			}
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("enqueued pending jobs", zap.Int("count", enqueued))
	}
	return enqueued
}

// ReleaseQueued empties the queue and releases the claim of every job still
// waiting in it. It is called on shutdown after the workers have stopped.
func (s *Sweeper) ReleaseQueued(ctx context.Context) int {
	released := 0
	for _, item := range s.q.Drain() {
		if err := s.jobs.ReleaseClaim(ctx, item.JobID); err != nil {
			s.logger.Error("failed to release claim", zap.String("job_id", item.JobID), zap.Error(err))
			continue
		}
		released++
	}
	if released > 0 {
		s.logger.Info("released queued jobs", zap.Int("count", released))
	}
	s.onDepths(s.q.Depths())
	return released
}
