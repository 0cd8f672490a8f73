package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/queue"
)

// MetricHooks carries the metric callback functions injected by main.
type MetricHooks struct {
	OnAbandoned func()
	OnReleased  func()
}

// Pool manages the lifecycle of all workers. They share one priority
// queue; its double select handles ordering.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates size identical workers.
func NewPool(
	size int,
	q *queue.PriorityQueue,
	jobs JobStore,
	d Dispatcher,
	timeout time.Duration,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	if size < 1 {
		size = 1
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(i, q, jobs, d, timeout, logger.With(zap.Int("worker_id", i)), hooks)
	}
	return &Pool{workers: workers}
}

// Start launches all workers. Cancelling ctx shuts the pool down.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Size() int { return len(p.workers) }
