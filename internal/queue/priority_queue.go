package queue

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Capacity sets the buffer of each tier.
type Capacity struct {
	High, Normal, Low int
}

// DefaultCapacity is used by New. Sweeps fill the normal tier.
var DefaultCapacity = Capacity{High: 1000, Normal: 5000, Low: 2000}

// PriorityQueue holds job ids waiting for evaluation in three buffered
// channels. Workers dequeue with a double select so high items are always
// served first while normal and low compete fairly.
type PriorityQueue struct {
	high   chan Item
	normal chan Item
	low    chan Item
}

func New() *PriorityQueue {
	return NewWithCapacity(DefaultCapacity)
}

func NewWithCapacity(c Capacity) *PriorityQueue {
	return &PriorityQueue{
		high:   make(chan Item, c.High),
		normal: make(chan Item, c.Normal),
		low:    make(chan Item, c.Low),
	}
}

// Enqueue never blocks: a full tier returns ErrQueueFull to the caller.
func (q *PriorityQueue) Enqueue(item Item) error {
	tier, err := q.tier(item.Priority)
	if err != nil {
		return err
	}
	select {
	case tier <- item:
		return nil
	default:
		return errors.Wrapf(domain.ErrQueueFull, "%s tier holds %d jobs", item.Priority, cap(tier))
	}
}

func (q *PriorityQueue) tier(p Priority) (chan Item, error) {
	switch p {
	case PriorityHigh:
		return q.high, nil
	case PriorityNormal:
		return q.normal, nil
	case PriorityLow:
		return q.low, nil
	}
	return nil, errors.Wrapf(domain.ErrInvalidPriority, "got %q", p)
}

// Dequeue blocks until an item is available. It returns (Item{}, false)
// once ctx is cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.high:
		return item, true
	default:
	}

	// High was empty a moment ago; wait on every tier.
	select {
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Drain removes and returns every waiting item without blocking.
func (q *PriorityQueue) Drain() []Item {
	var items []Item
	for _, tier := range []chan Item{q.high, q.normal, q.low} {
	drain:
		for {
			select {
			case item := <-tier:
				items = append(items, item)
			default:
				break drain
			}
		}
	}
	return items
}

// Depths returns the number of items waiting in each tier.
func (q *PriorityQueue) Depths() (high, normal, low int) {
	return len(q.high), len(q.normal), len(q.low)
}
