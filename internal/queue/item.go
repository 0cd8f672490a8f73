package queue

import (
	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Priority selects the queue tier a job waits in.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a query value to a Priority. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	}
	return "", errors.Wrapf(domain.ErrInvalidPriority, "got %q", s)
}

// Item is the minimal data placed on the queue. Workers load the job from
// the database by id so the stored row stays authoritative.
type Item struct {
	JobID    string
	Priority Priority
}
