package repository

import (
	"context"

	"github.com/notifyhub/step-engine/internal/domain"
)

// JobRepository defines the job persistence operations the engine needs.
// The pgx implementation is in pg_job_repo.go.
// Tests use a hand-written mock (mock_job_repo.go).
//
// Status writes are monotonic: once a job leaves pending only the same
// status may be written again, which is a no-op.
type JobRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, organizationID, id string, status domain.JobStatus) error
	MarkFailed(ctx context.Context, organizationID, id, errMsg string) error

	// Claim marks a pending job as handed to the queue so the sweeper skips it.
	// A job holding a live claim returns ErrJobNotDispatchable.
	Claim(ctx context.Context, id string) error
	// ClaimPending atomically claims up to limit pending jobs that are
	// unclaimed or whose claim has gone stale.
	ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error)
	// ReleaseClaim makes a pending job visible to the sweeper again.
	ReleaseClaim(ctx context.Context, id string) error
}

// SubscriberRepository reads subscribers by public or internal id.
type SubscriberRepository interface {
	FindBySubscriberID(ctx context.Context, environmentID, subscriberID string) (*domain.Subscriber, error)
	FindByID(ctx context.Context, environmentID, id string) (*domain.Subscriber, error)
}

// TemplateRepository reads notification templates.
type TemplateRepository interface {
	FindByID(ctx context.Context, templateID, environmentID string) (*domain.Template, error)
}

// PreferenceRepository reads stored subscriber preference layers.
type PreferenceRepository interface {
	// FindForSubscriber returns the global row and the row for templateID,
	// whichever exist.
	FindForSubscriber(ctx context.Context, environmentID, subscriberID, templateID string) ([]domain.SubscriberPreference, error)
}

// ExecutionDetailRepository appends and lists execution trace records.
type ExecutionDetailRepository interface {
	Create(ctx context.Context, d *domain.ExecutionDetail) error
	ListByJob(ctx context.Context, jobID string) ([]*domain.ExecutionDetail, error)
}
