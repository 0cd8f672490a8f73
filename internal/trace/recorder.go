// Package trace appends the execution details that explain every dispatch
// decision. Records are immutable once written.
package trace

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Detail strings written by the engine. Dashboards match on them, so they
// must not change.
const (
	DetailStartSending          = "Start sending"
	DetailStartDigesting        = "Start digesting"
	DetailFilterSteps           = "Step was filtered based on steps filters"
	DetailFilteredByPreferences = "Step filtered by subscriber preferences"
)

// Store persists execution details. repository.ExecutionDetailRepository
// satisfies it.
type Store interface {
	Create(ctx context.Context, d *domain.ExecutionDetail) error
}

// Entry is the caller-supplied part of a record. Everything else is
// copied from the job.
type Entry struct {
	Detail  string
	Source  domain.ExecutionDetailSource
	Status  domain.ExecutionDetailStatus
	IsTest  bool
	IsRetry bool
	Raw     any // serialized to JSON when non-nil
}

type Recorder struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Append writes one record for job. Callers decide whether a failure is
// fatal; the engine only logs it.
func (r *Recorder) Append(ctx context.Context, job *domain.Job, e Entry) error {
	d := &domain.ExecutionDetail{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		NotificationID: job.NotificationID,
		TransactionID:  job.TransactionID,
		OrganizationID: job.OrganizationID,
		EnvironmentID:  job.EnvironmentID,
		SubscriberID:   job.SubscriberID,
		TemplateID:     job.TemplateID,
		ProviderID:     job.ProviderID,
		Channel:        job.Type,
		Detail:         e.Detail,
		Source:         e.Source,
		Status:         e.Status,
		IsTest:         e.IsTest,
		IsRetry:        e.IsRetry,
		CreatedAt:      r.now().UTC(),
	}
	if d.Source == "" {
		d.Source = domain.SourceInternal
	}

	if e.Raw != nil {
		b, err := json.Marshal(e.Raw)
		if err != nil {
			return errors.Wrapf(err, "encode raw for %q", e.Detail)
		}
		raw := string(b)
		d.Raw = &raw
	}

	if err := r.store.Create(ctx, d); err != nil {
		return errors.Wrapf(err, "append execution detail %q", e.Detail)
	}

	r.logger.Debug("execution detail appended",
		zap.String("job_id", job.ID),
		zap.String("detail", e.Detail),
		zap.String("status", string(d.Status)),
	)
	return nil
}
