// Package preference decides whether a subscriber wants a channel step
// delivered, honouring the critical override of a template.
package preference

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/trace"
)

// TemplateSource loads templates. The entity cache satisfies it.
type TemplateSource interface {
	GetTemplate(ctx context.Context, environmentID, templateID string) (*domain.Template, error)
}

// SubscriberSource loads a subscriber by its internal id.
type SubscriberSource interface {
	FindByID(ctx context.Context, environmentID, id string) (*domain.Subscriber, error)
}

// Tracer appends execution details.
type Tracer interface {
	Append(ctx context.Context, job *domain.Job, e trace.Entry) error
}

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnTraceFailure func(detail string)
}

type Resolver struct {
	templates   TemplateSource
	subscribers SubscriberSource
	aggregator  Aggregator
	tracer      Tracer
	logger      *zap.Logger
	hooks       Hooks
}

func NewResolver(
	templates TemplateSource,
	subscribers SubscriberSource,
	aggregator Aggregator,
	tracer Tracer,
	logger *zap.Logger,
	hooks Hooks,
) *Resolver {
	if hooks.OnTraceFailure == nil {
		hooks.OnTraceFailure = func(string) {}
	}
	return &Resolver{
		templates:   templates,
		subscribers: subscribers,
		aggregator:  aggregator,
		tracer:      tracer,
		logger:      logger,
		hooks:       hooks,
	}
}

// ResolveChannelEnabled reports whether job may proceed as far as
// preferences are concerned. Action steps return true before any lookup.
func (r *Resolver) ResolveChannelEnabled(ctx context.Context, job *domain.Job) (bool, error) {
	if job.Type.IsAction() {
		return true, nil
	}

	tpl, err := r.templates.GetTemplate(ctx, job.EnvironmentID, job.TemplateID)
	if err != nil {
		return false, err
	}
	sub, err := r.subscribers.FindByID(ctx, job.EnvironmentID, job.SubscriberID)
	if err != nil {
		return false, err
	}
	return r.Evaluate(ctx, job, tpl, sub)
}

// Evaluate applies the preference rules to already loaded entities.
//
// A "filtered by preference" record is appended whenever the subscriber's
// preference blocks the step, even when the template is critical. The
// critical flag only changes the returned value. The previous engine skipped
// the record for critical templates; it is now always written.
func (r *Resolver) Evaluate(ctx context.Context, job *domain.Job, tpl *domain.Template, sub *domain.Subscriber) (bool, error) {
	if job.Type.IsAction() {
		return true, nil
	}
	if tpl == nil {
		return false, domain.NotFound("notification template %s is not found", job.TemplateID)
	}
	if sub == nil {
		return false, domain.NotFound("subscriber %s is not found", job.SubscriberID)
	}

	pref, err := r.aggregator.Aggregate(ctx, Query{
		OrganizationID: job.OrganizationID,
		EnvironmentID:  job.EnvironmentID,
		SubscriberID:   sub.SubscriberID,
		Template:       tpl,
		Subscriber:     sub,
	})
	if err != nil {
		return false, err
	}
	if pref == nil {
		return false, domain.LookupFailure(errors.New("preference aggregation returned nothing"), "aggregate preferences")
	}

	preferred := StepPreferred(pref, job.Type)
	if !preferred {
		r.recordFiltered(ctx, job, tpl, pref)
	}
	return preferred || tpl.Critical, nil
}

// StepPreferred is Enabled AND an explicit true entry for the channel.
func StepPreferred(pref *domain.Preference, t domain.StepType) bool {
	return pref.Enabled && pref.Channels[t]
}

func (r *Resolver) recordFiltered(ctx context.Context, job *domain.Job, tpl *domain.Template, pref *domain.Preference) {
	err := r.tracer.Append(ctx, job, trace.Entry{
		Detail: trace.DetailFilteredByPreferences,
		Source: domain.SourceInternal,
		Status: domain.DetailSuccess,
		Raw:    pref,
	})
	if err != nil {
		r.hooks.OnTraceFailure(trace.DetailFilteredByPreferences)
		r.logger.Error("failed to record preference filter",
			zap.String("job_id", job.ID),
			zap.Bool("critical", tpl.Critical),
			zap.Error(err),
		)
	}
}
