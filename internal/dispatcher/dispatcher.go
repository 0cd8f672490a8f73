// Package dispatcher decides whether a workflow step runs and routes it to
// the handler of its step type.
package dispatcher

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/analytics"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/filter"
	"github.com/notifyhub/step-engine/internal/trace"
)

// EventProcessStep is the analytics event emitted once per evaluation.
const EventProcessStep = "Process Workflow Step - [Triggers]"

// Payload keys with a meaning to the dispatcher.
const (
	PayloadOnboardingTrigger = "$on_boarding_trigger"
	PayloadSource            = "__source"
)

// Outcome labels the end of one evaluation.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeUnroutable Outcome = "unroutable"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeError      Outcome = "error"
)

type FilterMatcher interface {
	Filter(ctx context.Context, job *domain.Job, vars filter.Variables) (*filter.Result, error)
}

type PreferenceResolver interface {
	ResolveChannelEnabled(ctx context.Context, job *domain.Job) (bool, error)
}

type Tracer interface {
	Append(ctx context.Context, job *domain.Job, e trace.Entry) error
}

// StatusUpdater persists job status changes. The backing store enforces
// monotonic transitions.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, organizationID, jobID string, status domain.JobStatus) error
}

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnDecision     func(stepType domain.StepType, outcome Outcome, latency time.Duration)
	OnTraceFailure func(detail string)
}

// Command is one request to evaluate a job. Webhook holds the response of
// a previous webhook step, if any.
type Command struct {
	Job     *domain.Job
	Webhook map[string]any
}

type Dispatcher struct {
	matcher   FilterMatcher
	resolver  PreferenceResolver
	tracer    Tracer
	jobs      StatusUpdater
	registry  *Registry
	analytics analytics.Sink
	logger    *zap.Logger
	hooks     Hooks
}

func New(
	matcher FilterMatcher,
	resolver PreferenceResolver,
	tracer Tracer,
	jobs StatusUpdater,
	registry *Registry,
	sink analytics.Sink,
	logger *zap.Logger,
	hooks Hooks,
) *Dispatcher {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	if hooks.OnDecision == nil {
		hooks.OnDecision = func(domain.StepType, Outcome, time.Duration) {}
	}
	if hooks.OnTraceFailure == nil {
		hooks.OnTraceFailure = func(string) {}
	}
	return &Dispatcher{
		matcher:   matcher,
		resolver:  resolver,
		tracer:    tracer,
		jobs:      jobs,
		registry:  registry,
		analytics: sink,
		logger:    logger,
		hooks:     hooks,
	}
}

// Execute evaluates one job.
//
// Filters and preferences are both evaluated before any decision, since
// each may write its own trace record. A negative verdict cancels the job.
// A positive one writes a start record (except for delay steps) and
// invokes exactly one handler. Errors from the evaluators or the handler
// are returned; trace and analytics failures are logged only.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) error {
	job := cmd.Job
	if job == nil {
		return errors.New("dispatch: job is required")
	}

	start := time.Now()
	outcome := OutcomeError
	defer func() {
		d.hooks.OnDecision(job.Type, outcome, time.Since(start))
	}()

	log := d.logger.With(
		zap.String("job_id", job.ID),
		zap.String("step_type", string(job.Type)),
	)

	if job.Status.IsTerminal() {
		log.Debug("job already terminal, nothing to do", zap.String("status", string(job.Status)))
		outcome = OutcomeSkipped
		return nil
	}

	result, err := d.matcher.Filter(ctx, job, filter.Variables{Payload: job.Payload, Webhook: cmd.Webhook})
	if err != nil {
		return errors.Wrap(err, "evaluate step filters")
	}
	if !result.Passed {
		d.appendTrace(ctx, log, job, trace.Entry{
			Detail: trace.DetailFilterSteps,
			Source: domain.SourceInternal,
			Status: domain.DetailSuccess,
			Raw: map[string]any{
				"payload": result.Data,
				"filters": job.Step.Filters,
			},
		})
	}

	preferred, err := d.resolver.ResolveChannelEnabled(ctx, job)
	if err != nil {
		return errors.Wrap(err, "resolve channel preferences")
	}

	if !truthy(job.Payload[PayloadOnboardingTrigger]) {
		d.track(ctx, log, job, result, preferred)
	}

	if !result.Passed || !preferred {
		if err := d.jobs.UpdateStatus(ctx, job.OrganizationID, job.ID, domain.JobCanceled); err != nil {
			return errors.Wrap(err, "cancel job")
		}
		log.Info("step canceled",
			zap.Bool("filter_passed", result.Passed),
			zap.Bool("preferred", preferred),
		)
		outcome = OutcomeCanceled
		return nil
	}

	handler, ok := d.registry.Lookup(job.Type)
	if !ok {
		log.Warn("no handler registered for step type, skipping")
		outcome = OutcomeUnroutable
		return nil
	}

	if job.Type != domain.StepDelay {
		detail := trace.DetailStartSending
		if job.Type == domain.StepDigest {
			detail = trace.DetailStartDigesting
		}
		d.appendTrace(ctx, log, job, trace.Entry{
			Detail: detail,
			Source: domain.SourceInternal,
			Status: domain.DetailPending,
		})
	}

	if err := handler.Execute(ctx, job); err != nil {
		return errors.Wrapf(err, "execute %s step", job.Type)
	}
	outcome = OutcomeDispatched
	return nil
}

func (d *Dispatcher) appendTrace(ctx context.Context, log *zap.Logger, job *domain.Job, e trace.Entry) {
	if err := d.tracer.Append(ctx, job, e); err != nil {
		d.hooks.OnTraceFailure(e.Detail)
		log.Error("failed to append execution detail", zap.String("detail", e.Detail), zap.Error(err))
	}
}

func (d *Dispatcher) track(ctx context.Context, log *zap.Logger, job *domain.Job, result *filter.Result, preferred bool) {
	usage := filter.SumFilters(result.Conditions)

	source, _ := job.Payload[PayloadSource].(string)
	if source == "" {
		source = "api"
	}

	props := map[string]any{
		"_template":         job.TemplateID,
		"_organization":     job.OrganizationID,
		"_environment":      job.EnvironmentID,
		"_subscriber":       job.SubscriberID,
		"provider":          job.ProviderID,
		"jobType":           job.Type,
		"filterPassed":      result.Passed,
		"preferencesPassed": preferred,
		"stepFilters":       usage.StepFilters,
		"failedFilters":     usage.FailedFilters,
		"passedFilters":     usage.PassedFilters,
		"source":            source,
	}
	if job.Delay != nil {
		props["delay"] = job.Delay
	}
	if job.Digest != nil {
		props["digestType"] = job.Digest.Type
		props["digestEventsCount"] = len(job.Digest.Events)
		props["digestUnit"] = job.Digest.Unit
		props["digestAmount"] = job.Digest.Amount
	}

	if err := d.analytics.Track(ctx, EventProcessStep, job.UserID, props); err != nil {
		log.Warn("analytics track failed", zap.Error(err))
	}
}

// truthy follows loose payload semantics: false, zero, "" and nil are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return true
}
