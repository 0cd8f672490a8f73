package dispatcher_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/cache"
	"github.com/notifyhub/step-engine/internal/dispatcher"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/filter"
	"github.com/notifyhub/step-engine/internal/preference"
	"github.com/notifyhub/step-engine/internal/repository"
	"github.com/notifyhub/step-engine/internal/trace"
)

type trackedEvent struct {
	event  string
	userID string
	props  map[string]any
}

type recordingSink struct {
	mu     sync.Mutex
	events []trackedEvent
	err    error
}

func (s *recordingSink) Track(_ context.Context, event, userID string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, trackedEvent{event: event, userID: userID, props: props})
	return s.err
}

type recordingHandler struct {
	calls []string
	err   error
}

func (h *recordingHandler) Execute(_ context.Context, job *domain.Job) error {
	h.calls = append(h.calls, job.ID)
	return h.err
}

type decision struct {
	stepType domain.StepType
	outcome  dispatcher.Outcome
}

type harness struct {
	jobs        *repository.MockJobRepository
	subscribers *repository.MockSubscriberRepository
	templates   *repository.MockTemplateRepository
	prefs       *repository.MockPreferenceRepository
	details     *repository.MockExecutionDetailRepository
	sink        *recordingSink
	handlers    map[domain.StepType]*recordingHandler
	decisions   []decision
	dispatcher  *dispatcher.Dispatcher
}

func newHarness(t *testing.T, critical bool) *harness {
	t.Helper()
	h := &harness{
		jobs:        repository.NewMockJobRepository(),
		subscribers: repository.NewMockSubscriberRepository(),
		templates:   repository.NewMockTemplateRepository(),
		prefs:       repository.NewMockPreferenceRepository(),
		details:     repository.NewMockExecutionDetailRepository(),
		sink:        &recordingSink{},
		handlers:    make(map[domain.StepType]*recordingHandler),
	}
	h.subscribers.Add(&domain.Subscriber{
		ID: "sub-internal", EnvironmentID: "env-1", SubscriberID: "sub-public", Locale: "fr",
	})
	h.templates.Add(&domain.Template{ID: "tpl-1", EnvironmentID: "env-1", Critical: critical})

	logger := zap.NewNop()
	entities := cache.NewEntityCache(cache.NewMemoryStore(time.Minute), h.subscribers, h.templates, logger, cache.Hooks{})
	recorder := trace.NewRecorder(h.details, logger)
	resolver := preference.NewResolver(
		entities, h.subscribers, preference.NewStoreAggregator(h.prefs), recorder, logger, preference.Hooks{},
	)

	registry := dispatcher.NewRegistry()
	for _, st := range []domain.StepType{
		domain.StepSMS, domain.StepEmail, domain.StepInApp, domain.StepChat,
		domain.StepPush, domain.StepDigest, domain.StepDelay,
	} {
		rh := &recordingHandler{}
		h.handlers[st] = rh
		registry.Register(st, rh)
	}

	h.dispatcher = dispatcher.New(
		filter.NewMatcher(entities), resolver, recorder, h.jobs, registry, h.sink, logger,
		dispatcher.Hooks{OnDecision: func(st domain.StepType, o dispatcher.Outcome, _ time.Duration) {
			h.decisions = append(h.decisions, decision{st, o})
		}},
	)
	return h
}

func (h *harness) addJob(st domain.StepType, filters ...domain.StepFilter) *domain.Job {
	j := &domain.Job{
		ID:                   "job-1",
		TransactionID:        "tx-1",
		NotificationID:       "n-1",
		OrganizationID:       "org-1",
		EnvironmentID:        "env-1",
		UserID:               "user-1",
		SubscriberID:         "sub-internal",
		ExternalSubscriberID: "sub-public",
		TemplateID:           "tpl-1",
		Type:                 st,
		Step:                 domain.Step{ID: "step-1", Type: st, Filters: filters},
		Payload:              map[string]any{},
		Status:               domain.JobPending,
	}
	h.jobs.Add(j)
	return j
}

func (h *harness) disableChannel(ch domain.StepType) {
	h.prefs.Add(domain.SubscriberPreference{
		EnvironmentID: "env-1", SubscriberID: "sub-internal", TemplateID: "tpl-1",
		Level: domain.PreferenceTemplate, Enabled: true,
		Channels: domain.PreferenceChannels{ch: false},
	})
}

func (h *harness) detailKinds() []string {
	var kinds []string
	for _, d := range h.details.All() {
		kinds = append(kinds, d.Detail)
	}
	return kinds
}

func (h *harness) status(t *testing.T) domain.JobStatus {
	t.Helper()
	j, err := h.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	return j.Status
}

func localeIs(v string) domain.StepFilter {
	return domain.StepFilter{Type: "GROUP", Children: []domain.FilterPart{
		{On: domain.FilterOnSubscriber, Field: "locale", Operator: domain.OpEqual, Value: v},
	}}
}

func TestDispatcher_ScenarioA_Dispatches(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Equal(t, []string{"job-1"}, h.handlers[domain.StepSMS].calls)
	assert.Empty(t, h.jobs.StatusUpdates(), "no cancel on success")
	assert.Equal(t, []string{trace.DetailStartSending}, h.detailKinds())
	assert.Equal(t, domain.DetailPending, h.details.All()[0].Status)
	assert.Equal(t, []decision{{domain.StepSMS, dispatcher.OutcomeDispatched}}, h.decisions)
}

func TestDispatcher_ScenarioB_FilterCancels(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS, localeIs("en"))
	job.Payload = map[string]any{"order": "o-1"}

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Empty(t, h.handlers[domain.StepSMS].calls)
	assert.Equal(t, domain.JobCanceled, h.status(t))
	require.Len(t, h.jobs.StatusUpdates(), 1)
	assert.Equal(t, repository.StatusUpdate{OrganizationID: "org-1", JobID: "job-1", Status: domain.JobCanceled},
		h.jobs.StatusUpdates()[0])

	all := h.details.All()
	require.Len(t, all, 1)
	assert.Equal(t, trace.DetailFilterSteps, all[0].Detail)
	assert.Equal(t, domain.DetailSuccess, all[0].Status)
	require.NotNil(t, all[0].Raw)

	var raw struct {
		Payload struct {
			Subscriber *domain.Subscriber `json:"subscriber"`
			Payload    map[string]any     `json:"payload"`
		} `json:"payload"`
		Filters []domain.StepFilter `json:"filters"`
	}
	require.NoError(t, json.Unmarshal([]byte(*all[0].Raw), &raw))
	require.NotNil(t, raw.Payload.Subscriber)
	assert.Equal(t, "fr", raw.Payload.Subscriber.Locale)
	assert.Equal(t, "o-1", raw.Payload.Payload["order"])
	require.Len(t, raw.Filters, 1)
	assert.Equal(t, "locale", raw.Filters[0].Children[0].Field)

	assert.Equal(t, []decision{{domain.StepSMS, dispatcher.OutcomeCanceled}}, h.decisions)
}

func TestDispatcher_ScenarioC_PreferenceCancels(t *testing.T) {
	h := newHarness(t, false)
	h.disableChannel(domain.StepEmail)
	job := h.addJob(domain.StepEmail)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Empty(t, h.handlers[domain.StepEmail].calls)
	assert.Equal(t, domain.JobCanceled, h.status(t))
	assert.Len(t, h.jobs.StatusUpdates(), 1)
	assert.Equal(t, []string{trace.DetailFilteredByPreferences}, h.detailKinds())
}

func TestDispatcher_ScenarioD_CriticalProceeds(t *testing.T) {
	h := newHarness(t, true)
	h.disableChannel(domain.StepEmail)
	job := h.addJob(domain.StepEmail)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Equal(t, []string{"job-1"}, h.handlers[domain.StepEmail].calls)
	assert.Empty(t, h.jobs.StatusUpdates())
	assert.Equal(t, []string{trace.DetailFilteredByPreferences, trace.DetailStartSending}, h.detailKinds())
}

func TestDispatcher_ScenarioE_OnboardingSuppressesAnalytics(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS)
	job.Payload = map[string]any{dispatcher.PayloadOnboardingTrigger: true}

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Empty(t, h.sink.events)
	assert.Equal(t, []string{"job-1"}, h.handlers[domain.StepSMS].calls)
}

func TestDispatcher_AnalyticsEventProperties(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepDigest, localeIs("fr"))
	job.ProviderID = "internal"
	job.Payload = map[string]any{dispatcher.PayloadSource: "workflow-editor"}
	job.Digest = &domain.DigestConfig{Type: "regular", Amount: 5, Unit: "minutes", Events: []map[string]any{{}, {}}}

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	require.Len(t, h.sink.events, 1)
	ev := h.sink.events[0]
	assert.Equal(t, dispatcher.EventProcessStep, ev.event)
	assert.Equal(t, "user-1", ev.userID)
	assert.Equal(t, "tpl-1", ev.props["_template"])
	assert.Equal(t, "org-1", ev.props["_organization"])
	assert.Equal(t, "env-1", ev.props["_environment"])
	assert.Equal(t, "sub-internal", ev.props["_subscriber"])
	assert.Equal(t, "internal", ev.props["provider"])
	assert.Equal(t, domain.StepDigest, ev.props["jobType"])
	assert.Equal(t, "regular", ev.props["digestType"])
	assert.Equal(t, 2, ev.props["digestEventsCount"])
	assert.Equal(t, "minutes", ev.props["digestUnit"])
	assert.Equal(t, 5, ev.props["digestAmount"])
	assert.Equal(t, true, ev.props["filterPassed"])
	assert.Equal(t, true, ev.props["preferencesPassed"])
	assert.Equal(t, 1, ev.props["stepFilters"])
	assert.Equal(t, 1, ev.props["passedFilters"])
	assert.Equal(t, 0, ev.props["failedFilters"])
	assert.Equal(t, "workflow-editor", ev.props["source"])
}

func TestDispatcher_AnalyticsSourceDefaultsToAPI(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))
	require.Len(t, h.sink.events, 1)
	assert.Equal(t, "api", h.sink.events[0].props["source"])
}

func TestDispatcher_AnalyticsFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, false)
	h.sink.err = errors.New("broker unavailable")
	job := h.addJob(domain.StepSMS)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))
	assert.Len(t, h.handlers[domain.StepSMS].calls, 1)
}

func TestDispatcher_BothEvaluationsRunWhenFilterFails(t *testing.T) {
	h := newHarness(t, false)
	h.disableChannel(domain.StepEmail)
	job := h.addJob(domain.StepEmail, localeIs("en"))

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Equal(t, []string{trace.DetailFilterSteps, trace.DetailFilteredByPreferences}, h.detailKinds())
	assert.Len(t, h.jobs.StatusUpdates(), 1, "cancel is issued exactly once")
	require.Len(t, h.sink.events, 1)
	assert.Equal(t, false, h.sink.events[0].props["filterPassed"])
	assert.Equal(t, false, h.sink.events[0].props["preferencesPassed"])
}

func TestDispatcher_DigestWritesStartDigesting(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepDigest)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Equal(t, []string{trace.DetailStartDigesting}, h.detailKinds())
	assert.Len(t, h.handlers[domain.StepDigest].calls, 1)
}

func TestDispatcher_DelayWritesNoStartRecord(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepDelay)
	job.Delay = &domain.DelayConfig{Amount: 10, Unit: "seconds"}

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Empty(t, h.details.All())
	assert.Len(t, h.handlers[domain.StepDelay].calls, 1)
	require.Len(t, h.sink.events, 1)
	assert.Equal(t, job.Delay, h.sink.events[0].props["delay"])
}

func TestDispatcher_EveryChannelRoutesToItsOwnHandler(t *testing.T) {
	for _, st := range domain.ChannelSteps {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness(t, false)
			job := h.addJob(st)

			require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))
			for other, rh := range h.handlers {
				if other == st {
					assert.Len(t, rh.calls, 1)
				} else {
					assert.Empty(t, rh.calls, other)
				}
			}
		})
	}
}

func TestDispatcher_IdempotentReCancel(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS, localeIs("en"))

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))
	require.Len(t, h.details.All(), 1)

	again, err := h.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobCanceled, again.Status)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: again}))

	assert.Len(t, h.details.All(), 1, "no trace beyond the original cancellation")
	assert.Len(t, h.jobs.StatusUpdates(), 1)
	assert.Len(t, h.sink.events, 1)
	assert.Equal(t, dispatcher.OutcomeSkipped, h.decisions[1].outcome)
}

func TestDispatcher_UnroutableStepTypeIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepType("webhook"))

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))

	assert.Empty(t, h.details.All(), "nothing started, so no start record")
	assert.Empty(t, h.jobs.StatusUpdates())
	assert.Equal(t, []decision{{domain.StepType("webhook"), dispatcher.OutcomeUnroutable}}, h.decisions)
}

func TestDispatcher_MissingTemplateIsFatal(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS)
	job.TemplateID = "missing"

	err := h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.jobs.StatusUpdates(), "no forced cancel")
	assert.Empty(t, h.handlers[domain.StepSMS].calls)
	assert.Empty(t, h.sink.events)
	assert.Equal(t, dispatcher.OutcomeError, h.decisions[0].outcome)
}

func TestDispatcher_SubscriberLookupFailureIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.subscribers.FindErr = domain.LookupFailure(errors.New("connection refused"), "find subscriber")
	job := h.addJob(domain.StepSMS, localeIs("fr"))

	err := h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job})
	require.ErrorIs(t, err, domain.ErrLookupFailure)
	assert.Empty(t, h.jobs.StatusUpdates())
	assert.Empty(t, h.details.All())
}

func TestDispatcher_HandlerErrorPropagates(t *testing.T) {
	h := newHarness(t, false)
	h.handlers[domain.StepSMS].err = errors.New("provider rejected")
	job := h.addJob(domain.StepSMS)

	err := h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider rejected")
	assert.Equal(t, []string{trace.DetailStartSending}, h.detailKinds())
}

func TestDispatcher_TraceFailureDoesNotBlockDispatch(t *testing.T) {
	h := newHarness(t, false)
	h.details.CreateErr = errors.New("insert failed")
	job := h.addJob(domain.StepSMS)

	require.NoError(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{Job: job}))
	assert.Len(t, h.handlers[domain.StepSMS].calls, 1)
}

func TestDispatcher_WebhookVariablesReachFilters(t *testing.T) {
	h := newHarness(t, false)
	job := h.addJob(domain.StepSMS, domain.StepFilter{Type: "GROUP", Children: []domain.FilterPart{
		{On: domain.FilterOnWebhook, Field: "status", Operator: domain.OpEqual, Value: "ok"},
	}})

	cmd := dispatcher.Command{Job: job, Webhook: map[string]any{"status": "ok"}}
	require.NoError(t, h.dispatcher.Execute(context.Background(), cmd))
	assert.Len(t, h.handlers[domain.StepSMS].calls, 1)
}

func TestDispatcher_NilJob(t *testing.T) {
	h := newHarness(t, false)
	require.Error(t, h.dispatcher.Execute(context.Background(), dispatcher.Command{}))
}
