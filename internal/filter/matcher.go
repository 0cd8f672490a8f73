// Package filter evaluates workflow step filters against subscriber,
// payload and webhook data.
package filter

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// SubscriberFetcher loads a subscriber by its public id. The entity cache
// satisfies it.
type SubscriberFetcher interface {
	GetSubscriber(ctx context.Context, environmentID, subscriberID string) (*domain.Subscriber, error)
}

// Variables carries the non-subscriber data conditions can reference.
type Variables struct {
	Payload map[string]any
	Webhook map[string]any
}

// Data is the document a filter evaluation actually saw. It is serialized
// into the execution trace when a step is filtered out.
type Data struct {
	Subscriber *domain.Subscriber `json:"subscriber,omitempty"`
	Payload    map[string]any     `json:"payload,omitempty"`
	Webhook    map[string]any     `json:"webhook,omitempty"`
}

// ConditionResult is the verdict of one condition.
type ConditionResult struct {
	On       domain.FilterSource `json:"on"`
	Field    string              `json:"field,omitempty"`
	Operator domain.Operator     `json:"operator,omitempty"`
	Expected string              `json:"expected"`
	Actual   any                 `json:"actual,omitempty"`
	Passed   bool                `json:"passed"`
}

// GroupResult is the verdict of one filter group.
type GroupResult struct {
	Passed   bool              `json:"passed"`
	Children []ConditionResult `json:"children"`
}

// Result is the outcome of Matcher.Filter.
type Result struct {
	Passed     bool          `json:"passed"`
	Conditions []GroupResult `json:"conditions"`
	Data       Data          `json:"-"`
}

// Matcher evaluates step filter trees. It is stateless apart from its
// collaborators and safe for concurrent use.
type Matcher struct {
	subscribers SubscriberFetcher
	now         func() time.Time
}

func NewMatcher(subscribers SubscriberFetcher) *Matcher {
	return &Matcher{subscribers: subscribers, now: time.Now}
}

// WithClock replaces the time source used by isOnlineInLast conditions.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// RequiresSubscriber reports whether any condition needs the subscriber.
func RequiresSubscriber(filters []domain.StepFilter) bool {
	for _, f := range filters {
		for _, c := range f.Children {
			if c.On.NeedsSubscriber() {
				return true
			}
		}
	}
	return false
}

// Filter evaluates the job's step filters. Groups are ANDed together and
// so are the children inside a group; no groups means the step passes.
//
// The subscriber is read only if a condition references it. A missing
// subscriber makes its conditions fail; any other lookup error is returned.
func (m *Matcher) Filter(ctx context.Context, job *domain.Job, vars Variables) (*Result, error) {
	data := Data{Payload: vars.Payload, Webhook: vars.Webhook}
	filters := job.Step.Filters

	if RequiresSubscriber(filters) {
		sub, err := m.subscribers.GetSubscriber(ctx, job.EnvironmentID, job.ExternalSubscriberID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, errors.Wrap(err, "load subscriber for filters")
		}
		data.Subscriber = sub
	}

	res := &Result{Passed: true, Conditions: make([]GroupResult, 0, len(filters)), Data: data}
	for _, group := range filters {
		gr := GroupResult{Passed: true, Children: make([]ConditionResult, 0, len(group.Children))}
		for _, child := range group.Children {
			cr := m.evaluate(child, data)
			if !cr.Passed {
				gr.Passed = false
			}
			gr.Children = append(gr.Children, cr)
		}
		if !gr.Passed {
			res.Passed = false
		}
		res.Conditions = append(res.Conditions, gr)
	}
	return res, nil
}

func (m *Matcher) evaluate(part domain.FilterPart, data Data) ConditionResult {
	cr := ConditionResult{On: part.On, Field: part.Field, Operator: part.Operator, Expected: part.Value}

	switch part.On {
	case domain.FilterOnSubscriber:
		if data.Subscriber == nil {
			return cr
		}
		cr.Actual, cr.Passed = resolveAndCompare(data.Subscriber.Attributes(), part)
	case domain.FilterOnPayload:
		cr.Actual, cr.Passed = resolveAndCompare(data.Payload, part)
	case domain.FilterOnWebhook:
		cr.Actual, cr.Passed = resolveAndCompare(data.Webhook, part)
	case domain.FilterOnIsOnline:
		if data.Subscriber == nil {
			return cr
		}
		want, err := strconv.ParseBool(part.Value)
		if err != nil {
			return cr
		}
		cr.Actual = data.Subscriber.IsOnline
		cr.Passed = data.Subscriber.IsOnline == want
	case domain.FilterOnIsOnlineInLast:
		if data.Subscriber == nil {
			return cr
		}
		cr.Actual, cr.Passed = m.onlineInLast(data.Subscriber, part)
	}
	return cr
}

func resolveAndCompare(doc map[string]any, part domain.FilterPart) (any, bool) {
	actual, ok := lookupPath(doc, part.Field)
	if !ok {
		return nil, false
	}
	return actual, compare(part.Operator, actual, part.Value)
}

func (m *Matcher) onlineInLast(sub *domain.Subscriber, part domain.FilterPart) (any, bool) {
	if sub.IsOnline {
		return true, true
	}
	if sub.LastOnlineAt == nil {
		return nil, false
	}
	amount, err := strconv.Atoi(part.Value)
	if err != nil || amount < 0 {
		return nil, false
	}

	var unit time.Duration
	switch part.TimeOperation {
	case domain.TimeMinutes:
		unit = time.Minute
	case domain.TimeHours:
		unit = time.Hour
	case domain.TimeDays:
		unit = 24 * time.Hour
	default:
		return nil, false
	}

	since := m.now().Sub(*sub.LastOnlineAt)
	return sub.LastOnlineAt.UTC().Format(time.RFC3339), since <= time.Duration(amount)*unit
}
