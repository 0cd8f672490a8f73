package preference

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Query identifies whose preference is being aggregated. SubscriberID is
// the public id; Subscriber carries the loaded entity.
type Query struct {
	OrganizationID string
	EnvironmentID  string
	SubscriberID   string
	Template       *domain.Template
	Subscriber     *domain.Subscriber
}

// Aggregator computes the effective preference of a subscriber for a
// template. Errors are lookup failures and are never recovered locally.
type Aggregator interface {
	Aggregate(ctx context.Context, q Query) (*domain.Preference, error)
}

// Store lists the stored preference layers of a subscriber, global level
// first. repository.PreferenceRepository satisfies it.
type Store interface {
	FindForSubscriber(ctx context.Context, environmentID, subscriberID, templateID string) ([]domain.SubscriberPreference, error)
}

// StoreAggregator layers template defaults, the subscriber's global row and
// the subscriber's template row. A later layer wins for every channel it
// sets, and its Enabled flag replaces the previous one.
type StoreAggregator struct {
	store Store
}

func NewStoreAggregator(store Store) *StoreAggregator {
	return &StoreAggregator{store: store}
}

func (a *StoreAggregator) Aggregate(ctx context.Context, q Query) (*domain.Preference, error) {
	if q.Template == nil {
		return nil, errors.New("aggregate preferences: template is required")
	}

	pref := &domain.Preference{
		Enabled:  true,
		Channels: make(domain.PreferenceChannels, len(domain.ChannelSteps)),
	}
	source := make(map[domain.StepType]domain.PreferenceOverrideSource, len(domain.ChannelSteps))
	for _, ch := range domain.ChannelSteps {
		enabled, ok := q.Template.PreferenceSettings[ch]
		if !ok {
			enabled = true
		}
		pref.Channels[ch] = enabled
		source[ch] = domain.OverrideTemplate
	}

	// Stored rows reference the internal subscriber id.
	subscriberID := q.SubscriberID
	if q.Subscriber != nil {
		subscriberID = q.Subscriber.ID
	}
	layers, err := a.store.FindForSubscriber(ctx, q.EnvironmentID, subscriberID, q.Template.ID)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate preferences")
	}

	for _, layer := range orderLayers(layers) {
		pref.Enabled = layer.Enabled
		for ch, enabled := range layer.Channels {
			pref.Channels[ch] = enabled
			source[ch] = domain.OverrideSubscriber
		}
	}

	for _, ch := range domain.ChannelSteps {
		pref.Overrides = append(pref.Overrides, domain.PreferenceOverride{Channel: ch, Source: source[ch]})
	}
	return pref, nil
}

// orderLayers puts global rows before template rows regardless of how the
// store returned them.
func orderLayers(layers []domain.SubscriberPreference) []domain.SubscriberPreference {
	ordered := make([]domain.SubscriberPreference, 0, len(layers))
	for _, l := range layers {
		if l.Level == domain.PreferenceGlobal {
			ordered = append(ordered, l)
		}
	}
	for _, l := range layers {
		if l.Level == domain.PreferenceTemplate {
			ordered = append(ordered, l)
		}
	}
	return ordered
}

var _ Aggregator = (*StoreAggregator)(nil)
