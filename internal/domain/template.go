package domain

import "time"

// Template is a notification workflow definition.
// Critical templates cannot be silenced by preferences, only by step filters.
type Template struct {
	ID                 string             `json:"id"`
	OrganizationID     string             `json:"organization_id"`
	EnvironmentID      string             `json:"environment_id"`
	Name               string             `json:"name"`
	Critical           bool               `json:"critical"`
	PreferenceSettings PreferenceChannels `json:"preference_settings,omitempty"`
	Steps              []Step             `json:"steps,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// PreferenceLevel tells whether a stored subscriber preference applies to
// every template or to a single one.
type PreferenceLevel string

const (
	PreferenceGlobal   PreferenceLevel = "global"
	PreferenceTemplate PreferenceLevel = "template"
)

// PreferenceOverrideSource names the layer that decided a channel value.
type PreferenceOverrideSource string

const (
	OverrideTemplate   PreferenceOverrideSource = "template"
	OverrideSubscriber PreferenceOverrideSource = "subscriber"
)

// PreferenceChannels maps a channel step type to its enabled flag.
type PreferenceChannels map[StepType]bool

// PreferenceOverride records which layer decided a channel value.
type PreferenceOverride struct {
	Channel StepType                 `json:"channel"`
	Source  PreferenceOverrideSource `json:"source"`
}

// Preference is the effective preference of one subscriber for one template.
// It is derived per evaluation and never persisted by the dispatcher.
type Preference struct {
	Enabled   bool                 `json:"enabled"`
	Channels  PreferenceChannels   `json:"channels"`
	Overrides []PreferenceOverride `json:"overrides,omitempty"`
}

// SubscriberPreference is a stored preference layer for a subscriber.
// TemplateID is empty for the global level.
type SubscriberPreference struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	EnvironmentID  string             `json:"environment_id"`
	SubscriberID   string             `json:"subscriber_id"`
	TemplateID     string             `json:"template_id,omitempty"`
	Level          PreferenceLevel    `json:"level"`
	Enabled        bool               `json:"enabled"`
	Channels       PreferenceChannels `json:"channels,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
