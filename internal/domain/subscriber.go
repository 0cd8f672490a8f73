package domain

import "time"

// Subscriber is the recipient identity that filters and preferences refer to.
type Subscriber struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	EnvironmentID  string         `json:"environment_id"`
	SubscriberID   string         `json:"subscriber_id"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Avatar         string         `json:"avatar,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	IsOnline       bool           `json:"is_online"`
	LastOnlineAt   *time.Time     `json:"last_online_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Attributes returns the document that subscriber filter paths resolve
// against. Empty string fields are omitted so that they count as undefined.
func (s *Subscriber) Attributes() map[string]any {
	attrs := map[string]any{
		"subscriberId": s.SubscriberID,
		"isOnline":     s.IsOnline,
	}
	set := func(key, val string) {
		if val != "" {
			attrs[key] = val
		}
	}
	set("firstName", s.FirstName)
	set("lastName", s.LastName)
	set("email", s.Email)
	set("phone", s.Phone)
	set("avatar", s.Avatar)
	set("locale", s.Locale)
	if s.Data != nil {
		attrs["data"] = s.Data
	}
	if s.LastOnlineAt != nil {
		attrs["lastOnlineAt"] = s.LastOnlineAt.UTC().Format(time.RFC3339)
	}
	return attrs
}
