package provider

import (
	"context"

	"github.com/notifyhub/step-engine/internal/domain"
)

// SendRequest is the JSON body posted to the external channel service.
type SendRequest struct {
	JobID          string               `json:"jobId"`
	TransactionID  string               `json:"transactionId"`
	NotificationID string               `json:"notificationId"`
	EnvironmentID  string               `json:"environmentId"`
	SubscriberID   string               `json:"subscriberId"`
	TemplateID     string               `json:"templateId"`
	ProviderID     string               `json:"providerId,omitempty"`
	Type           domain.StepType      `json:"type"`
	Payload        map[string]any       `json:"payload,omitempty"`
	Digest         *domain.DigestConfig `json:"digest,omitempty"`
	Delay          *domain.DelayConfig  `json:"delay,omitempty"`
}

// SendResponse maps the service's 202 Accepted response body.
type SendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Provider abstracts delivery of one step to an external service.
type Provider interface {
	Send(ctx context.Context, job *domain.Job) (*SendResponse, error)
}
