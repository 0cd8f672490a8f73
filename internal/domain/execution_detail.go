package domain

import "time"

// ExecutionDetailSource tells whether a record originated inside the engine
// or from an external provider callback.
type ExecutionDetailSource string

const (
	SourceInternal ExecutionDetailSource = "internal"
	SourceExternal ExecutionDetailSource = "external"
)

// ExecutionDetailStatus is the outcome recorded by a trace entry.
type ExecutionDetailStatus string

const (
	DetailPending ExecutionDetailStatus = "pending"
	DetailSuccess ExecutionDetailStatus = "success"
	DetailFailed  ExecutionDetailStatus = "failed"
)

// ExecutionDetail is an append-only audit record explaining a dispatch
// decision. Rows are never updated or deleted.
type ExecutionDetail struct {
	ID             string                `json:"id"`
	JobID          string                `json:"job_id"`
	NotificationID string                `json:"notification_id"`
	TransactionID  string                `json:"transaction_id"`
	OrganizationID string                `json:"organization_id"`
	EnvironmentID  string                `json:"environment_id"`
	SubscriberID   string                `json:"subscriber_id"`
	TemplateID     string                `json:"template_id"`
	ProviderID     string                `json:"provider_id,omitempty"`
	Channel        StepType              `json:"channel"`
	Detail         string                `json:"detail"`
	Source         ExecutionDetailSource `json:"source"`
	Status         ExecutionDetailStatus `json:"status"`
	IsTest         bool                  `json:"is_test"`
	IsRetry        bool                  `json:"is_retry"`
	Raw            *string               `json:"raw,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}
