package domain

import "time"

// StepType is the channel or action a workflow step performs.
type StepType string

const (
	StepSMS    StepType = "sms"
	StepEmail  StepType = "email"
	StepInApp  StepType = "in_app"
	StepChat   StepType = "chat"
	StepPush   StepType = "push"
	StepDigest StepType = "digest"
	StepDelay  StepType = "delay"
)

// ChannelSteps are the step types that deliver a message to the subscriber.
// Everything else is an action step and is never gated by preferences.
var ChannelSteps = []StepType{StepInApp, StepEmail, StepSMS, StepPush, StepChat}

func (t StepType) IsValid() bool {
	switch t {
	case StepSMS, StepEmail, StepInApp, StepChat, StepPush, StepDigest, StepDelay:
		return true
	}
	return false
}

// IsChannel reports whether t sends through a delivery channel.
func (t StepType) IsChannel() bool {
	for _, ch := range ChannelSteps {
		if ch == t {
			return true
		}
	}
	return false
}

// IsAction reports whether t is an action step (digest, delay, or any
// type outside the channel set).
func (t StepType) IsAction() bool { return !t.IsChannel() }

// JobStatus tracks the lifecycle of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCanceled  JobStatus = "canceled"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobMerged    JobStatus = "merged"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobCanceled, JobCompleted, JobFailed, JobMerged:
		return true
	}
	return false
}

// IsTerminal reports whether no further evaluation may happen for the job.
func (s JobStatus) IsTerminal() bool {
	return s.IsValid() && s != JobPending
}

// CanTransitionTo enforces monotonic status changes: pending may move
// anywhere, a terminal status may only be re-applied to itself (a no-op).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == JobPending {
		return true
	}
	return s == next
}

// Step is the part of a workflow step definition the dispatcher needs.
type Step struct {
	ID      string       `json:"id"`
	Type    StepType     `json:"type"`
	Filters []StepFilter `json:"filters,omitempty"`
}

// DigestConfig describes how a digest step aggregates events.
type DigestConfig struct {
	Type      string           `json:"type,omitempty"`
	Amount    int              `json:"amount,omitempty"`
	Unit      string           `json:"unit,omitempty"`
	DigestKey string           `json:"digestKey,omitempty"`
	Events    []map[string]any `json:"events,omitempty"`
}

// DelayConfig describes how long a delay step holds the workflow.
type DelayConfig struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// Job is one queued execution of a single workflow step for one subscriber.
type Job struct {
	ID                   string         `json:"id"`
	TransactionID        string         `json:"transaction_id"`
	NotificationID       string         `json:"notification_id"`
	OrganizationID       string         `json:"organization_id"`
	EnvironmentID        string         `json:"environment_id"`
	UserID               string         `json:"user_id"`
	SubscriberID         string         `json:"subscriber_id"`
	ExternalSubscriberID string         `json:"external_subscriber_id"`
	TemplateID           string         `json:"template_id"`
	ProviderID           string         `json:"provider_id,omitempty"`
	Type                 StepType       `json:"type"`
	Step                 Step           `json:"step"`
	Payload              map[string]any `json:"payload,omitempty"`
	Digest               *DigestConfig  `json:"digest,omitempty"`
	Delay                *DelayConfig   `json:"delay,omitempty"`
	Status               JobStatus      `json:"status"`
	Error                *string        `json:"error,omitempty"`
	ClaimedAt            *time.Time     `json:"claimed_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
