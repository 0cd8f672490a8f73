package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/provider"
	"github.com/notifyhub/step-engine/internal/ratelimiter"
	"github.com/notifyhub/step-engine/internal/repository"
)

func pendingJob(repo *repository.MockJobRepository, st domain.StepType) *domain.Job {
	j := &domain.Job{
		ID:                   "job-1",
		TransactionID:        "tx-1",
		OrganizationID:       "org-1",
		EnvironmentID:        "env-1",
		ExternalSubscriberID: "sub-public",
		TemplateID:           "tpl-1",
		Type:                 st,
		Payload:              map[string]any{"name": "Ada"},
		Status:               domain.JobPending,
	}
	repo.Add(j)
	return j
}

func TestHandler_AcceptedMarksCompleted(t *testing.T) {
	var got provider.SendRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"m-1","status":"accepted"}`))
	}))
	defer srv.Close()

	repo := repository.NewMockJobRepository()
	job := pendingJob(repo, domain.StepEmail)

	var sent []domain.StepType
	h := provider.NewHandler(
		provider.NewWebhookProvider(srv.URL+"/", time.Second),
		ratelimiter.New(10), repo, zap.NewNop(),
		func(st domain.StepType, _ time.Duration) { sent = append(sent, st) },
	)

	require.NoError(t, h.Execute(context.Background(), job))

	assert.Equal(t, "/email", path)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "sub-public", got.SubscriberID)
	assert.Equal(t, "Ada", got.Payload["name"])

	stored, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, stored.Status)
	assert.Equal(t, []domain.StepType{domain.StepEmail}, sent)
}

func TestHandler_RejectedMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	repo := repository.NewMockJobRepository()
	job := pendingJob(repo, domain.StepSMS)
	h := provider.NewHandler(provider.NewWebhookProvider(srv.URL, time.Second), ratelimiter.New(10), repo, zap.NewNop(), nil)

	err := h.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	stored, getErr := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "unexpected provider status")
}

func TestHandler_CanceledContextStopsBeforeSend(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	repo := repository.NewMockJobRepository()
	job := pendingJob(repo, domain.StepPush)
	h := provider.NewHandler(provider.NewWebhookProvider(srv.URL, time.Second), ratelimiter.New(0), repo, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, h.Execute(ctx, job))
	assert.Zero(t, calls)
}
