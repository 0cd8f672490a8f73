package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// WebhookProvider hands steps over by POSTing to <baseURL>/<step type>.
// The base URL comes from config so tests can point it at httptest.
type WebhookProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookProvider(baseURL string, timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send expects 202 Accepted with a JSON body carrying messageId.
func (p *WebhookProvider) Send(ctx context.Context, job *domain.Job) (*SendResponse, error) {
	body, err := json.Marshal(SendRequest{
		JobID:          job.ID,
		TransactionID:  job.TransactionID,
		NotificationID: job.NotificationID,
		EnvironmentID:  job.EnvironmentID,
		SubscriberID:   job.ExternalSubscriberID,
		TemplateID:     job.TemplateID,
		ProviderID:     job.ProviderID,
		Type:           job.Type,
		Payload:        job.Payload,
		Digest:         job.Digest,
		Delay:          job.Delay,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	url := p.baseURL + "/" + string(job.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Transaction-ID", job.TransactionID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, errors.Newf("unexpected provider status: %d", resp.StatusCode)
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &sendResp, nil
}

var _ Provider = (*WebhookProvider)(nil)
