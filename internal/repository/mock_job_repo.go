package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// StatusUpdate records one UpdateStatus call on the mock.
type StatusUpdate struct {
	OrganizationID string
	JobID          string
	Status         domain.JobStatus
}

// MockJobRepository is a hand-written, in-memory implementation of
// JobRepository used in unit tests. No mock-generation library needed.
type MockJobRepository struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	updates []StatusUpdate

	// Optional error overrides, set in tests to simulate failure paths.
	GetByIDErr      error
	UpdateStatusErr error

	// ClaimTTL makes older claims stale. Zero means claims never expire.
	ClaimTTL time.Duration
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{jobs: make(map[string]*domain.Job)}
}

// Add stores a copy of j.
func (m *MockJobRepository) Add(j *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *j
	if clone.Status == "" {
		clone.Status = domain.JobPending
	}
	m.jobs[j.ID] = &clone
}

// StatusUpdates returns every UpdateStatus call received so far.
func (m *MockJobRepository) StatusUpdates() []StatusUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StatusUpdate(nil), m.updates...)
}

func (m *MockJobRepository) GetByID(_ context.Context, id string) (*domain.Job, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.NotFound("job %s", id)
	}
	clone := *j
	return &clone, nil
}

func (m *MockJobRepository) UpdateStatus(_ context.Context, organizationID, id string, status domain.JobStatus) error {
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, StatusUpdate{OrganizationID: organizationID, JobID: id, Status: status})

	j, ok := m.jobs[id]
	if !ok || j.OrganizationID != organizationID {
		return domain.NotFound("job %s", id)
	}
	if !j.Status.CanTransitionTo(status) {
		return errors.Wrapf(domain.ErrInvalidStatus, "job %s: %s -> %s", id, j.Status, status)
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, organizationID, id, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.OrganizationID != organizationID {
		return domain.NotFound("job %s", id)
	}
	if !j.Status.CanTransitionTo(domain.JobFailed) {
		return errors.Wrapf(domain.ErrInvalidStatus, "job %s: %s -> failed", id, j.Status)
	}
	j.Status = domain.JobFailed
	j.Error = &errMsg
	j.ClaimedAt = nil
	return nil
}

func (m *MockJobRepository) Claim(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != domain.JobPending || !m.claimable(j) {
		return errors.Wrapf(domain.ErrJobNotDispatchable, "job %s", id)
	}
	now := time.Now().UTC()
	j.ClaimedAt = &now
	return nil
}

func (m *MockJobRepository) ClaimPending(_ context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobPending && m.claimable(j) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].CreatedAt.Before(candidates[b].CreatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*domain.Job, 0, len(candidates))
	for _, j := range candidates {
		j.ClaimedAt = &now
		clone := *j
		result = append(result, &clone)
	}
	return result, nil
}

// claimable must be called with m.mu held.
func (m *MockJobRepository) claimable(j *domain.Job) bool {
	if j.ClaimedAt == nil {
		return true
	}
	return m.ClaimTTL > 0 && time.Since(*j.ClaimedAt) > m.ClaimTTL
}

func (m *MockJobRepository) ReleaseClaim(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == domain.JobPending {
		j.ClaimedAt = nil
	}
	return nil
}

var _ JobRepository = (*MockJobRepository)(nil)
