package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/step-engine/internal/domain"
)

// MockSubscriberRepository is an in-memory SubscriberRepository for tests.
type MockSubscriberRepository struct {
	mu    sync.RWMutex
	byKey map[string]*domain.Subscriber // environment + public id
	byID  map[string]*domain.Subscriber // environment + internal id
	calls int

	FindErr error
}

func NewMockSubscriberRepository() *MockSubscriberRepository {
	return &MockSubscriberRepository{
		byKey: make(map[string]*domain.Subscriber),
		byID:  make(map[string]*domain.Subscriber),
	}
}

func (m *MockSubscriberRepository) Add(s *domain.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.byKey[s.EnvironmentID+"/"+s.SubscriberID] = &clone
	m.byID[s.EnvironmentID+"/"+s.ID] = &clone
}

// Calls returns how many lookups hit the repository.
func (m *MockSubscriberRepository) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MockSubscriberRepository) FindBySubscriberID(_ context.Context, environmentID, subscriberID string) (*domain.Subscriber, error) {
	return m.find(m.byKey, environmentID+"/"+subscriberID, subscriberID)
}

func (m *MockSubscriberRepository) FindByID(_ context.Context, environmentID, id string) (*domain.Subscriber, error) {
	return m.find(m.byID, environmentID+"/"+id, id)
}

func (m *MockSubscriberRepository) find(index map[string]*domain.Subscriber, key, ref string) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	s, ok := index[key]
	if !ok {
		return nil, domain.NotFound("subscriber %s", ref)
	}
	clone := *s
	return &clone, nil
}

// MockTemplateRepository is an in-memory TemplateRepository for tests.
type MockTemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]*domain.Template
	calls     int

	FindErr error
}

func NewMockTemplateRepository() *MockTemplateRepository {
	return &MockTemplateRepository{templates: make(map[string]*domain.Template)}
}

func (m *MockTemplateRepository) Add(t *domain.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *t
	m.templates[t.EnvironmentID+"/"+t.ID] = &clone
}

func (m *MockTemplateRepository) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *MockTemplateRepository) FindByID(_ context.Context, templateID, environmentID string) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	t, ok := m.templates[environmentID+"/"+templateID]
	if !ok {
		return nil, domain.NotFound("notification template %s", templateID)
	}
	clone := *t
	return &clone, nil
}

// MockPreferenceRepository is an in-memory PreferenceRepository for tests.
type MockPreferenceRepository struct {
	mu    sync.RWMutex
	prefs []domain.SubscriberPreference

	FindErr error
}

func NewMockPreferenceRepository() *MockPreferenceRepository {
	return &MockPreferenceRepository{}
}

func (m *MockPreferenceRepository) Add(p domain.SubscriberPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = append(m.prefs, p)
}

func (m *MockPreferenceRepository) FindForSubscriber(_ context.Context, environmentID, subscriberID, templateID string) ([]domain.SubscriberPreference, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var global, template []domain.SubscriberPreference
	for _, p := range m.prefs {
		if p.EnvironmentID != environmentID || p.SubscriberID != subscriberID {
			continue
		}
		switch {
		case p.Level == domain.PreferenceGlobal:
			global = append(global, p)
		case p.Level == domain.PreferenceTemplate && p.TemplateID == templateID:
			template = append(template, p)
		}
	}
	return append(global, template...), nil
}

// MockExecutionDetailRepository is an in-memory ExecutionDetailRepository.
type MockExecutionDetailRepository struct {
	mu      sync.RWMutex
	details []*domain.ExecutionDetail

	CreateErr error
}

func NewMockExecutionDetailRepository() *MockExecutionDetailRepository {
	return &MockExecutionDetailRepository{}
}

func (m *MockExecutionDetailRepository) Create(_ context.Context, d *domain.ExecutionDetail) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.details = append(m.details, &clone)
	return nil
}

func (m *MockExecutionDetailRepository) ListByJob(_ context.Context, jobID string) ([]*domain.ExecutionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ExecutionDetail
	for _, d := range m.details {
		if d.JobID == jobID {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

// All returns every stored record in insertion order.
func (m *MockExecutionDetailRepository) All() []*domain.ExecutionDetail {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.ExecutionDetail(nil), m.details...)
}

var (
	_ SubscriberRepository      = (*MockSubscriberRepository)(nil)
	_ TemplateRepository        = (*MockTemplateRepository)(nil)
	_ PreferenceRepository      = (*MockPreferenceRepository)(nil)
	_ ExecutionDetailRepository = (*MockExecutionDetailRepository)(nil)
)
