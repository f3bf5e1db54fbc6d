package template_test

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/service/template"
	"github.com/coldpost/coldpost/internal/store"
)

// =============================================================================
// TEMPLATE SERVICE TESTS
// =============================================================================

type memStore struct {
	mu        sync.Mutex
	templates map[string]*domain.Template
}

func newMemStore() *memStore {
	return &memStore{templates: make(map[string]*domain.Template)}
}

func (m *memStore) CreateTemplate(_ context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = "tmpl-1"
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memStore) GetTemplate(_ context.Context, userID, id string) (*domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTemplates(_ context.Context, userID string) ([]domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Template
	for _, t := range m.templates {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateTemplate(_ context.Context, t *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTemplate(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func TestCreate_ExtractsVariables(t *testing.T) {
	svc := template.NewService(newMemStore())

	tmpl, err := svc.Create(context.Background(), "user-1", template.Input{
		Name:     "Intro",
		Subject:  "Hi {{firstName}}",
		BodyHTML: "<p>We help {{company}} with {{ product | default: \"stuff\" }}.</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	want := []string{"company", "firstName", "product"}
	if !reflect.DeepEqual(tmpl.Variables, want) {
		t.Errorf("variables = %v, want %v", tmpl.Variables, want)
	}
	if !tmpl.Active {
		t.Error("new templates should start active")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := template.NewService(newMemStore())

	_, err := svc.Create(context.Background(), "user-1", template.Input{Name: "x"})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("Create() without subject/body = %v, want VALIDATION", err)
	}
}

func TestUpdate_RefreshesVariables(t *testing.T) {
	svc := template.NewService(newMemStore())

	tmpl, err := svc.Create(context.Background(), "user-1", template.Input{
		Name: "Intro", Subject: "Hi {{firstName}}", BodyHTML: "<p>Hello</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := svc.Update(context.Background(), "user-1", tmpl.ID, template.Input{
		Name: "Intro", Subject: "Hi there", BodyHTML: "<p>Greetings from {{city}}</p>", Active: true,
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if !reflect.DeepEqual(updated.Variables, []string{"city"}) {
		t.Errorf("variables = %v, want [city]", updated.Variables)
	}
}

func TestGet_ForeignTemplateIsNotFound(t *testing.T) {
	svc := template.NewService(newMemStore())

	tmpl, err := svc.Create(context.Background(), "user-1", template.Input{
		Name: "Intro", Subject: "s", BodyHTML: "b",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := svc.Get(context.Background(), "user-2", tmpl.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Get() foreign template = %v, want NOT_FOUND", err)
	}
}

func TestDelete(t *testing.T) {
	svc := template.NewService(newMemStore())

	tmpl, err := svc.Create(context.Background(), "user-1", template.Input{
		Name: "Intro", Subject: "s", BodyHTML: "b",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := svc.Delete(context.Background(), "user-1", tmpl.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-1", tmpl.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Get() after delete = %v, want NOT_FOUND", err)
	}
}
