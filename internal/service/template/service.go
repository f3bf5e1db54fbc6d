// Package template manages email templates. Creating or updating a template
// re-extracts its variable set so the editor can show which personalization
// fields a recipient list must provide.
package template

import (
	"context"
	"errors"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/render"
	"github.com/coldpost/coldpost/internal/store"
)

// Store is the slice of the persistence layer the template service needs.
type Store interface {
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, userID, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context, userID string) ([]domain.Template, error)
	UpdateTemplate(ctx context.Context, t *domain.Template) error
	DeleteTemplate(ctx context.Context, userID, id string) error
}

// Service implements template commands and queries.
type Service struct {
	store Store
}

// NewService creates a template service.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// Input carries the mutable template fields.
type Input struct {
	Name     string
	Subject  string
	BodyHTML string
	Active   bool
}

func (in Input) validate() error {
	switch {
	case in.Name == "":
		return apperr.New(apperr.Validation, "name is required")
	case in.Subject == "":
		return apperr.New(apperr.Validation, "subject is required")
	case in.BodyHTML == "":
		return apperr.New(apperr.Validation, "body is required")
	}
	return nil
}

// Create persists a template with its extracted variable set.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*domain.Template, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t := &domain.Template{
		UserID:    userID,
		Name:      in.Name,
		Subject:   in.Subject,
		BodyHTML:  in.BodyHTML,
		Variables: render.ExtractVariables(in.Subject, in.BodyHTML),
		Active:    true,
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one template.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Template, error) {
	t, err := s.store.GetTemplate(ctx, userID, id)
	return t, mapStoreErr(err)
}

// List returns the user's templates.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Template, error) {
	return s.store.ListTemplates(ctx, userID)
}

// Update modifies a template and refreshes its variable set.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*domain.Template, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := s.store.GetTemplate(ctx, userID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	t.Name = in.Name
	t.Subject = in.Subject
	t.BodyHTML = in.BodyHTML
	t.Active = in.Active
	t.Variables = render.ExtractVariables(in.Subject, in.BodyHTML)

	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, mapStoreErr(err)
	}
	return t, nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return mapStoreErr(s.store.DeleteTemplate(ctx, userID, id))
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "template not found")
	}
	return err
}
