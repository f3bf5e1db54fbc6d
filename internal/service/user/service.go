// Package user implements registration and login.
package user

import (
	"context"
	"errors"
	"strings"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/store"
)

const minPasswordLength = 8

// Store is the slice of the persistence layer the user service needs.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Service implements user commands.
type Service struct {
	store  Store
	tokens *auth.Tokens
	log    *logger.Logger
}

// NewService creates a user service.
func NewService(st Store, tokens *auth.Tokens) *Service {
	return &Service{store: st, tokens: tokens, log: logger.Component("user")}
}

// Session is the result of a successful register or login.
type Session struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a user and returns a fresh session.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.Validation, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Newf(apperr.Validation,
			"password must be at least %d characters", minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.Validation, "email already registered")
		}
		return nil, err
	}

	s.log.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

// Login verifies credentials and returns a fresh session. Wrong email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.Auth, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if !u.Active || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apperr.New(apperr.Auth, "invalid credentials")
	}
	return s.session(u)
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return u, err
}

func (s *Service) session(u *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}
