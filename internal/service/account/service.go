// Package account manages SMTP sending accounts: credential encryption,
// connection verification, and the active flag that gates scheduling.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/crypto"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/store"
)

// Store is the slice of the persistence layer the account service needs.
type Store interface {
	CreateSmtpAccount(ctx context.Context, a *domain.SmtpAccount) error
	GetSmtpAccount(ctx context.Context, userID, id string) (*domain.SmtpAccount, error)
	ListSmtpAccounts(ctx context.Context, userID string) ([]domain.SmtpAccount, error)
	UpdateSmtpAccount(ctx context.Context, a *domain.SmtpAccount) error
	SetSmtpAccountActive(ctx context.Context, userID, id string, active bool) error
	DeleteSmtpAccount(ctx context.Context, userID, id string) error
	TouchSmtpAccountUsed(ctx context.Context, id string) error
	GetDailyQuotaUsed(ctx context.Context, smtpAccountID string, day time.Time) (int, error)
}

// Verifier checks that an SMTP account's credentials actually connect.
// *smtppool.Pool satisfies it.
type Verifier interface {
	Verify(account *domain.SmtpAccount, password string) error
}

// Service implements SMTP account commands and queries.
type Service struct {
	store             Store
	verifier          Verifier
	cipher            *crypto.Cipher
	defaultDailyLimit int
	log               *logger.Logger
}

// NewService creates an account service.
func NewService(st Store, v Verifier, cipher *crypto.Cipher, defaultDailyLimit int) *Service {
	return &Service{
		store:             st,
		verifier:          v,
		cipher:            cipher,
		defaultDailyLimit: defaultDailyLimit,
		log:               logger.Component("account"),
	}
}

// Input carries the mutable SMTP account fields. Password is plaintext and
// only encrypted inside this service.
type Input struct {
	Name        string
	Host        string
	Port        int
	Secure      bool
	Username    string
	Password    string
	FromName    string
	FromEmail   string
	DailyLimit  int
	MinDelaySec int
	MaxDelaySec int
}

func (in Input) validate() error {
	switch {
	case in.Name == "":
		return apperr.New(apperr.Validation, "name is required")
	case in.Host == "":
		return apperr.New(apperr.Validation, "host is required")
	case in.Port <= 0 || in.Port > 65535:
		return apperr.New(apperr.Validation, "port must be between 1 and 65535")
	case in.FromEmail == "":
		return apperr.New(apperr.Validation, "from email is required")
	}
	return nil
}

// Create verifies the transport connects, encrypts the password, and
// persists the account. Accounts that never connected are never stored.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*domain.SmtpAccount, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, apperr.New(apperr.Validation, "password is required")
	}

	a := &domain.SmtpAccount{
		UserID:      userID,
		Name:        in.Name,
		Host:        in.Host,
		Port:        in.Port,
		Secure:      in.Secure,
		Username:    in.Username,
		FromName:    in.FromName,
		FromEmail:   in.FromEmail,
		DailyLimit:  in.DailyLimit,
		MinDelaySec: in.MinDelaySec,
		MaxDelaySec: in.MaxDelaySec,
		Active:      true,
	}
	if a.DailyLimit <= 0 {
		a.DailyLimit = s.defaultDailyLimit
	}

	if err := s.verifier.Verify(a, in.Password); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "smtp connection failed", err)
	}

	enc, err := s.cipher.Encrypt(in.Password)
	if err != nil {
		return nil, err
	}
	a.PasswordEnc = enc

	if err := s.store.CreateSmtpAccount(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("smtp account created", "smtp_account_id", a.ID, "host", a.Host)
	return a, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.SmtpAccount, error) {
	a, err := s.store.GetSmtpAccount(ctx, userID, id)
	return a, mapStoreErr(err)
}

// List returns the user's accounts.
func (s *Service) List(ctx context.Context, userID string) ([]domain.SmtpAccount, error) {
	return s.store.ListSmtpAccounts(ctx, userID)
}

// Update modifies an account. An empty Password keeps the stored credential;
// a new one is re-verified and re-encrypted.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*domain.SmtpAccount, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	a, err := s.store.GetSmtpAccount(ctx, userID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	a.Name = in.Name
	a.Host = in.Host
	a.Port = in.Port
	a.Secure = in.Secure
	a.Username = in.Username
	a.FromName = in.FromName
	a.FromEmail = in.FromEmail
	a.DailyLimit = in.DailyLimit
	a.MinDelaySec = in.MinDelaySec
	a.MaxDelaySec = in.MaxDelaySec
	if a.DailyLimit <= 0 {
		a.DailyLimit = s.defaultDailyLimit
	}

	if in.Password != "" {
		if err := s.verifier.Verify(a, in.Password); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "smtp connection failed", err)
		}
		enc, err := s.cipher.Encrypt(in.Password)
		if err != nil {
			return nil, err
		}
		a.PasswordEnc = enc
	}

	if err := s.store.UpdateSmtpAccount(ctx, a); err != nil {
		return nil, mapStoreErr(err)
	}
	return a, nil
}

// Test attempts a live connection with the stored credentials and stamps
// lastUsed on success.
func (s *Service) Test(ctx context.Context, userID, id string) error {
	a, err := s.store.GetSmtpAccount(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err)
	}

	password, err := s.cipher.Decrypt(a.PasswordEnc)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "stored credentials unreadable", err)
	}
	if err := s.verifier.Verify(a, password); err != nil {
		return apperr.Wrap(apperr.Validation, "smtp connection failed", err)
	}
	return s.store.TouchSmtpAccountUsed(ctx, id)
}

// Toggle flips the active flag and returns the new state.
func (s *Service) Toggle(ctx context.Context, userID, id string) (bool, error) {
	a, err := s.store.GetSmtpAccount(ctx, userID, id)
	if err != nil {
		return false, mapStoreErr(err)
	}
	next := !a.Active
	if err := s.store.SetSmtpAccountActive(ctx, userID, id, next); err != nil {
		return false, mapStoreErr(err)
	}
	s.log.Info("smtp account toggled", "smtp_account_id", id, "active", next)
	return next, nil
}

// Usage is today's quota consumption for one account.
type Usage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Quota reports how much of the account's daily limit has been consumed
// today. Days roll over at UTC midnight, matching the sending quota.
func (s *Service) Quota(ctx context.Context, userID, id string) (*Usage, error) {
	a, err := s.store.GetSmtpAccount(ctx, userID, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	used, err := s.store.GetDailyQuotaUsed(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	remaining := a.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return &Usage{Used: used, Limit: a.DailyLimit, Remaining: remaining}, nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return mapStoreErr(s.store.DeleteSmtpAccount(ctx, userID, id))
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.NotFound, "smtp account not found")
	case errors.Is(err, store.ErrAccountInUse):
		return apperr.New(apperr.Precondition, "smtp account is referenced by an active campaign")
	}
	return err
}
