package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/pkg/httputil"
	"github.com/coldpost/coldpost/internal/service/account"
)

type accountRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Secure      bool   `json:"secure"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromName    string `json:"from_name"`
	FromEmail   string `json:"from_email"`
	DailyLimit  int    `json:"daily_limit"`
	MinDelaySec int    `json:"min_delay_sec"`
	MaxDelaySec int    `json:"max_delay_sec"`
}

func (req accountRequest) input() account.Input {
	return account.Input{
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
		Secure:      req.Secure,
		Username:    req.Username,
		Password:    req.Password,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		DailyLimit:  req.DailyLimit,
		MinDelaySec: req.MinDelaySec,
		MaxDelaySec: req.MaxDelaySec,
	}
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	a, err := s.deps.Accounts.Create(r.Context(), auth.UserID(r.Context()), req.input())
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.Created(w, a)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Accounts.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Accounts.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	a, err := s.deps.Accounts.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, a)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Accounts.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) handleTestAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Accounts.Test(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"connected": true})
}

func (s *Server) handleAccountQuota(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Accounts.Quota(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, u)
}

func (s *Server) handleToggleAccount(w http.ResponseWriter, r *http.Request) {
	active, err := s.deps.Accounts.Toggle(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"active": active})
}
