package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/pkg/httputil"
	"github.com/coldpost/coldpost/internal/service/template"
)

type templateRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Active   bool   `json:"active"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	t, err := s.deps.Templates.Create(r.Context(), auth.UserID(r.Context()), template.Input{
		Name: req.Name, Subject: req.Subject, BodyHTML: req.BodyHTML,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.Created(w, t)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Templates.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Templates.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	t, err := s.deps.Templates.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), template.Input{
		Name: req.Name, Subject: req.Subject, BodyHTML: req.BodyHTML, Active: req.Active,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Templates.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	httputil.NoContent(w)
}
