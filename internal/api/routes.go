package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coldpost/coldpost/internal/pkg/httputil"
)

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(s.deps.Tokens.Middleware)

			r.Get("/auth/me", s.handleMe)

			r.Route("/smtp-accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleCreateAccount)
				r.Get("/{id}", s.handleGetAccount)
				r.Put("/{id}", s.handleUpdateAccount)
				r.Delete("/{id}", s.handleDeleteAccount)
				r.Post("/{id}/test", s.handleTestAccount)
				r.Post("/{id}/toggle", s.handleToggleAccount)
				r.Get("/{id}/quota", s.handleAccountQuota)
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)
				r.Get("/{id}", s.handleGetTemplate)
				r.Put("/{id}", s.handleUpdateTemplate)
				r.Delete("/{id}", s.handleDeleteTemplate)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", s.handleListCampaigns)
				r.Post("/", s.handleCreateCampaign)
				r.Post("/import", s.handleImportRecipients)
				r.Get("/{id}", s.handleGetCampaign)
				r.Delete("/{id}", s.handleDeleteCampaign)
				r.Post("/{id}/start", s.handleStartCampaign)
				r.Post("/{id}/pause", s.handlePauseCampaign)
				r.Post("/{id}/resume", s.handleResumeCampaign)
				r.Post("/{id}/stop", s.handleStopCampaign)
				r.Post("/{id}/restart", s.handleRestartCampaign)
				r.Post("/{id}/duplicate", s.handleDuplicateCampaign)
				r.Get("/{id}/stats", s.handleCampaignStats)
				r.Get("/{id}/logs", s.handleCampaignLogs)
				r.Get("/{id}/recipients", s.handleCampaignRecipients)
			})

			r.Get("/pool/metrics", s.handlePoolMetrics)
		})
	})

	return r
}
