package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/ingest"
	"github.com/coldpost/coldpost/internal/pkg/httputil"
	"github.com/coldpost/coldpost/internal/service/campaign"
)

type recipientPayload struct {
	Email     string            `json:"email"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Variables map[string]string `json:"variables"`
}

type campaignRequest struct {
	Name           string                  `json:"name"`
	TemplateID     string                  `json:"template_id"`
	SmtpAccountIDs []string                `json:"smtp_account_ids"`
	Recipients     []recipientPayload      `json:"recipients"`
	ScheduledAt    *time.Time              `json:"scheduled_at"`
	Settings       domain.CampaignSettings `json:"settings"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	recipients := make([]domain.Recipient, len(req.Recipients))
	for i, p := range req.Recipients {
		recipients[i] = domain.Recipient{
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Variables: p.Variables,
		}
	}

	c, err := s.deps.Campaigns.Create(r.Context(), auth.UserID(r.Context()), campaign.CreateInput{
		Name:           req.Name,
		TemplateID:     req.TemplateID,
		SmtpAccountIDs: req.SmtpAccountIDs,
		Recipients:     recipients,
		ScheduledAt:    req.ScheduledAt,
		Settings:       req.Settings,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.Created(w, c)
}

// handleImportRecipients parses an uploaded CSV into recipients the client
// can attach to a campaign create call.
func (s *Server) handleImportRecipients(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	recipients, summary, err := ingest.ParseCSV(file)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]any{
		"recipients": recipients,
		"summary":    summary,
	})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, offset, page := pagination(r)
	status := domain.CampaignStatus(r.URL.Query().Get("status"))

	campaigns, total, err := s.deps.Campaigns.List(r.Context(), auth.UserID(r.Context()), status, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, httputil.Page{Items: campaigns, Total: total, Page: page, PageSize: limit})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Campaigns.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Campaigns.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) lifecycle(fn func(ctx context.Context, userID, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		httputil.OK(w, map[string]bool{"ok": true})
	}
}

func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.deps.Campaigns.Start)(w, r)
}

func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.deps.Campaigns.Pause)(w, r)
}

func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.deps.Campaigns.Resume)(w, r)
}

func (s *Server) handleStopCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.deps.Campaigns.Stop)(w, r)
}

func (s *Server) handleRestartCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.deps.Campaigns.Restart)(w, r)
}

func (s *Server) handleDuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := s.deps.Campaigns.Duplicate(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.Created(w, c)
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Campaigns.Stats(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, stats)
}

func (s *Server) handleCampaignLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, page := pagination(r)
	status := domain.EmailLogStatus(r.URL.Query().Get("status"))

	logs, total, err := s.deps.Campaigns.Logs(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), status, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, httputil.Page{Items: logs, Total: total, Page: page, PageSize: limit})
}

func (s *Server) handleCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.deps.Campaigns.Recipients(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.OK(w, recipients)
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, s.deps.Pool.Metrics())
}
