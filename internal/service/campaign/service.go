package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/store"
)

// Service implements the campaign lifecycle commands and queries. All
// methods are scoped to the calling user; a campaign owned by someone else
// behaves exactly like a missing one.
type Service struct {
	store Store
	jobs  Jobs
	log   *logger.Logger
}

// NewService creates a campaign service.
func NewService(st Store, jobs Jobs) *Service {
	return &Service{store: st, jobs: jobs, log: logger.Component("campaign")}
}

// CreateInput carries everything needed to create a campaign.
type CreateInput struct {
	Name           string
	TemplateID     string
	SmtpAccountIDs []string
	Recipients     []domain.Recipient
	ScheduledAt    *time.Time
	Settings       domain.CampaignSettings
}

// Create persists a campaign and its recipients atomically. A scheduledAt in
// the input creates the campaign in SCHEDULED, otherwise DRAFT.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Campaign, error) {
	if in.Name == "" {
		return nil, apperr.New(apperr.Validation, "name is required")
	}
	if in.TemplateID == "" {
		return nil, apperr.New(apperr.Validation, "template is required")
	}
	if len(in.SmtpAccountIDs) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one smtp account is required")
	}

	c := &domain.Campaign{
		UserID:         userID,
		Name:           in.Name,
		TemplateID:     in.TemplateID,
		SmtpAccountIDs: in.SmtpAccountIDs,
		Settings:       in.Settings,
		Status:         domain.CampaignDraft,
		ScheduledAt:    in.ScheduledAt,
	}
	if in.ScheduledAt != nil {
		c.Status = domain.CampaignScheduled
	}

	if err := s.store.CreateCampaign(ctx, c, in.Recipients); err != nil {
		if errors.Is(err, store.ErrValidation) {
			return nil, apperr.Wrap(apperr.Validation, "invalid template or smtp accounts", err)
		}
		return nil, err
	}
	s.log.Info("campaign created",
		"campaign_id", c.ID, "status", string(c.Status), "recipients", c.TotalRecipients)
	return c, nil
}

// Get returns one campaign.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, userID, id)
	return c, mapStoreErr(err, "campaign")
}

// List returns a page of the user's campaigns, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int, error) {
	return s.store.ListCampaigns(ctx, userID, status, limit, offset)
}

// Stats returns counters plus a recipient-status breakdown.
func (s *Service) Stats(ctx context.Context, userID, id string) (*store.CampaignStats, error) {
	st, err := s.store.GetCampaignStats(ctx, userID, id)
	return st, mapStoreErr(err, "campaign")
}

// Recipients returns every recipient of the campaign with current delivery
// status.
func (s *Service) Recipients(ctx context.Context, userID, id string) ([]domain.Recipient, error) {
	if _, err := s.store.GetCampaign(ctx, userID, id); err != nil {
		return nil, mapStoreErr(err, "campaign")
	}
	return s.store.ListRecipients(ctx, id)
}

// Logs returns a page of the campaign's attempt logs.
func (s *Service) Logs(ctx context.Context, userID, campaignID string, status domain.EmailLogStatus, limit, offset int) ([]domain.EmailLog, int, error) {
	logs, total, err := s.store.ListEmailLogs(ctx, userID, campaignID, status, limit, offset)
	return logs, total, mapStoreErr(err, "campaign")
}

// Start moves a campaign into RUNNING and kicks off scheduling. Starting a
// campaign that is already RUNNING is a no-op.
func (s *Service) Start(ctx context.Context, userID, id string) error {
	c, err := s.store.GetCampaign(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err, "campaign")
	}
	if c.Status == domain.CampaignRunning {
		return nil
	}
	if c.TotalRecipients == 0 {
		return apperr.New(apperr.Precondition, "campaign has no recipients")
	}

	from := []domain.CampaignStatus{domain.CampaignDraft, domain.CampaignPaused, domain.CampaignScheduled}
	if err := s.transition(ctx, c, from, domain.CampaignRunning); err != nil {
		return err
	}
	return s.jobs.EnqueueTick(ctx, id)
}

// Pause suspends a RUNNING campaign and cancels its pending jobs. Pausing a
// campaign that is already PAUSED is a no-op.
func (s *Service) Pause(ctx context.Context, userID, id string) error {
	c, err := s.store.GetCampaign(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err, "campaign")
	}
	if c.Status == domain.CampaignPaused {
		return nil
	}

	from := []domain.CampaignStatus{domain.CampaignRunning}
	if err := s.transition(ctx, c, from, domain.CampaignPaused); err != nil {
		return err
	}
	s.cancelPending(ctx, id)
	return nil
}

// Resume moves a PAUSED campaign back to RUNNING. The remaining recipients
// are re-claimed by the next tick; already-settled attempts are untouched.
func (s *Service) Resume(ctx context.Context, userID, id string) error {
	c, err := s.store.GetCampaign(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err, "campaign")
	}
	if c.Status == domain.CampaignRunning {
		return nil
	}

	from := []domain.CampaignStatus{domain.CampaignPaused}
	if err := s.transition(ctx, c, from, domain.CampaignRunning); err != nil {
		return err
	}
	return s.jobs.EnqueueTick(ctx, id)
}

// Stop cancels a campaign permanently. CANCELLED is terminal; the campaign
// can only be duplicated afterwards, never restarted.
func (s *Service) Stop(ctx context.Context, userID, id string) error {
	c, err := s.store.GetCampaign(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err, "campaign")
	}

	from := []domain.CampaignStatus{domain.CampaignRunning, domain.CampaignPaused, domain.CampaignScheduled}
	if err := s.transition(ctx, c, from, domain.CampaignCancelled); err != nil {
		return err
	}
	s.cancelPending(ctx, id)
	return nil
}

// Restart wipes all delivery state and re-enters RUNNING from a finished or
// paused campaign.
func (s *Service) Restart(ctx context.Context, userID, id string) error {
	c, err := s.store.GetCampaign(ctx, userID, id)
	if err != nil {
		return mapStoreErr(err, "campaign")
	}

	from := []domain.CampaignStatus{domain.CampaignCompleted, domain.CampaignFailed, domain.CampaignPaused}
	if err := s.store.RestartCampaign(ctx, id, from); err != nil {
		if errors.Is(err, store.ErrPrecondition) {
			return apperr.Newf(apperr.Precondition,
				"cannot restart campaign in status %s", c.Status)
		}
		return err
	}

	// Jobs enqueued before the reset reference deleted attempt logs; they
	// would be dropped on delivery, but cancelling them now also releases
	// their dedupe keys.
	s.cancelPending(ctx, id)
	s.log.Info("campaign restarted", "campaign_id", id)
	return s.jobs.EnqueueTick(ctx, id)
}

// Delete removes a campaign and all its recipients and logs. Running
// campaigns must be paused or stopped first.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.store.DeleteCampaign(ctx, userID, id)
	if errors.Is(err, store.ErrPrecondition) {
		return apperr.New(apperr.Precondition, "running campaigns cannot be deleted")
	}
	if err != nil {
		return mapStoreErr(err, "campaign")
	}
	s.cancelPending(ctx, id)
	return nil
}

// Duplicate deep-copies a campaign into a fresh DRAFT with fresh PENDING
// recipients and returns the copy.
func (s *Service) Duplicate(ctx context.Context, userID, id, newName string) (*domain.Campaign, error) {
	if newName == "" {
		return nil, apperr.New(apperr.Validation, "name is required")
	}
	newID, err := s.store.DuplicateCampaign(ctx, userID, id, newName)
	if err != nil {
		return nil, mapStoreErr(err, "campaign")
	}
	return s.Get(ctx, userID, newID)
}

func (s *Service) transition(ctx context.Context, c *domain.Campaign, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	err := s.store.TransitionCampaign(ctx, c.ID, from, to)
	if errors.Is(err, store.ErrPrecondition) {
		return apperr.Newf(apperr.Precondition,
			"cannot move campaign from %s to %s", c.Status, to)
	}
	if err != nil {
		return err
	}
	s.log.Info("campaign transition", "campaign_id", c.ID, "to", string(to))
	return nil
}

func (s *Service) cancelPending(ctx context.Context, campaignID string) {
	n, err := s.jobs.CancelPending(ctx, campaignID)
	if err != nil {
		s.log.Error("cancel pending jobs", "campaign_id", campaignID, "error", err.Error())
		return
	}
	if n > 0 {
		s.log.Info("cancelled pending jobs", "campaign_id", campaignID, "count", n)
	}
}

// mapStoreErr converts store sentinels into the structured error taxonomy.
func mapStoreErr(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.Newf(apperr.NotFound, "%s not found", resource)
	case errors.Is(err, store.ErrPrecondition):
		return apperr.Wrap(apperr.Precondition, resource, err)
	default:
		return err
	}
}
