package campaign

import (
	"context"

	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/queue"
	"github.com/coldpost/coldpost/internal/scheduler"
	"github.com/coldpost/coldpost/internal/store"
)

// Store is the slice of the persistence layer the lifecycle service needs.
// *store.Store satisfies it.
type Store interface {
	CreateCampaign(ctx context.Context, c *domain.Campaign, recipients []domain.Recipient) error
	GetCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, userID string, status domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int, error)
	TransitionCampaign(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error
	RestartCampaign(ctx context.Context, id string, from []domain.CampaignStatus) error
	DuplicateCampaign(ctx context.Context, userID, id, newName string) (string, error)
	DeleteCampaign(ctx context.Context, userID, id string) error
	GetCampaignStats(ctx context.Context, userID, id string) (*store.CampaignStats, error)
	ListRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error)
	ListEmailLogs(ctx context.Context, userID, campaignID string, status domain.EmailLogStatus, limit, offset int) ([]domain.EmailLog, int, error)
}

// Jobs couples lifecycle transitions to the job queue.
type Jobs interface {
	// EnqueueTick schedules an immediate scheduling pass for the campaign.
	// Duplicate ticks are absorbed, not errors.
	EnqueueTick(ctx context.Context, campaignID string) error

	// CancelPending removes the campaign's not-yet-claimed jobs from both
	// queues and returns how many were removed. In-flight deliveries finish
	// on their own and settle against the campaign's (new) status.
	CancelPending(ctx context.Context, campaignID string) (int, error)
}

// QueueJobs is the production Jobs implementation backed by the Redis queue.
type QueueJobs struct {
	Q *queue.Queue
}

func (j QueueJobs) EnqueueTick(ctx context.Context, campaignID string) error {
	return scheduler.EnqueueTick(ctx, j.Q, campaignID)
}

func (j QueueJobs) CancelPending(ctx context.Context, campaignID string) (int, error) {
	sends, err := j.Q.CancelCampaign(ctx, queue.QueueEmailSend, campaignID)
	if err != nil {
		return sends, err
	}
	ticks, err := j.Q.CancelCampaign(ctx, queue.QueueCampaignTick, campaignID)
	return sends + ticks, err
}
