// Package scheduler turns RUNNING campaigns into concrete, pre-delayed send
// jobs. It consumes campaign-tick jobs, claims recipient batches, computes
// the pacing walk, and fans out email-send jobs. A periodic calendar sweep
// promotes SCHEDULED campaigns whose start time has arrived.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/queue"
	"github.com/coldpost/coldpost/internal/store"
)

// Scheduler consumes campaign-tick jobs.
type Scheduler struct {
	store *store.Store
	queue *queue.Queue
	cfg   config.SendingConfig
	log   *logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Scheduler.
func New(st *store.Store, q *queue.Queue, cfg config.SendingConfig) *Scheduler {
	return &Scheduler{
		store: st,
		queue: q,
		cfg:   cfg,
		log:   logger.Component("scheduler"),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run consumes the campaign-tick queue until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, concurrency int) {
	s.queue.Run(ctx, queue.QueueCampaignTick, concurrency, s.HandleTick)
}

// TickKey is the dedupe key for a campaign's tick job.
func TickKey(campaignID string) string { return "tick:" + campaignID }

// SendKey is the dedupe key for an email log's send job.
func SendKey(emailLogID string) string { return "send:" + emailLogID }

// EnqueueTick schedules one campaign-tick for the campaign. A duplicate
// pending tick is silently collapsed.
func EnqueueTick(ctx context.Context, q *queue.Queue, campaignID string) error {
	err := q.Enqueue(ctx, queue.QueueCampaignTick, &queue.Job{
		Key:         TickKey(campaignID),
		CampaignID:  campaignID,
		MaxAttempts: 3,
	}, 0)
	if errors.Is(err, queue.ErrDuplicateJob) {
		return nil
	}
	return err
}

// HandleTick advances one campaign: claim every unclaimed recipient, create
// QUEUED email logs, and schedule each send with its precomputed delay.
func (s *Scheduler) HandleTick(ctx context.Context, job *queue.Job) queue.Decision {
	c, err := s.store.GetCampaignByID(ctx, job.CampaignID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Drop()
	}
	if err != nil {
		s.log.Error("load campaign", "campaign_id", job.CampaignID, "error", err.Error())
		return queue.Retry()
	}

	// A tick that arrives after pause/stop/restart is stale.
	if c.Status != domain.CampaignRunning {
		return queue.Done()
	}

	accounts, err := s.store.GetActiveAccountsByIDs(ctx, c.SmtpAccountIDs)
	if err != nil {
		s.log.Error("resolve accounts", "campaign_id", c.ID, "error", err.Error())
		return queue.Retry()
	}
	if len(accounts) == 0 {
		s.log.Warn("no active smtp accounts, failing campaign", "campaign_id", c.ID)
		if err := s.store.TransitionCampaign(ctx, c.ID,
			[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignFailed); err != nil &&
			!errors.Is(err, store.ErrPrecondition) {
			return queue.Retry()
		}
		return queue.Done()
	}

	claimed, err := s.store.ClaimNextBatch(ctx, c.ID, c.TotalRecipients)
	if err != nil {
		s.log.Error("claim batch", "campaign_id", c.ID, "error", err.Error())
		return queue.Retry()
	}
	if len(claimed) == 0 {
		if c.SentCount+c.FailedCount >= c.TotalRecipients {
			if err := s.store.TransitionCampaign(ctx, c.ID,
				[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignCompleted); err != nil &&
				!errors.Is(err, store.ErrPrecondition) {
				return queue.Retry()
			}
		}
		return queue.Done()
	}

	maxAttempts := c.Settings.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxRetriesPerEmail
	}

	plan := s.planSends(claimed, accounts, c.Settings)
	for _, ps := range plan {
		emailLog, err := s.store.CreateQueuedEmailLog(ctx, c.ID, ps.Recipient.ID, ps.Account.ID)
		if err != nil {
			s.log.Error("create email log",
				"campaign_id", c.ID, "recipient_id", ps.Recipient.ID, "error", err.Error())
			// The recipient stays QUEUED without a job; the next tick
			// reclaims it.
			continue
		}

		err = s.queue.Enqueue(ctx, queue.QueueEmailSend, &queue.Job{
			Key:         SendKey(emailLog.ID),
			CampaignID:  c.ID,
			EmailLogID:  emailLog.ID,
			MaxAttempts: maxAttempts,
		}, ps.Delay)
		if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
			s.log.Error("enqueue send", "email_log_id", emailLog.ID, "error", err.Error())
			continue
		}
	}

	s.log.Info("scheduled batch",
		"campaign_id", c.ID, "claimed", len(claimed), "accounts", len(accounts))
	return queue.Done()
}

func (s *Scheduler) randInt(min, max int) int {
	if max <= min {
		return min
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return min + s.rng.Intn(max-min+1)
}
