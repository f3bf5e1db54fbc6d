package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/distlock"
	"github.com/coldpost/coldpost/internal/store"
)

// StartSweep runs the calendar sweep on the given cron spec. The sweep
// promotes due SCHEDULED campaigns; the distributed lock keeps multiple
// engine replicas from double-promoting.
func (s *Scheduler) StartSweep(ctx context.Context, spec string, lock distlock.DistLock) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.RunSweep(ctx, lock); err != nil {
			s.log.Error("calendar sweep", "error", err.Error())
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	s.log.Info("calendar sweep started", "spec", spec)
	return c, nil
}

// RunSweep performs one sweep pass: every SCHEDULED campaign whose start
// time has elapsed is validated and flipped to RUNNING with an immediate
// tick. Campaigns that can no longer run (no active account, no recipients)
// are failed instead of being retried forever.
func (s *Scheduler) RunSweep(ctx context.Context, lock distlock.DistLock) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.Warn("release sweep lock", "error", err.Error())
		}
	}()

	due, err := s.store.ListDueScheduledCampaigns(ctx)
	if err != nil {
		return err
	}

	for i := range due {
		c := &due[i]
		if err := s.promoteScheduled(ctx, c); err != nil {
			s.log.Error("promote scheduled campaign", "campaign_id", c.ID, "error", err.Error())
		}
	}
	return nil
}

func (s *Scheduler) promoteScheduled(ctx context.Context, c *domain.Campaign) error {
	accounts, err := s.store.GetActiveAccountsByIDs(ctx, c.SmtpAccountIDs)
	if err != nil {
		return err
	}
	if len(accounts) == 0 || c.TotalRecipients == 0 {
		s.log.Warn("scheduled campaign no longer runnable",
			"campaign_id", c.ID, "accounts", len(accounts), "recipients", c.TotalRecipients)
		err := s.store.TransitionCampaign(ctx, c.ID,
			[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignFailed)
		if errors.Is(err, store.ErrPrecondition) {
			return nil
		}
		return err
	}

	err = s.store.TransitionCampaign(ctx, c.ID,
		[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignRunning)
	if errors.Is(err, store.ErrPrecondition) {
		// Someone else moved it first.
		return nil
	}
	if err != nil {
		return err
	}

	s.log.Info("promoted scheduled campaign", "campaign_id", c.ID)
	return EnqueueTick(ctx, s.queue, c.ID)
}
