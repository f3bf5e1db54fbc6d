package scheduler

import (
	"time"

	"github.com/coldpost/coldpost/internal/domain"
)

// plannedSend is one recipient's scheduled attempt: the account that will
// carry it and the cumulative delay from now.
type plannedSend struct {
	Recipient domain.Recipient
	Account   domain.SmtpAccount
	Delay     time.Duration
}

// planSends walks the claimed recipients in order and assigns each a
// cumulative delay and an SMTP account. Per-message delays are drawn
// uniformly from the assigned account's [min,max] window; after each batch a
// longer break is inserted. Account assignment is round-robin keyed by the
// claim sequence, so a re-run of the same tick lands each recipient on the
// same account.
func (s *Scheduler) planSends(claimed []domain.Recipient, accounts []domain.SmtpAccount, settings domain.CampaignSettings) []plannedSend {
	plan := make([]plannedSend, 0, len(claimed))

	cum := time.Duration(0)
	inBatch := 0
	batchSize := s.drawBatchSize(settings)
	batchBreak := s.batchBreak(settings)

	for i, r := range claimed {
		acct := accountForSeq(r.Seq, accounts)

		if inBatch == batchSize && i != len(claimed)-1 {
			cum += batchBreak
			inBatch = 0
			batchSize = s.drawBatchSize(settings)
		} else {
			cum += time.Duration(s.drawDelay(&acct, settings)) * time.Second
			inBatch++
		}

		plan = append(plan, plannedSend{Recipient: r, Account: acct, Delay: cum})
	}
	return plan
}

// accountForSeq maps a claim sequence number onto the active account set.
func accountForSeq(seq int64, accounts []domain.SmtpAccount) domain.SmtpAccount {
	if seq < 1 {
		seq = 1
	}
	return accounts[int((seq-1)%int64(len(accounts)))]
}

// drawDelay returns the inter-message delay in seconds. A campaign with an
// explicit delayBetweenEmails setting sends on a fixed cadence; otherwise
// the delay is uniform over the account's window, falling back to the
// global bounds when the account has none.
func (s *Scheduler) drawDelay(acct *domain.SmtpAccount, settings domain.CampaignSettings) int {
	if settings.DelayBetweenEmails > 0 {
		return settings.DelayBetweenEmails
	}
	min, max := acct.MinDelaySec, acct.MaxDelaySec
	if min <= 0 {
		min = s.cfg.MinDelayBetweenEmails
	}
	if max <= 0 {
		max = s.cfg.MaxDelayBetweenEmails
	}
	if max < min {
		max = min
	}
	return s.randInt(min, max)
}

// drawBatchSize returns the size of the next batch.
func (s *Scheduler) drawBatchSize(settings domain.CampaignSettings) int {
	if settings.BatchSize > 0 {
		return settings.BatchSize
	}
	size := s.randInt(s.cfg.BatchSizeMin, s.cfg.BatchSizeMax)
	if size < 1 {
		size = 1
	}
	return size
}

func (s *Scheduler) batchBreak(settings domain.CampaignSettings) time.Duration {
	if settings.BatchDelay > 0 {
		return time.Duration(settings.BatchDelay) * time.Second
	}
	return time.Duration(s.cfg.BatchBreakDuration) * time.Second
}
