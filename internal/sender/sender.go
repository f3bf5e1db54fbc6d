// Package sender executes email-send jobs to their terminal per-attempt
// outcome: gate checks, render, pooled SMTP delivery, and outcome
// bookkeeping. The EmailLog row is the idempotency key; a redelivered job
// whose log already settled is a no-op.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/crypto"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/queue"
	"github.com/coldpost/coldpost/internal/render"
	"github.com/coldpost/coldpost/internal/smtppool"
	"github.com/coldpost/coldpost/internal/store"
)

// quotaExceededMessage is the recorded failure reason when an account's
// daily limit denies the attempt.
const quotaExceededMessage = "Daily sending limit exceeded"

// autoPauseMinAttempts is the floor before the bounce-rate circuit breaker
// may fire; a tiny sample must not pause a campaign.
const autoPauseMinAttempts = 10

// Sender consumes the email-send queue.
type Sender struct {
	store    *store.Store
	pool     *smtppool.Pool
	queue    *queue.Queue
	renderer *render.Renderer
	cipher   *crypto.Cipher
	cfg      config.SendingConfig
	log      *logger.Logger
	now      func() time.Time
}

// New creates a Sender.
func New(st *store.Store, pool *smtppool.Pool, q *queue.Queue, r *render.Renderer, cipher *crypto.Cipher, cfg config.SendingConfig) *Sender {
	return &Sender{
		store:    st,
		pool:     pool,
		queue:    q,
		renderer: r,
		cipher:   cipher,
		cfg:      cfg,
		log:      logger.Component("sender"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes the email-send queue until the context is cancelled.
func (s *Sender) Run(ctx context.Context, concurrency int) {
	s.queue.Run(ctx, queue.QueueEmailSend, concurrency, s.HandleSend)
}

// HandleSend drives one delivery attempt.
func (s *Sender) HandleSend(ctx context.Context, job *queue.Job) queue.Decision {
	emailLog, err := s.store.GetEmailLog(ctx, job.EmailLogID)
	if errors.Is(err, store.ErrNotFound) {
		// Restart or delete removed the log mid-flight.
		return queue.Drop()
	}
	if err != nil {
		s.log.Error("load email log", "email_log_id", job.EmailLogID, "error", err.Error())
		return queue.Retry()
	}

	if emailLog.Status != domain.EmailLogPending && emailLog.Status != domain.EmailLogQueued {
		return queue.Done()
	}

	c, err := s.store.GetCampaignByID(ctx, emailLog.CampaignID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Drop()
	}
	if err != nil {
		return queue.Retry()
	}
	if c.Status != domain.CampaignRunning {
		// Pause/stop won the race; resume or restart re-queues the work.
		return queue.Done()
	}

	now := s.now()
	if s.cfg.OfficeHoursEnabled && !withinOfficeHours(now, s.cfg.OfficeHoursStart, s.cfg.OfficeHoursEnd) {
		open := nextWindowOpen(now, s.cfg.OfficeHoursStart, s.cfg.OfficeHoursEnd)
		s.log.Debug("outside office hours, deferring",
			"email_log_id", emailLog.ID, "until", open.Format(time.RFC3339))
		return queue.Reschedule(open)
	}

	rcpt, err := s.store.GetRecipient(ctx, emailLog.RecipientID)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Drop()
	}
	if err != nil {
		return queue.Retry()
	}

	tmpl, err := s.store.GetTemplateByID(ctx, c.TemplateID)
	if errors.Is(err, store.ErrNotFound) {
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			ErrorMessage: "template no longer exists",
		}, "")
	}
	if err != nil {
		return queue.Retry()
	}

	account, err := s.store.GetSmtpAccountByID(ctx, emailLog.SmtpAccountID)
	if errors.Is(err, store.ErrNotFound) {
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			ErrorMessage: "smtp account no longer exists",
		}, "")
	}
	if err != nil {
		return queue.Retry()
	}

	granted, err := s.store.TryConsumeDailyQuota(ctx, account.ID, now)
	if err != nil {
		return queue.Retry()
	}
	if !granted {
		s.log.Warn("daily quota exhausted",
			"smtp_account_id", account.ID, "email_log_id", emailLog.ID)
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			ErrorMessage: quotaExceededMessage,
		}, "")
	}

	password, err := s.cipher.Decrypt(account.PasswordEnc)
	if err != nil {
		s.refund(ctx, account.ID, now)
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			ErrorMessage: "smtp credentials unreadable",
		}, "")
	}

	subject, body, err := s.renderer.Render(tmpl, rcpt, s.cfg.UnsubscribeHost)
	if err != nil {
		s.refund(ctx, account.ID, now)
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			ErrorMessage: fmt.Sprintf("template render failed: %v", err),
		}, "")
	}
	if err := s.store.UpdateEmailLogSubject(ctx, emailLog.ID, subject); err != nil {
		s.log.Warn("store subject snapshot", "email_log_id", emailLog.ID, "error", err.Error())
	}

	transport, err := s.pool.Acquire(ctx, account, password)
	if err != nil {
		// Never reached the transport: give the reservation back.
		s.refund(ctx, account.ID, now)
		s.log.Warn("acquire transport", "smtp_account_id", account.ID, "error", err.Error())
		return queue.Retry()
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), account.Host)
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(account.FromEmail, account.FromName))
	m.SetHeader("To", rcpt.Email)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", body)

	sendErr := transport.Send(m)
	if sendErr == nil {
		s.pool.Release(account.ID, transport)
		if err := s.store.TouchSmtpAccountUsed(ctx, account.ID); err != nil {
			s.log.Warn("touch account", "smtp_account_id", account.ID, "error", err.Error())
		}
		s.log.Info("sent",
			"campaign_id", c.ID, "email_log_id", emailLog.ID, "recipient", rcpt.Email)
		return s.finalize(ctx, emailLog, rcpt, store.AttemptOutcome{
			Sent:      true,
			MessageID: messageID,
		}, subject)
	}

	s.pool.Discard(account.ID, transport)
	// Only successful sends count against the day's quota.
	s.refund(ctx, account.ID, now)

	class := Classify(sendErr.Error())
	s.log.Warn("send failed",
		"campaign_id", c.ID, "email_log_id", emailLog.ID,
		"class", class.String(), "attempt", job.Attempt+1, "error", sendErr.Error())

	if class == BounceSoft && job.Attempt+1 < job.MaxAttempts {
		return queue.Retry()
	}

	out := store.AttemptOutcome{
		Bounced:      class == BounceHard,
		ErrorMessage: sendErr.Error(),
		BounceReason: class.String(),
	}
	return s.finalize(ctx, emailLog, rcpt, out, subject)
}

func (s *Sender) refund(ctx context.Context, accountID string, day time.Time) {
	if err := s.store.RefundDailyQuota(ctx, accountID, day); err != nil {
		s.log.Error("refund quota", "smtp_account_id", accountID, "error", err.Error())
	}
}

// finalize records the attempt's terminal outcome and applies the
// bounce-rate circuit breaker.
func (s *Sender) finalize(ctx context.Context, emailLog *domain.EmailLog, rcpt *domain.Recipient, out store.AttemptOutcome, subject string) queue.Decision {
	out.EmailLogID = emailLog.ID
	out.CampaignID = emailLog.CampaignID
	out.RecipientID = rcpt.ID
	if out.Subject == "" {
		out.Subject = subject
	}

	snap, err := s.store.RecordAttemptOutcome(ctx, out)
	if errors.Is(err, store.ErrNotFound) {
		return queue.Drop()
	}
	if err != nil {
		s.log.Error("record outcome", "email_log_id", emailLog.ID, "error", err.Error())
		return queue.Retry()
	}

	attempts := snap.SentCount + snap.FailedCount
	if !snap.Completed && snap.BounceRate > s.cfg.MaxBounceRate && attempts >= autoPauseMinAttempts {
		s.log.Warn("bounce rate exceeded, pausing campaign",
			"campaign_id", emailLog.CampaignID,
			"bounce_rate", snap.BounceRate, "max", s.cfg.MaxBounceRate)

		err := s.store.TransitionCampaign(ctx, emailLog.CampaignID,
			[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
		if err != nil && !errors.Is(err, store.ErrPrecondition) {
			s.log.Error("auto-pause", "campaign_id", emailLog.CampaignID, "error", err.Error())
		}
		if err == nil {
			if _, err := s.queue.CancelCampaign(ctx, queue.QueueEmailSend, emailLog.CampaignID); err != nil {
				s.log.Error("cancel pending sends", "campaign_id", emailLog.CampaignID, "error", err.Error())
			}
		}
	}
	return queue.Done()
}
