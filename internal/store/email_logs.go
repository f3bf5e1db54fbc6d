package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/coldpost/coldpost/internal/domain"
)

const emailLogColumns = `id, campaign_id, recipient_id, smtp_account_id, status, subject,
	sent_at, failed_at, error_message, message_id, bounce_reason, created_at, updated_at`

func scanEmailLog(row interface{ Scan(...interface{}) error }) (*domain.EmailLog, error) {
	l := &domain.EmailLog{}
	err := row.Scan(&l.ID, &l.CampaignID, &l.RecipientID, &l.SmtpAccountID, &l.Status, &l.Subject,
		&l.SentAt, &l.FailedAt, &l.ErrorMessage, &l.MessageID, &l.BounceReason,
		&l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan email log: %w", err)
	}
	return l, nil
}

// CreateQueuedEmailLog creates the current-attempt row for a recipient in
// status QUEUED and stamps the recipient with its assigned SMTP account. The
// subject snapshot stays empty until render time.
func (s *Store) CreateQueuedEmailLog(ctx context.Context, campaignID, recipientID, smtpAccountID string) (*domain.EmailLog, error) {
	l := &domain.EmailLog{
		ID:            uuid.New().String(),
		CampaignID:    campaignID,
		RecipientID:   recipientID,
		SmtpAccountID: smtpAccountID,
		Status:        domain.EmailLogQueued,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coldpost_email_logs
				(id, campaign_id, recipient_id, smtp_account_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'queued', NOW(), NOW())
		`, l.ID, campaignID, recipientID, smtpAccountID); err != nil {
			return fmt.Errorf("insert email log: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE coldpost_campaign_recipients
			SET smtp_account_id = $1, updated_at = NOW()
			WHERE id = $2
		`, smtpAccountID, recipientID); err != nil {
			return fmt.Errorf("assign account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetEmailLog fetches an attempt row by id.
func (s *Store) GetEmailLog(ctx context.Context, id string) (*domain.EmailLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailLogColumns+` FROM coldpost_email_logs WHERE id = $1`, id)
	return scanEmailLog(row)
}

// UpdateEmailLogSubject stores the rendered subject snapshot before the send.
func (s *Store) UpdateEmailLogSubject(ctx context.Context, id, subject string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE coldpost_email_logs SET subject = $1, updated_at = NOW() WHERE id = $2`, subject, id)
	return err
}

// ListEmailLogs returns a page of a campaign's attempt logs, newest first,
// optionally filtered by status. Owner scoping happens through the campaign.
func (s *Store) ListEmailLogs(ctx context.Context, userID, campaignID string, status domain.EmailLogStatus, limit, offset int) ([]domain.EmailLog, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var owned bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM coldpost_campaigns WHERE id = $1 AND user_id = $2)`,
		campaignID, userID).Scan(&owned)
	if err != nil {
		return nil, 0, fmt.Errorf("check campaign owner: %w", err)
	}
	if !owned {
		return nil, 0, ErrNotFound
	}

	countQ := `SELECT COUNT(*) FROM coldpost_email_logs WHERE campaign_id = $1`
	countArgs := []interface{}{campaignID}
	if status != "" {
		countQ += ` AND status = $2`
		countArgs = append(countArgs, status)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count email logs: %w", err)
	}

	q := `SELECT ` + emailLogColumns + ` FROM coldpost_email_logs WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2
	if status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailLog
	for rows.Next() {
		l, err := scanEmailLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// AttemptOutcome describes the terminal result of one send attempt.
type AttemptOutcome struct {
	EmailLogID   string
	CampaignID   string
	RecipientID  string
	Sent         bool
	Bounced      bool
	MessageID    string
	Subject      string
	ErrorMessage string
	BounceReason string
}

// OutcomeSnapshot is the campaign's counter state immediately after an
// outcome is recorded.
type OutcomeSnapshot struct {
	TotalRecipients int
	SentCount       int
	FailedCount     int
	BounceCount     int
	BounceRate      float64
	Completed       bool
}

// RecordAttemptOutcome commits the result of a send attempt in one
// transaction: the EmailLog flips to its terminal status, the recipient
// follows, campaign counters and bounce rate advance, and the campaign
// transitions RUNNING → COMPLETED when every recipient is accounted for.
// The campaign row is locked first so concurrent send workers serialize
// their counter updates.
func (s *Store) RecordAttemptOutcome(ctx context.Context, out AttemptOutcome) (*OutcomeSnapshot, error) {
	snap := &OutcomeSnapshot{}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status domain.CampaignStatus
		err := tx.QueryRowContext(ctx, `
			SELECT status, total_recipients, sent_count, failed_count, bounce_count
			FROM coldpost_campaigns WHERE id = $1 FOR UPDATE
		`, out.CampaignID).Scan(&status, &snap.TotalRecipients, &snap.SentCount, &snap.FailedCount, &snap.BounceCount)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock campaign: %w", err)
		}

		now := time.Now().UTC()
		if out.Sent {
			_, err = tx.ExecContext(ctx, `
				UPDATE coldpost_email_logs
				SET status = 'sent', sent_at = $1, message_id = $2, subject = $3, updated_at = NOW()
				WHERE id = $4
			`, now, out.MessageID, out.Subject, out.EmailLogID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE coldpost_email_logs
				SET status = 'failed', failed_at = $1, error_message = $2, bounce_reason = $3,
				    subject = $4, updated_at = NOW()
				WHERE id = $5
			`, now, out.ErrorMessage, out.BounceReason, out.Subject, out.EmailLogID)
		}
		if err != nil {
			return fmt.Errorf("finalize email log: %w", err)
		}

		switch {
		case out.Sent:
			_, err = tx.ExecContext(ctx, `
				UPDATE coldpost_campaign_recipients
				SET status = 'sent', sent_at = $1, updated_at = NOW() WHERE id = $2
			`, now, out.RecipientID)
		case out.Bounced:
			_, err = tx.ExecContext(ctx, `
				UPDATE coldpost_campaign_recipients
				SET status = 'bounced', failed_reason = $1, updated_at = NOW() WHERE id = $2
			`, out.ErrorMessage, out.RecipientID)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE coldpost_campaign_recipients
				SET status = 'failed', failed_reason = $1, updated_at = NOW() WHERE id = $2
			`, out.ErrorMessage, out.RecipientID)
		}
		if err != nil {
			return fmt.Errorf("finalize recipient: %w", err)
		}

		if out.Sent {
			snap.SentCount++
		} else {
			snap.FailedCount++
		}
		if out.Bounced {
			snap.BounceCount++
		}
		attempts := snap.SentCount + snap.FailedCount
		snap.BounceRate = roundRate(100 * float64(snap.BounceCount) / math.Max(1, float64(attempts)))

		if _, err := tx.ExecContext(ctx, `
			UPDATE coldpost_campaigns
			SET sent_count = $1, failed_count = $2, bounce_count = $3, bounce_rate = $4, updated_at = NOW()
			WHERE id = $5
		`, snap.SentCount, snap.FailedCount, snap.BounceCount, snap.BounceRate, out.CampaignID); err != nil {
			return fmt.Errorf("advance counters: %w", err)
		}

		if attempts >= snap.TotalRecipients && status == domain.CampaignRunning {
			if _, err := tx.ExecContext(ctx, `
				UPDATE coldpost_campaigns
				SET status = 'completed', completed_at = NOW(), updated_at = NOW()
				WHERE id = $1
			`, out.CampaignID); err != nil {
				return fmt.Errorf("complete campaign: %w", err)
			}
			snap.Completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}
