package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/coldpost/coldpost/internal/domain"
)

const campaignColumns = `id, user_id, name, template_id, smtp_account_ids, status,
	scheduled_at, started_at, completed_at, paused_at,
	total_recipients, sent_count, failed_count, bounce_count, bounce_rate,
	delay_between_emails, batch_size, batch_delay, max_retries,
	created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.TemplateID, pq.Array(&c.SmtpAccountIDs), &c.Status,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.PausedAt,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.BounceCount, &c.BounceRate,
		&c.Settings.DelayBetweenEmails, &c.Settings.BatchSize, &c.Settings.BatchDelay, &c.Settings.MaxRetries,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	return c, nil
}

// CreateCampaign inserts a campaign together with its deduplicated recipient
// rows in one transaction. Template and SMTP account references must be owned
// by the same user and active, otherwise ErrValidation.
func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign, recipients []domain.Recipient) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}

	deduped := dedupeRecipients(recipients)
	c.TotalRecipients = len(deduped)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var ok bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM coldpost_templates WHERE id = $1 AND user_id = $2 AND active = TRUE)
		`, c.TemplateID, c.UserID).Scan(&ok)
		if err != nil {
			return fmt.Errorf("check template: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: template %s", ErrValidation, c.TemplateID)
		}

		var activeAccounts int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM coldpost_smtp_accounts
			WHERE id = ANY($1) AND user_id = $2 AND active = TRUE
		`, pq.Array(c.SmtpAccountIDs), c.UserID).Scan(&activeAccounts)
		if err != nil {
			return fmt.Errorf("check smtp accounts: %w", err)
		}
		if activeAccounts != len(c.SmtpAccountIDs) || len(c.SmtpAccountIDs) == 0 {
			return fmt.Errorf("%w: smtp accounts", ErrValidation)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO coldpost_campaigns
				(id, user_id, name, template_id, smtp_account_ids, status, scheduled_at,
				 total_recipients, delay_between_emails, batch_size, batch_delay, max_retries,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		`, c.ID, c.UserID, c.Name, c.TemplateID, pq.Array(c.SmtpAccountIDs), c.Status, c.ScheduledAt,
			c.TotalRecipients, c.Settings.DelayBetweenEmails, c.Settings.BatchSize,
			c.Settings.BatchDelay, c.Settings.MaxRetries)
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}

		return insertRecipients(ctx, tx, c.ID, deduped)
	})
}

// dedupeRecipients lowercases emails and keeps the first occurrence of each.
func dedupeRecipients(in []domain.Recipient) []domain.Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]domain.Recipient, 0, len(in))
	for _, r := range in {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		r.Email = email
		out = append(out, r)
	}
	return out
}

func insertRecipients(ctx context.Context, tx *sql.Tx, campaignID string, recipients []domain.Recipient) error {
	for i := range recipients {
		r := &recipients[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		vars := r.Variables
		if vars == nil {
			vars = map[string]string{}
		}
		varsJSON, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO coldpost_campaign_recipients
				(id, campaign_id, email, first_name, last_name, variables, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW(), NOW())
		`, r.ID, campaignID, r.Email, r.FirstName, r.LastName, varsJSON)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return nil
}

// GetCampaign fetches a campaign scoped to its owner.
func (s *Store) GetCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM coldpost_campaigns WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanCampaign(row)
}

// GetCampaignByID fetches a campaign without owner scoping (worker path).
func (s *Store) GetCampaignByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM coldpost_campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

// ListCampaigns returns a page of the user's campaigns, optionally filtered
// by status, newest first.
func (s *Store) ListCampaigns(ctx context.Context, userID string, status domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int, error) {
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM coldpost_campaigns WHERE user_id = $1`
	countArgs := []interface{}{userID}
	if status != "" {
		countQ += ` AND status = $2`
		countArgs = append(countArgs, status)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM coldpost_campaigns WHERE user_id = $1`
	args := []interface{}{userID}
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
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// TransitionCampaign performs a compare-and-set status change. The update
// applies only when the current status is one of from; otherwise
// ErrPrecondition. Lifecycle timestamps are stamped as side effects of the
// same statement.
func (s *Store) TransitionCampaign(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE coldpost_campaigns
		SET status = $2,
		    started_at   = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    paused_at    = CASE WHEN $2 = 'paused' THEN NOW() ELSE paused_at END,
		    completed_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrPrecondition
	}
	return nil
}

// RestartCampaign atomically re-enters RUNNING from a restartable state and
// resets all delivery state: recipients back to PENDING, attempt logs
// deleted, counters and the claim sequence zeroed.
func (s *Store) RestartCampaign(ctx context.Context, id string, from []domain.CampaignStatus) error {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE coldpost_campaigns
			SET status = 'running', started_at = NOW(), completed_at = NULL, paused_at = NULL,
			    sent_count = 0, failed_count = 0, bounce_count = 0, bounce_rate = 0,
			    claim_seq = 0, updated_at = NOW()
			WHERE id = $1 AND status = ANY($2)
		`, id, pq.Array(fromStrs))
		if err != nil {
			return fmt.Errorf("restart campaign: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrPrecondition
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM coldpost_email_logs WHERE campaign_id = $1`, id); err != nil {
			return fmt.Errorf("clear email logs: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE coldpost_campaign_recipients
			SET status = 'pending', sent_at = NULL, failed_reason = '',
			    smtp_account_id = NULL, seq = 0, updated_at = NOW()
			WHERE campaign_id = $1
		`, id); err != nil {
			return fmt.Errorf("reset recipients: %w", err)
		}
		return nil
	})
}

// DuplicateCampaign deep-copies a campaign into a fresh DRAFT with fresh
// PENDING recipient rows. Returns the new campaign id.
func (s *Store) DuplicateCampaign(ctx context.Context, userID, id, newName string) (string, error) {
	newID := uuid.New().String()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO coldpost_campaigns
				(id, user_id, name, template_id, smtp_account_ids, status, scheduled_at,
				 total_recipients, delay_between_emails, batch_size, batch_delay, max_retries,
				 created_at, updated_at)
			SELECT $1, user_id, $3, template_id, smtp_account_ids, 'draft', NULL,
			       total_recipients, delay_between_emails, batch_size, batch_delay, max_retries,
			       NOW(), NOW()
			FROM coldpost_campaigns WHERE id = $2 AND user_id = $4
		`, newID, id, newName, userID)
		if err != nil {
			return fmt.Errorf("copy campaign: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO coldpost_campaign_recipients
				(id, campaign_id, email, first_name, last_name, variables, status, created_at, updated_at)
			SELECT gen_random_uuid(), $1, email, first_name, last_name, variables, 'pending', NOW(), NOW()
			FROM coldpost_campaign_recipients WHERE campaign_id = $2
		`, newID, id)
		if err != nil {
			return fmt.Errorf("copy recipients: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// DeleteCampaign removes a campaign and, through cascading FKs, its
// recipients and attempt logs. Running campaigns cannot be deleted.
func (s *Store) DeleteCampaign(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM coldpost_campaigns
		WHERE id = $1 AND user_id = $2 AND status <> 'running'
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM coldpost_campaigns WHERE id = $1 AND user_id = $2`, id, userID).Scan(&status)
		if err == nil && status == "running" {
			return ErrPrecondition
		}
		return ErrNotFound
	}
	return nil
}

// ListDueScheduledCampaigns returns campaigns in SCHEDULED whose scheduled_at
// has passed (calendar sweep input).
func (s *Store) ListDueScheduledCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM coldpost_campaigns
		 WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= NOW()
		 ORDER BY scheduled_at`)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CampaignStats aggregates recipient statuses alongside campaign counters.
type CampaignStats struct {
	Campaign  *domain.Campaign `json:"campaign"`
	Pending   int              `json:"pending"`
	Queued    int              `json:"queued"`
	Sent      int              `json:"sent"`
	Failed    int              `json:"failed"`
	Bounced   int              `json:"bounced"`
}

// GetCampaignStats returns counters plus a recipient-status breakdown.
func (s *Store) GetCampaignStats(ctx context.Context, userID, id string) (*CampaignStats, error) {
	c, err := s.GetCampaign(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM coldpost_campaign_recipients
		WHERE campaign_id = $1 GROUP BY status
	`, id)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()

	stats := &CampaignStats{Campaign: c}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch domain.RecipientStatus(status) {
		case domain.RecipientPending:
			stats.Pending = count
		case domain.RecipientQueued:
			stats.Queued = count
		case domain.RecipientSent:
			stats.Sent = count
		case domain.RecipientFailed:
			stats.Failed = count
		case domain.RecipientBounced:
			stats.Bounced = count
		}
	}
	return stats, rows.Err()
}
