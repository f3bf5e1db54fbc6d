package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/coldpost/coldpost/internal/domain"
)

// ClaimNextBatch claims up to limit undelivered recipients for scheduling.
// Inside one transaction it locks the campaign row, selects PENDING or
// QUEUED recipients with FOR UPDATE SKIP LOCKED, flips them to QUEUED, and
// assigns each a monotonically increasing per-campaign sequence number. The
// sequence drives deterministic round-robin SMTP account assignment, so it
// must never repeat or regress for a campaign.
//
// QUEUED rows are reclaimable on purpose: a tick that crashed between
// claiming and enqueuing leaves recipients QUEUED with no job, and the next
// tick picks them up again.
func (s *Store) ClaimNextBatch(ctx context.Context, campaignID string, limit int) ([]domain.Recipient, error) {
	var claimed []domain.Recipient

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		err := tx.QueryRowContext(ctx,
			`SELECT claim_seq FROM coldpost_campaigns WHERE id = $1 FOR UPDATE`,
			campaignID).Scan(&seq)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock campaign: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, email, first_name, last_name, variables, status
			FROM coldpost_campaign_recipients
			WHERE campaign_id = $1 AND status IN ('pending','queued')
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, campaignID, limit)
		if err != nil {
			return fmt.Errorf("select claimable: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.Recipient
			var varsJSON []byte
			if err := rows.Scan(&r.ID, &r.Email, &r.FirstName, &r.LastName, &varsJSON, &r.Status); err != nil {
				return fmt.Errorf("scan claimable: %w", err)
			}
			if len(varsJSON) > 0 {
				if err := json.Unmarshal(varsJSON, &r.Variables); err != nil {
					return fmt.Errorf("unmarshal variables: %w", err)
				}
			}
			r.CampaignID = campaignID
			claimed = append(claimed, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range claimed {
			seq++
			claimed[i].Seq = seq
			claimed[i].Status = domain.RecipientQueued
			if _, err := tx.ExecContext(ctx, `
				UPDATE coldpost_campaign_recipients
				SET status = 'queued', seq = $1, updated_at = NOW()
				WHERE id = $2
			`, seq, claimed[i].ID); err != nil {
				return fmt.Errorf("mark claimed: %w", err)
			}
		}

		if len(claimed) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE coldpost_campaigns SET claim_seq = $1, updated_at = NOW() WHERE id = $2`,
				seq, campaignID); err != nil {
				return fmt.Errorf("advance claim seq: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// GetRecipient fetches one recipient row.
func (s *Store) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	r := &domain.Recipient{}
	var varsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, email, first_name, last_name, variables, status,
		       sent_at, failed_reason, COALESCE(smtp_account_id::text, ''), seq, created_at, updated_at
		FROM coldpost_campaign_recipients WHERE id = $1
	`, id).Scan(&r.ID, &r.CampaignID, &r.Email, &r.FirstName, &r.LastName, &varsJSON, &r.Status,
		&r.SentAt, &r.FailedReason, &r.SmtpAccountID, &r.Seq, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &r.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return r, nil
}

// ListRecipients returns all recipients of a campaign (ingest preview,
// tests).
func (s *Store) ListRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, email, first_name, last_name, variables, status,
		       sent_at, failed_reason, COALESCE(smtp_account_id::text, ''), seq, created_at, updated_at
		FROM coldpost_campaign_recipients WHERE campaign_id = $1 ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		var varsJSON []byte
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.Email, &r.FirstName, &r.LastName, &varsJSON, &r.Status,
			&r.SentAt, &r.FailedReason, &r.SmtpAccountID, &r.Seq, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if len(varsJSON) > 0 {
			if err := json.Unmarshal(varsJSON, &r.Variables); err != nil {
				return nil, fmt.Errorf("unmarshal variables: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
