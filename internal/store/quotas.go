package store

import (
	"context"
	"fmt"
	"time"
)

// TryConsumeDailyQuota atomically reserves one send against the account's
// daily limit for the given UTC date. A single guarded upsert makes the
// check-and-increment race-free across workers: the insert only fires when
// the account's limit admits at least one send, and the conflict branch only
// increments while under the limit. Returns false when the quota is
// exhausted.
func (s *Store) TryConsumeDailyQuota(ctx context.Context, smtpAccountID string, day time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coldpost_daily_quotas (smtp_account_id, day, sent_count)
		SELECT a.id, $2::date, 1
		FROM coldpost_smtp_accounts a
		WHERE a.id = $1 AND a.daily_limit >= 1
		ON CONFLICT (smtp_account_id, day) DO UPDATE
		SET sent_count = coldpost_daily_quotas.sent_count + 1
		WHERE coldpost_daily_quotas.sent_count <
		      (SELECT daily_limit FROM coldpost_smtp_accounts WHERE id = $1)
	`, smtpAccountID, day.UTC().Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("consume daily quota: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RefundDailyQuota returns one send reserved by TryConsumeDailyQuota. The
// sender calls it for every attempt that ends without a delivered message
// (unreadable credentials, render failure, no transport, failed send), so
// the counter only reflects successful sends.
func (s *Store) RefundDailyQuota(ctx context.Context, smtpAccountID string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE coldpost_daily_quotas
		SET sent_count = GREATEST(sent_count - 1, 0)
		WHERE smtp_account_id = $1 AND day = $2::date
	`, smtpAccountID, day.UTC().Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("refund daily quota: %w", err)
	}
	return nil
}

// GetDailyQuotaUsed reads the current counter for an account and date.
func (s *Store) GetDailyQuotaUsed(ctx context.Context, smtpAccountID string, day time.Time) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT sent_count FROM coldpost_daily_quotas
		                 WHERE smtp_account_id = $1 AND day = $2::date), 0)
	`, smtpAccountID, day.UTC().Format("2006-01-02")).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("read daily quota: %w", err)
	}
	return used, nil
}
