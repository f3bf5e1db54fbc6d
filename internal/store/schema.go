package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations run in order, once each, tracked in coldpost_schema_migrations.
var migrations = []struct {
	name string
	ddl  string
}{
	{
		name: "001_users",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_users (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		name: "002_smtp_accounts",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_smtp_accounts (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES coldpost_users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    host TEXT NOT NULL,
    port INTEGER NOT NULL,
    secure BOOLEAN NOT NULL DEFAULT FALSE,
    username TEXT NOT NULL,
    password_enc TEXT NOT NULL,
    from_name TEXT NOT NULL DEFAULT '',
    from_email TEXT NOT NULL,
    daily_limit INTEGER NOT NULL,
    min_delay_sec INTEGER NOT NULL,
    max_delay_sec INTEGER NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    last_used_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coldpost_smtp_accounts_user ON coldpost_smtp_accounts(user_id);`,
	},
	{
		name: "003_templates",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_templates (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES coldpost_users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    subject TEXT NOT NULL,
    body_html TEXT NOT NULL,
    variables TEXT[] NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coldpost_templates_user ON coldpost_templates(user_id);`,
	},
	{
		name: "004_campaigns",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_campaigns (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES coldpost_users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    template_id UUID NOT NULL REFERENCES coldpost_templates(id),
    smtp_account_ids UUID[] NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'draft',
    scheduled_at TIMESTAMPTZ,
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    paused_at TIMESTAMPTZ,
    total_recipients INTEGER NOT NULL DEFAULT 0,
    sent_count INTEGER NOT NULL DEFAULT 0,
    failed_count INTEGER NOT NULL DEFAULT 0,
    bounce_count INTEGER NOT NULL DEFAULT 0,
    bounce_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
    claim_seq BIGINT NOT NULL DEFAULT 0,
    delay_between_emails INTEGER NOT NULL DEFAULT 0,
    batch_size INTEGER NOT NULL DEFAULT 0,
    batch_delay INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coldpost_campaigns_user ON coldpost_campaigns(user_id);
CREATE INDEX IF NOT EXISTS idx_coldpost_campaigns_status ON coldpost_campaigns(status);`,
	},
	{
		name: "005_campaign_recipients",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_campaign_recipients (
    id UUID PRIMARY KEY,
    campaign_id UUID NOT NULL REFERENCES coldpost_campaigns(id) ON DELETE CASCADE,
    email TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    variables JSONB NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending',
    sent_at TIMESTAMPTZ,
    failed_reason TEXT NOT NULL DEFAULT '',
    smtp_account_id UUID,
    seq BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (campaign_id, email)
);
CREATE INDEX IF NOT EXISTS idx_coldpost_recipients_campaign_status
    ON coldpost_campaign_recipients(campaign_id, status);`,
	},
	{
		name: "006_email_logs",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_email_logs (
    id UUID PRIMARY KEY,
    campaign_id UUID NOT NULL REFERENCES coldpost_campaigns(id) ON DELETE CASCADE,
    recipient_id UUID NOT NULL REFERENCES coldpost_campaign_recipients(id) ON DELETE CASCADE,
    smtp_account_id UUID NOT NULL REFERENCES coldpost_smtp_accounts(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    subject TEXT NOT NULL DEFAULT '',
    sent_at TIMESTAMPTZ,
    failed_at TIMESTAMPTZ,
    error_message TEXT NOT NULL DEFAULT '',
    message_id TEXT NOT NULL DEFAULT '',
    bounce_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coldpost_email_logs_campaign ON coldpost_email_logs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_coldpost_email_logs_recipient ON coldpost_email_logs(recipient_id);`,
	},
	{
		name: "007_daily_quotas",
		ddl: `
CREATE TABLE IF NOT EXISTS coldpost_daily_quotas (
    smtp_account_id UUID NOT NULL REFERENCES coldpost_smtp_accounts(id) ON DELETE CASCADE,
    day DATE NOT NULL,
    sent_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (smtp_account_id, day)
);`,
	},
}

// Migrate applies pending migrations in order. Each migration runs in its own
// transaction together with its bookkeeping row.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS coldpost_schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM coldpost_schema_migrations WHERE name = $1)", m.name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if exists {
			continue
		}

		err = s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.ddl); err != nil {
				return fmt.Errorf("apply %s: %w", m.name, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO coldpost_schema_migrations (name) VALUES ($1)", m.name); err != nil {
				return fmt.Errorf("record %s: %w", m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.log.Info("migration applied", "name", m.name)
	}
	return nil
}

// MigrationNames lists the known migrations in order (used by cmd/migrate --list).
func MigrationNames() []string {
	names := make([]string, 0, len(migrations))
	for _, m := range migrations {
		names = append(names, m.name)
	}
	return names
}
