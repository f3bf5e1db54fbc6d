package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/coldpost/coldpost/internal/domain"
)

const accountColumns = `id, user_id, name, host, port, secure, username, password_enc,
	from_name, from_email, daily_limit, min_delay_sec, max_delay_sec,
	active, last_used_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*domain.SmtpAccount, error) {
	a := &domain.SmtpAccount{}
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Host, &a.Port, &a.Secure,
		&a.Username, &a.PasswordEnc, &a.FromName, &a.FromEmail,
		&a.DailyLimit, &a.MinDelaySec, &a.MaxDelaySec,
		&a.Active, &a.LastUsedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan smtp account: %w", err)
	}
	return a, nil
}

// CreateSmtpAccount inserts a new SMTP account.
func (s *Store) CreateSmtpAccount(ctx context.Context, a *domain.SmtpAccount) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coldpost_smtp_accounts
			(id, user_id, name, host, port, secure, username, password_enc,
			 from_name, from_email, daily_limit, min_delay_sec, max_delay_sec,
			 active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, a.ID, a.UserID, a.Name, a.Host, a.Port, a.Secure, a.Username, a.PasswordEnc,
		a.FromName, a.FromEmail, a.DailyLimit, a.MinDelaySec, a.MaxDelaySec, a.Active)
	if err != nil {
		return fmt.Errorf("create smtp account: %w", err)
	}
	return nil
}

// GetSmtpAccount fetches an account scoped to its owner.
func (s *Store) GetSmtpAccount(ctx context.Context, userID, id string) (*domain.SmtpAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM coldpost_smtp_accounts WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanAccount(row)
}

// GetSmtpAccountByID fetches an account without owner scoping (worker path).
func (s *Store) GetSmtpAccountByID(ctx context.Context, id string) (*domain.SmtpAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM coldpost_smtp_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// ListSmtpAccounts returns all accounts owned by the user.
func (s *Store) ListSmtpAccounts(ctx context.Context, userID string) ([]domain.SmtpAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM coldpost_smtp_accounts WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list smtp accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.SmtpAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetActiveAccountsByIDs returns the subset of the given accounts that exist
// and are active, preserving the input order.
func (s *Store) GetActiveAccountsByIDs(ctx context.Context, ids []string) ([]domain.SmtpAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM coldpost_smtp_accounts WHERE id = ANY($1) AND active = TRUE`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("accounts by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.SmtpAccount, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		byID[a.ID] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.SmtpAccount, 0, len(byID))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// UpdateSmtpAccount rewrites the mutable fields of an account.
func (s *Store) UpdateSmtpAccount(ctx context.Context, a *domain.SmtpAccount) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coldpost_smtp_accounts
		SET name = $1, host = $2, port = $3, secure = $4, username = $5,
		    password_enc = $6, from_name = $7, from_email = $8,
		    daily_limit = $9, min_delay_sec = $10, max_delay_sec = $11,
		    active = $12, updated_at = NOW()
		WHERE id = $13 AND user_id = $14
	`, a.Name, a.Host, a.Port, a.Secure, a.Username, a.PasswordEnc,
		a.FromName, a.FromEmail, a.DailyLimit, a.MinDelaySec, a.MaxDelaySec,
		a.Active, a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update smtp account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSmtpAccountActive toggles an account on or off.
func (s *Store) SetSmtpAccountActive(ctx context.Context, userID, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coldpost_smtp_accounts SET active = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
	`, active, id, userID)
	if err != nil {
		return fmt.Errorf("toggle smtp account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSmtpAccount removes an account unless a non-terminal campaign still
// references it.
func (s *Store) DeleteSmtpAccount(ctx context.Context, userID, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var inUse bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM coldpost_campaigns
				WHERE $1::uuid = ANY(smtp_account_ids)
				  AND status NOT IN ('completed','failed','cancelled')
			)`, id).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("check account references: %w", err)
		}
		if inUse {
			return ErrAccountInUse
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM coldpost_smtp_accounts WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("delete smtp account: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// TouchSmtpAccountUsed stamps last_used_at after a successful send.
func (s *Store) TouchSmtpAccountUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE coldpost_smtp_accounts SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}
