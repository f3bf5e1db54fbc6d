package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/coldpost/coldpost/internal/domain"
)

const templateColumns = `id, user_id, name, subject, body_html, variables, active, created_at, updated_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*domain.Template, error) {
	t := &domain.Template{}
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.BodyHTML,
		pq.Array(&t.Variables), &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return t, nil
}

// CreateTemplate inserts a new template. Variables must already be computed
// from the content.
func (s *Store) CreateTemplate(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coldpost_templates (id, user_id, name, subject, body_html, variables, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, t.ID, t.UserID, t.Name, t.Subject, t.BodyHTML, pq.Array(t.Variables), t.Active)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template scoped to its owner.
func (s *Store) GetTemplate(ctx context.Context, userID, id string) (*domain.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM coldpost_templates WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanTemplate(row)
}

// GetTemplateByID fetches a template without owner scoping (worker path).
func (s *Store) GetTemplateByID(ctx context.Context, id string) (*domain.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM coldpost_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

// ListTemplates returns all templates owned by the user.
func (s *Store) ListTemplates(ctx context.Context, userID string) ([]domain.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM coldpost_templates WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTemplate rewrites a template's content and recomputed variables.
func (s *Store) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coldpost_templates
		SET name = $1, subject = $2, body_html = $3, variables = $4, active = $5, updated_at = NOW()
		WHERE id = $6 AND user_id = $7
	`, t.Name, t.Subject, t.BodyHTML, pq.Array(t.Variables), t.Active, t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM coldpost_templates WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
